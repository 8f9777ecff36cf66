// Package highlevel provides convenient wrappers around some common functionality
// in the [api] package.
package highlevel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bartekpacia/myfox/api"
	"github.com/bartekpacia/myfox/cfg"
	"golang.org/x/term"
)

// Connect returns a wrapper that is ready to use.
//
// The home page is read once, so that bad credentials or a forbidden site are
// reported right away. Strategies without a home page skip this step.
func Connect(ctx context.Context, config *cfg.Config, options ...api.ClientOption) (api.Wrapper, error) {
	opts, err := config.Options()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return nil, fmt.Errorf("configure wrapper: %w", err)
	}

	options = append([]api.ClientOption{api.WithPortal(config.APIPortal())}, options...)
	wrapper, err := api.New(opts, options...)
	if err != nil {
		slog.Error("failed to create wrapper", slog.Any("error", err))
		return nil, fmt.Errorf("create myfox wrapper: %w", err)
	}

	slog.Debug("created wrapper", slog.String("strategy", string(opts.APIStrategy)))

	home, err := wrapper.CallHome(ctx)
	if errors.Is(err, api.ErrUnsupported) {
		slog.Debug("home page not available, skipping", slog.Any("error", err))
		return wrapper, nil
	}
	if err != nil {
		slog.Error("failed to read home page", slog.Any("error", err), slog.Int("status", api.Status(err)))
		return nil, fmt.Errorf("call home: %w", err)
	}

	slog.Debug("got home",
		slog.String("site", home.SiteName),
		slog.Any("status", home.MasterStatus),
	)

	return wrapper, nil
}

// PromptPassword asks for the account password on in when config has none.
func PromptPassword(config *cfg.Config, in *os.File, out io.Writer) error {
	if config.Password != "" {
		return nil
	}

	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("MYFOX_PASSWORD is not set and %s is not a terminal", in.Name())
	}

	fmt.Fprintf(out, "Password for %s: ", config.Username)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	config.Password = strings.TrimSpace(string(password))
	return nil
}
