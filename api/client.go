// Package api implements a client for the Myfox home automation web portal.
//
// The core is [Client], which runs every remote call through session tracking
// and bounded (re)authentication. [HTMLAPI] drives scenarios, domotics,
// heatings and the alarm on top of it, and [New] picks the wrapper variants
// matching the configured [Strategy].
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// StatusForbiddenSiteID is the status of an authentication that succeeded on
// a site id outside of the allow-list.
const StatusForbiddenSiteID = 449

// Request describes one remote operation.
type Request struct {
	// Path may contain the "{siteId}" placeholder.
	Path    string
	Method  string
	Parser  ResponseParser
	Query   url.Values
	Headers http.Header
	Payload url.Values
}

// Client is the part shared by all wrapper variants. It owns the session, the
// persistent state and the macro listeners.
type Client struct {
	options Options
	auth    Authenticator
	distant Distant
	logger  *slog.Logger
	now     func() time.Time

	state  *StateStore
	macros *MacroRegistry

	mu      sync.RWMutex
	session Session
}

// NewClient validates opts and returns a client that authenticates with auth
// and performs calls with distant.
func NewClient(opts Options, auth Authenticator, distant Distant, options ...ClientOption) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	cfg := newClientConfig(options)
	return newClient(opts, auth, distant, cfg), nil
}

func newClient(opts Options, auth Authenticator, distant Distant, cfg clientConfig) *Client {
	state := cfg.state
	if state == nil {
		state = NewStateStore(DefaultStateLabels...)
		state.now = cfg.now
	}
	macros := cfg.macros
	if macros == nil {
		macros = NewMacroRegistry(cfg.logger)
		macros.now = cfg.now
	}

	return &Client{
		options: opts.clone(),
		auth:    auth,
		distant: distant,
		logger:  cfg.logger,
		now:     cfg.now,
		state:   state,
		macros:  macros,
	}
}

// Options returns a copy of the options the client was built with.
func (c *Client) Options() Options {
	return c.options.clone()
}

func (c *Client) State() *StateStore {
	return c.state
}

func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// IsMaybeAuthenticated reports whether the last authentication is still
// within its validity window. The remote side may have dropped it anyway.
func (c *Client) IsMaybeAuthenticated() bool {
	return c.Session().ValidAt(c.now())
}

func (c *Client) AddMacroListener(l *MacroListener) bool {
	return c.macros.Add(l)
}

func (c *Client) RemoveMacroListener(l *MacroListener) bool {
	return c.macros.Remove(l)
}

func (c *Client) NotifyMacroListeners(err error, ev MacroEvent) {
	c.macros.Notify(err, ev)
}

// CallAPI performs req, authenticating first when the session is not valid.
//
// When the session looked valid but the remote side answers 403, the client
// authenticates again and retries req once. A 403 on that retry is returned
// as is.
func (c *Client) CallAPI(ctx context.Context, req *Request) (any, error) {
	if !c.options.AutoAuthentication {
		return c.invoke(ctx, req, nil)
	}

	if !c.IsMaybeAuthenticated() {
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
		return c.invoke(ctx, req, nil)
	}

	return c.invoke(ctx, req, func(ctx context.Context) (any, error) {
		c.logger.Info("remote call rejected, authenticating again",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
		)
		if err := c.authenticate(ctx); err != nil {
			return nil, err
		}
		return c.invoke(ctx, req, nil)
	})
}

func (c *Client) invoke(ctx context.Context, req *Request, reAuthenticate func(context.Context) (any, error)) (any, error) {
	result, err := c.distant.CallDistant(ctx, c.Session(), req)
	if err == nil {
		return result, nil
	}

	if Status(err) == http.StatusForbidden && reAuthenticate != nil {
		return reAuthenticate(ctx)
	}

	return nil, withDefaultStatus(fmt.Errorf("call %s %s: %w", req.Method, req.Path, err), http.StatusInternalServerError)
}

// authenticate tries up to AutoAuthRetryCredits+1 times. The session is only
// replaced on success.
func (c *Client) authenticate(ctx context.Context) error {
	credits := c.options.AutoAuthRetryCredits
	previous := c.Session().AuthenticatedData

	for attempt := 1; ; attempt++ {
		data, siteID, err := c.auth.Authenticate(ctx, previous)
		if err == nil {
			if !c.options.HasSiteID(siteID) {
				c.logger.Error("authenticated with a forbidden site id", slog.Int("site_id", siteID))
				return WithStatus(fmt.Errorf("%w %d: check the myfoxSiteIds option", ErrForbiddenSiteID, siteID), StatusForbiddenSiteID)
			}

			c.mu.Lock()
			c.session = Session{
				AuthenticatedUntil:  c.now().Add(time.Duration(c.options.AuthValidity) * time.Second),
				AuthenticatedData:   data,
				AuthenticatedSiteID: siteID,
			}
			c.mu.Unlock()

			c.logger.Debug("authenticated", slog.Int("site_id", siteID), slog.Int("attempt", attempt))
			return nil
		}

		if errors.Is(err, ErrForbiddenSiteID) {
			return withDefaultStatus(err, StatusForbiddenSiteID)
		}

		if credits <= 0 || ctx.Err() != nil {
			c.logger.Error("authentication failed", slog.Int("attempts", attempt), slog.Any("error", err))
			return WithStatus(fmt.Errorf("authenticate: %w", err), http.StatusForbidden)
		}

		credits--
		c.logger.Warn("authentication failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("credits_left", credits),
			slog.Any("error", err),
		)
	}
}
