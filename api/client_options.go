package api

import (
	"log/slog"
	"net/http"
	"time"
)

type clientConfig struct {
	logger     *slog.Logger
	now        func() time.Time
	httpClient *http.Client
	portal     Portal
	state      *StateStore
	macros     *MacroRegistry
}

// ClientOption customizes how a wrapper is built.
type ClientOption func(*clientConfig)

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = logger }
}

// WithClock replaces time.Now for session validity and event timestamps.
func WithClock(now func() time.Time) ClientOption {
	return func(c *clientConfig) { c.now = now }
}

// WithHTTPClient sets the client used by the portal transport. Its redirect
// policy and cookie jar are replaced on a copy.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = client }
}

func WithPortal(portal Portal) ClientOption {
	return func(c *clientConfig) { c.portal = portal }
}

// WithStateStore shares an existing state store instead of creating one.
func WithStateStore(store *StateStore) ClientOption {
	return func(c *clientConfig) { c.state = store }
}

// WithMacroRegistry shares an existing macro listener registry.
func WithMacroRegistry(registry *MacroRegistry) ClientOption {
	return func(c *clientConfig) { c.macros = registry }
}

func newClientConfig(options []ClientOption) clientConfig {
	cfg := clientConfig{
		logger:     slog.Default(),
		now:        time.Now,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		portal:     DefaultPortal(),
	}
	for _, option := range options {
		option(&cfg)
	}
	return cfg
}
