package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// caller is what the macro engine needs from [Client].
type caller interface {
	CallAPI(ctx context.Context, req *Request) (any, error)
}

// HTMLAPI drives the Myfox web portal the way its web pages do.
type HTMLAPI struct {
	*Client
	transport   *Transport
	credentials *AccountCredentials

	caller caller
	notify func(err error, ev MacroEvent)
}

// NewHTMLAPI returns the portal scraping wrapper.
func NewHTMLAPI(opts Options, options ...ClientOption) (*HTMLAPI, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	cfg := newClientConfig(options)
	transport, err := NewTransport(cfg.portal, cfg.httpClient)
	if err != nil {
		return nil, fmt.Errorf("create portal transport: %w", err)
	}

	portal := &htmlPortal{
		transport:   transport,
		credentials: opts.AccountCredentials,
		loginPath:   cfg.portal.LoginPath,
	}

	client := newClient(opts, portal, portal, cfg)
	h := &HTMLAPI{
		Client:      client,
		transport:   transport,
		credentials: client.options.AccountCredentials,
	}
	h.caller = client
	h.notify = client.NotifyMacroListeners
	return h, nil
}

// Transport exposes the portal transport, e.g. to save its cookies.
func (h *HTMLAPI) Transport() *Transport {
	return h.transport
}

// CallHome reads the home page of the authenticated site and pushes it to the
// status channel.
func (h *HTMLAPI) CallHome(ctx context.Context) (*Home, error) {
	result, err := h.caller.CallAPI(ctx, &Request{
		Path:   "/home/{siteId}",
		Method: http.MethodGet,
		Parser: HomeParser,
	})
	if err != nil {
		return nil, fmt.Errorf("call home: %w", err)
	}

	home, ok := result.(*Home)
	if !ok {
		return nil, WithStatus(fmt.Errorf("%w: home is %T", ErrUnknownFormat, result), http.StatusInternalServerError)
	}

	if err := h.state.Push(LabelStatus, *home); err != nil {
		h.logger.Error("failed to push home status", slog.Any("error", err))
	}
	return home, nil
}

// CallScenarioAction runs first, then next in order. Invalid actions are
// rejected before anything is sent and done is not called.
//
// done receives the outcome of first only. Later steps are reported to the
// macro listeners, all with the same macro id. macroID is generated when
// empty and the macro is delayed or has more than one action.
func (h *HTMLAPI) CallScenarioAction(ctx context.Context, first ScenarioAction, done CompletionFunc, macroID string, next ...ScenarioAction) error {
	steps, err := validateSteps(first, next)
	if err != nil {
		return err
	}
	h.startMacro(ctx, steps, done, macroID)
	return nil
}

// CallDomoticAction is like [HTMLAPI.CallScenarioAction] for domotic devices.
func (h *HTMLAPI) CallDomoticAction(ctx context.Context, first DomoticAction, done CompletionFunc, macroID string, next ...DomoticAction) error {
	steps, err := validateSteps(first, next)
	if err != nil {
		return err
	}
	h.startMacro(ctx, steps, done, macroID)
	return nil
}

// CallHeatingAction is like [HTMLAPI.CallScenarioAction] for heatings.
func (h *HTMLAPI) CallHeatingAction(ctx context.Context, first HeatingAction, done CompletionFunc, macroID string, next ...HeatingAction) error {
	steps, err := validateSteps(first, next)
	if err != nil {
		return err
	}
	h.startMacro(ctx, steps, done, macroID)
	return nil
}

// CallAlarmLevelAction changes the security level. Lowering it, or passing
// any password, requires the password of the account credentials; a mismatch
// is reported to done without any remote call.
func (h *HTMLAPI) CallAlarmLevelAction(ctx context.Context, action AlarmAction, done CompletionFunc) error {
	if err := validateStruct(action); err != nil {
		return err
	}

	needsPassword := action.Action == ActionOff || action.Action == ActionHalf || action.Password != ""
	if needsPassword && !h.passwordMatches(action.Password) {
		h.logger.Warn("alarm level change refused", slog.String("action", action.Action))
		done(WithStatus(ErrAlarmPassword, http.StatusUnauthorized), MacroEvent{})
		return nil
	}

	h.runStep(ctx, "", action, nil, done)
	return nil
}

func (h *HTMLAPI) passwordMatches(password string) bool {
	var stored string
	if h.credentials != nil {
		stored = h.credentials.Password
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
}

func (h *HTMLAPI) startMacro(ctx context.Context, steps []step, done CompletionFunc, macroID string) {
	if macroID == "" && (steps[0].delay() > 0 || len(steps) > 1) {
		macroID = newMacroID()
	}
	h.runStep(ctx, macroID, steps[0], steps[1:], done)
}

// runStep executes current and then the rest of the macro. Only current's
// outcome goes to done; the following steps report to the macro listeners.
func (h *HTMLAPI) runStep(ctx context.Context, macroID string, current step, rest []step, done CompletionFunc) {
	if d := current.delay(); d > 0 {
		ctx := context.WithoutCancel(ctx)
		time.AfterFunc(d, func() {
			h.runStep(ctx, macroID, current.undelayed(), rest, h.notify)
		})
		done(nil, MacroEvent{ID: macroID, State: MacroDelayed, Remaining: len(rest)})
		return
	}

	req, err := current.request(h.now())
	if err != nil {
		done(err, MacroEvent{ID: macroID})
		return
	}

	result, err := h.caller.CallAPI(ctx, req)
	if err != nil {
		h.logger.Error("macro step failed",
			slog.String("macro_id", macroID),
			slog.String("path", req.Path),
			slog.Any("error", err),
		)
		done(err, MacroEvent{ID: macroID})
		return
	}

	if err := current.apply(h.state); err != nil {
		h.logger.Error("failed to update state", slog.String("macro_id", macroID), slog.Any("error", err))
	}

	state := MacroFinished
	if len(rest) > 0 {
		state = MacroProgress
	}
	done(nil, MacroEvent{ID: macroID, Data: result, State: state, Remaining: len(rest)})

	if len(rest) > 0 {
		ctx := context.WithoutCancel(ctx)
		go h.runStep(ctx, macroID, rest[0], rest[1:], h.notify)
	}
}

// newMacroID returns 20 random bytes, hex encoded.
func newMacroID() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// htmlPortal authenticates with the login form and performs calls through
// the portal transport.
type htmlPortal struct {
	transport   *Transport
	credentials *AccountCredentials
	loginPath   string
}

func (p *htmlPortal) Authenticate(ctx context.Context, _ AuthData) (AuthData, int, error) {
	if p.credentials == nil {
		return nil, 0, fmt.Errorf("%w: no account credentials", ErrLoginFailed)
	}

	result, err := p.transport.Do(ctx, &Request{
		Path:   p.loginPath,
		Method: http.MethodPost,
		Parser: LoginParser,
		Payload: url.Values{
			"username": {p.credentials.Username},
			"password": {p.credentials.Password},
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("login: %w", err)
	}

	login, ok := result.(*LoginResult)
	if !ok {
		return nil, 0, fmt.Errorf("%w: login result is %T", ErrUnknownFormat, result)
	}
	return login.Redirect, login.SiteID, nil
}

func (p *htmlPortal) CallDistant(ctx context.Context, session Session, req *Request) (any, error) {
	r := *req
	r.Path = ExpandSitePath(req.Path, session.AuthenticatedSiteID)
	return p.transport.Do(ctx, &r)
}
