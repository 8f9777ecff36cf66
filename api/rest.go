package api

import (
	"context"
	"fmt"
)

// RestAPI is the wrapper for the Myfox REST API. None of its operations are
// implemented yet: each returns [ErrUnsupported] so that a [Fallback] hands
// them over to the HTML wrapper.
type RestAPI struct {
	*Client
}

func NewRestAPI(opts Options, options ...ClientOption) (*RestAPI, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	cfg := newClientConfig(options)
	unsupported := restUnsupported{}
	return &RestAPI{Client: newClient(opts, unsupported, unsupported, cfg)}, nil
}

func (r *RestAPI) CallHome(context.Context) (*Home, error) {
	return nil, fmt.Errorf("rest home: %w", ErrUnsupported)
}

func (r *RestAPI) CallScenarioAction(context.Context, ScenarioAction, CompletionFunc, string, ...ScenarioAction) error {
	return fmt.Errorf("rest scenario action: %w", ErrUnsupported)
}

func (r *RestAPI) CallDomoticAction(context.Context, DomoticAction, CompletionFunc, string, ...DomoticAction) error {
	return fmt.Errorf("rest domotic action: %w", ErrUnsupported)
}

func (r *RestAPI) CallHeatingAction(context.Context, HeatingAction, CompletionFunc, string, ...HeatingAction) error {
	return fmt.Errorf("rest heating action: %w", ErrUnsupported)
}

func (r *RestAPI) CallAlarmLevelAction(context.Context, AlarmAction, CompletionFunc) error {
	return fmt.Errorf("rest alarm level action: %w", ErrUnsupported)
}

type restUnsupported struct{}

func (restUnsupported) Authenticate(context.Context, AuthData) (AuthData, int, error) {
	return nil, 0, fmt.Errorf("rest authentication: %w", ErrUnsupported)
}

func (restUnsupported) CallDistant(context.Context, Session, *Request) (any, error) {
	return nil, fmt.Errorf("rest call: %w", ErrUnsupported)
}
