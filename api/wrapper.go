package api

import (
	"context"
	"errors"
	"fmt"
)

// Wrapper is implemented by every wrapper variant. An operation a variant
// cannot serve returns an error wrapping [ErrUnsupported].
type Wrapper interface {
	Options() Options
	State() *StateStore
	AddMacroListener(l *MacroListener) bool
	RemoveMacroListener(l *MacroListener) bool

	CallHome(ctx context.Context) (*Home, error)
	CallScenarioAction(ctx context.Context, first ScenarioAction, done CompletionFunc, macroID string, next ...ScenarioAction) error
	CallDomoticAction(ctx context.Context, first DomoticAction, done CompletionFunc, macroID string, next ...DomoticAction) error
	CallHeatingAction(ctx context.Context, first HeatingAction, done CompletionFunc, macroID string, next ...HeatingAction) error
	CallAlarmLevelAction(ctx context.Context, action AlarmAction, done CompletionFunc) error
}

var (
	_ Wrapper = (*HTMLAPI)(nil)
	_ Wrapper = (*RestAPI)(nil)
	_ Wrapper = (*Fallback)(nil)
)

// Fallback serves each operation with Primary, and with Secondary when
// Primary does not support it.
type Fallback struct {
	Primary   Wrapper
	Secondary Wrapper
}

func (f *Fallback) Options() Options {
	return f.Primary.Options()
}

func (f *Fallback) State() *StateStore {
	return f.Primary.State()
}

// AddMacroListener registers l on both wrappers. It reports whether l was
// new to the primary one.
func (f *Fallback) AddMacroListener(l *MacroListener) bool {
	added := f.Primary.AddMacroListener(l)
	f.Secondary.AddMacroListener(l)
	return added
}

func (f *Fallback) RemoveMacroListener(l *MacroListener) bool {
	removed := f.Primary.RemoveMacroListener(l)
	return f.Secondary.RemoveMacroListener(l) || removed
}

func (f *Fallback) CallHome(ctx context.Context) (*Home, error) {
	home, err := f.Primary.CallHome(ctx)
	if errors.Is(err, ErrUnsupported) {
		return f.Secondary.CallHome(ctx)
	}
	return home, err
}

func (f *Fallback) CallScenarioAction(ctx context.Context, first ScenarioAction, done CompletionFunc, macroID string, next ...ScenarioAction) error {
	err := f.Primary.CallScenarioAction(ctx, first, done, macroID, next...)
	if errors.Is(err, ErrUnsupported) {
		return f.Secondary.CallScenarioAction(ctx, first, done, macroID, next...)
	}
	return err
}

func (f *Fallback) CallDomoticAction(ctx context.Context, first DomoticAction, done CompletionFunc, macroID string, next ...DomoticAction) error {
	err := f.Primary.CallDomoticAction(ctx, first, done, macroID, next...)
	if errors.Is(err, ErrUnsupported) {
		return f.Secondary.CallDomoticAction(ctx, first, done, macroID, next...)
	}
	return err
}

func (f *Fallback) CallHeatingAction(ctx context.Context, first HeatingAction, done CompletionFunc, macroID string, next ...HeatingAction) error {
	err := f.Primary.CallHeatingAction(ctx, first, done, macroID, next...)
	if errors.Is(err, ErrUnsupported) {
		return f.Secondary.CallHeatingAction(ctx, first, done, macroID, next...)
	}
	return err
}

func (f *Fallback) CallAlarmLevelAction(ctx context.Context, action AlarmAction, done CompletionFunc) error {
	err := f.Primary.CallAlarmLevelAction(ctx, action, done)
	if errors.Is(err, ErrUnsupported) {
		return f.Secondary.CallAlarmLevelAction(ctx, action, done)
	}
	return err
}

// New returns the wrapper matching the strategy of opts. Both variants of a
// combined strategy share one state store and one macro registry.
//
// The custom strategy is rejected: compose the variants with [Fallback].
func New(opts Options, options ...ClientOption) (Wrapper, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	cfg := newClientConfig(options)
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
	options = append(options, WithStateStore(state), WithMacroRegistry(macros))

	switch opts.APIStrategy {
	case StrategyHTMLOnly:
		html, err := NewHTMLAPI(opts, options...)
		if err != nil {
			return nil, err
		}
		return html, nil
	case StrategyRESTOnly:
		rest, err := NewRestAPI(opts, options...)
		if err != nil {
			return nil, err
		}
		return rest, nil
	case StrategyHTMLFirst, StrategyRESTFirst:
		html, err := NewHTMLAPI(opts, options...)
		if err != nil {
			return nil, err
		}
		rest, err := NewRestAPI(opts, options...)
		if err != nil {
			return nil, err
		}
		if opts.APIStrategy == StrategyRESTFirst {
			return &Fallback{Primary: rest, Secondary: html}, nil
		}
		return &Fallback{Primary: html, Secondary: rest}, nil
	default:
		return nil, fmt.Errorf("api strategy %q needs the wrappers to be composed by hand", opts.APIStrategy)
	}
}
