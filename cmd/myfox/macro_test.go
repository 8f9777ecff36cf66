package main

import (
	"context"
	"errors"
	"testing"

	"github.com/bartekpacia/myfox/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var aliases = map[string]int{"night": 12, "morning": 13}

func TestParseStep(t *testing.T) {
	tests := []struct {
		in      string
		want    step
		wantErr bool
	}{
		{in: "12:off", want: step{ID: 12, Action: "off"}},
		{in: "12:on:1m30s", want: step{ID: 12, Action: "on", DelayMS: 90_000}},
		{in: "nigt:play", want: step{ID: 12, Action: "play"}},
		{in: "12", wantErr: true},
		{in: "12:on:soon", wantErr: true},
		{in: "1:2:3:4", wantErr: true},
		{in: "xyz:play", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseStep(tt.in, scenarioResolver(aliases))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBestScenarioMatch(t *testing.T) {
	name, id, score := bestScenarioMatch("Morning", aliases)
	assert.Equal(t, "morning", name)
	assert.Equal(t, 13, id)
	assert.InDelta(t, 1.0, score, 0.001)

	_, _, score = bestScenarioMatch("anything", nil)
	assert.Zero(t, score)
}

type fakeWrapper struct {
	api.Wrapper
	registry *api.MacroRegistry
}

func (f *fakeWrapper) AddMacroListener(l *api.MacroListener) bool    { return f.registry.Add(l) }
func (f *fakeWrapper) RemoveMacroListener(l *api.MacroListener) bool { return f.registry.Remove(l) }

func TestRunMacro(t *testing.T) {
	w := &fakeWrapper{registry: api.NewMacroRegistry(nil)}
	steps := []step{{ID: 1, Action: "on"}, {ID: 1, Action: "off"}}

	err := runMacro(context.Background(), w, steps, func(done api.CompletionFunc, macroID string) error {
		done(nil, api.MacroEvent{ID: macroID, State: api.MacroProgress, Remaining: 1})
		go func() {
			w.registry.Notify(nil, api.MacroEvent{ID: "other", State: api.MacroFinished})
			w.registry.Notify(nil, api.MacroEvent{ID: macroID, State: api.MacroFinished})
		}()
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, w.registry.Len())
}

func TestRunMacro_SingleAction(t *testing.T) {
	w := &fakeWrapper{registry: api.NewMacroRegistry(nil)}

	err := runMacro(context.Background(), w, []step{{ID: 1, Action: "on"}}, func(done api.CompletionFunc, macroID string) error {
		done(nil, api.MacroEvent{ID: macroID, State: api.MacroFinished})
		return nil
	})
	assert.NoError(t, err)
}

func TestRunMacro_Errors(t *testing.T) {
	w := &fakeWrapper{registry: api.NewMacroRegistry(nil)}
	boom := errors.New("boom")

	err := runMacro(context.Background(), w, []step{{ID: 1, Action: "on"}}, func(done api.CompletionFunc, macroID string) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = runMacro(context.Background(), w, []step{{ID: 1, Action: "on"}}, func(done api.CompletionFunc, macroID string) error {
		done(boom, api.MacroEvent{ID: macroID})
		return nil
	})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = runMacro(ctx, w, []step{{ID: 1, Action: "on", DelayMS: 60_000}}, func(done api.CompletionFunc, macroID string) error {
		done(nil, api.MacroEvent{ID: macroID, State: api.MacroDelayed})
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
