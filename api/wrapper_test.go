package api

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Strategies(t *testing.T) {
	tests := []struct {
		strategy  Strategy
		primary   any
		secondary any
	}{
		{strategy: StrategyHTMLOnly, primary: &HTMLAPI{}},
		{strategy: StrategyRESTOnly, primary: &RestAPI{}},
		{strategy: StrategyHTMLFirst, primary: &HTMLAPI{}, secondary: &RestAPI{}},
		{strategy: StrategyRESTFirst, primary: &RestAPI{}, secondary: &HTMLAPI{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			w, err := New(testOptions(t, WithStrategy(tt.strategy)), WithLogger(discardLogger()))
			require.NoError(t, err)

			if tt.secondary == nil {
				assert.IsType(t, tt.primary, w)
				return
			}

			f, ok := w.(*Fallback)
			require.True(t, ok)
			assert.IsType(t, tt.primary, f.Primary)
			assert.IsType(t, tt.secondary, f.Secondary)
			assert.Same(t, f.Primary.State(), f.Secondary.State(), "variants share their state")
		})
	}

	_, err := New(testOptions(t))
	assert.Error(t, err, "custom strategy is composed by hand")
}

func TestRestAPI_Unsupported(t *testing.T) {
	r, err := NewRestAPI(testOptions(t))
	require.NoError(t, err)

	noop := func(error, MacroEvent) {}
	ctx := context.Background()

	_, err = r.CallHome(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, r.CallScenarioAction(ctx, ScenarioAction{ID: 1, Action: ActionPlay}, noop, ""), ErrUnsupported)
	assert.ErrorIs(t, r.CallDomoticAction(ctx, DomoticAction{ID: 1, Action: ActionOn}, noop, ""), ErrUnsupported)
	assert.ErrorIs(t, r.CallHeatingAction(ctx, HeatingAction{ID: 1, Action: ActionEco}, noop, ""), ErrUnsupported)
	assert.ErrorIs(t, r.CallAlarmLevelAction(ctx, AlarmAction{Action: ActionOn}, noop), ErrUnsupported)

	_, err = r.CallAPI(ctx, testRequest)
	assert.Equal(t, 403, Status(err))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestFallback(t *testing.T) {
	html, caller, _ := newEngine(t)
	rest, err := NewRestAPI(testOptions(t))
	require.NoError(t, err)

	f := &Fallback{Primary: rest, Secondary: html}

	done := &completions{}
	require.NoError(t, f.CallDomoticAction(context.Background(), DomoticAction{ID: 2, Action: ActionOff}, done.Done, ""))
	assert.Len(t, caller.Requests(), 1, "unsupported primary falls back to the secondary")
	require.Len(t, done.All(), 1)
	assert.NoError(t, done.All()[0].err)

	err = f.CallDomoticAction(context.Background(), DomoticAction{ID: 2, Action: "dim"}, done.Done, "")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr, "validation errors of the secondary are returned")

	f = &Fallback{Primary: html, Secondary: rest}
	caller.err = errors.New("unreachable")
	require.NoError(t, f.CallAlarmLevelAction(context.Background(), AlarmAction{Action: ActionOn}, done.Done))
	last := done.All()[len(done.All())-1]
	assert.Error(t, last.err, "remote errors of the primary do not fall back")
}

func TestFallback_MacroListeners(t *testing.T) {
	html, _, _ := newEngine(t)
	rest, err := NewRestAPI(testOptions(t))
	require.NoError(t, err)
	f := &Fallback{Primary: html, Secondary: rest}

	l := MacroListener(nil)
	assert.True(t, f.AddMacroListener(&l))
	assert.False(t, f.AddMacroListener(&l))
	assert.True(t, f.RemoveMacroListener(&l))
	assert.False(t, f.RemoveMacroListener(&l))
}
