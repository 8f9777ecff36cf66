package homekit

import (
	"context"
	"errors"
	"testing"

	"github.com/bartekpacia/myfox/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWrapper struct {
	api.Wrapper
	state *api.StateStore
}

func (f *fakeWrapper) State() *api.StateStore { return f.state }

func seededWrapper(t *testing.T) *fakeWrapper {
	t.Helper()

	state := api.NewStateStore(api.DefaultStateLabels...)
	require.NoError(t, state.Push(api.LabelScenarios, []api.Scenario{{ID: 12, Label: "night", Active: true}}))
	require.NoError(t, state.Push(api.LabelDomotics, []api.Domotic{{ID: 5, Label: " shutters "}}))
	require.NoError(t, state.Push(api.LabelHeatings, []api.Heating{{ID: 3, Label: "bedroom", State: "eco"}}))
	return &fakeWrapper{state: state}
}

func TestSetUp(t *testing.T) {
	w := seededWrapper(t)
	c := &Client{Name: "Myfox", Wrapper: w}

	home, accessories, err := c.SetUp(context.Background())
	require.NoError(t, err)
	assert.Len(t, accessories, 4)

	require.Contains(t, home.Scenarios, 12)
	assert.True(t, home.Scenarios[12].Switch.On.Value())
	require.Contains(t, home.Domotics, 5)
	assert.Equal(t, "shutters", home.Domotics[5].Info.Name.Value())
	assert.False(t, home.Domotics[5].Switch.On.Value())
	require.Contains(t, home.Heatings, 3)
	assert.True(t, home.Heatings[3].Switch.On.Value(), "eco counts as on")
	assert.False(t, home.Alarm.Switch.On.Value())
}

func TestSetUp_Sync(t *testing.T) {
	w := seededWrapper(t)
	c := &Client{Name: "Myfox", Wrapper: w}

	home, _, err := c.SetUp(context.Background())
	require.NoError(t, err)

	require.NoError(t, w.state.Push(api.LabelDomotics, []api.Domotic{{ID: 5, Label: "shutters", SupposedState: api.ActionOn}}))
	assert.True(t, home.Domotics[5].Switch.On.Value())

	require.NoError(t, w.state.Push(api.LabelHeatings, []api.Heating{{ID: 3, Label: "bedroom", State: api.ActionOff}}))
	assert.False(t, home.Heatings[3].Switch.On.Value())

	require.NoError(t, w.state.Push(api.LabelAlarm, api.AlarmLevel(api.ActionOff)))
	require.NoError(t, w.state.Push(api.LabelAlarm, api.AlarmLevel(api.ActionOn)))
	assert.True(t, home.Alarm.Switch.On.Value())
}

func TestSend(t *testing.T) {
	c := &Client{}

	called := false
	c.send(context.Background(), "domotic", 5, api.ActionOn, func(done api.CompletionFunc) error {
		called = true
		done(errors.New("unreachable"), api.MacroEvent{})
		return nil
	})
	assert.True(t, called)

	c.send(context.Background(), "domotic", 5, "dim", func(done api.CompletionFunc) error {
		return &api.ValidationError{Field: "action", Message: "must be one of [on, off]"}
	})
}

func TestHeatingOn(t *testing.T) {
	assert.False(t, heatingOn(""))
	assert.False(t, heatingOn(api.ActionOff))
	assert.True(t, heatingOn(api.ActionOn))
	assert.True(t, heatingOn(api.ActionFrost))
}
