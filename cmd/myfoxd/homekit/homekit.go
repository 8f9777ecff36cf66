// Package homekit bridges a Myfox site with HomeKit.
package homekit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bartekpacia/myfox/api"
	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
)

// Client exposes the tracked scenarios, domotics and heatings, and the alarm,
// as switches.
type Client struct {
	PIN      string
	Name     string
	StoreDir string
	// AlarmPassword is sent when the alarm switch is turned off.
	AlarmPassword string
	Wrapper       api.Wrapper
}

type Home struct {
	Scenarios map[int]*accessory.Switch
	Domotics  map[int]*accessory.Switch
	Heatings  map[int]*accessory.Switch
	Alarm     *accessory.Switch

	listener api.StateListener
}

// SetUp creates the accessories and keeps them in sync with the state of the
// wrapper. Changes made in HomeKit are sent with ctx.
func (c *Client) SetUp(ctx context.Context) (*Home, []*accessory.A, error) {
	var accessories []*accessory.A

	home := &Home{
		Scenarios: make(map[int]*accessory.Switch),
		Domotics:  make(map[int]*accessory.Switch),
		Heatings:  make(map[int]*accessory.Switch),
	}

	state := c.Wrapper.State()

	scenarios, _ := state.Get(api.LabelScenarios)
	for _, s := range asSlice[api.Scenario](scenarios) {
		a := accessory.NewSwitch(accessory.Info{Name: strings.TrimSpace(s.Label)})
		a.Switch.On.SetValue(s.Active)
		a.Switch.On.OnValueRemoteUpdate(func(on bool) {
			action := api.ScenarioAction{ID: s.ID, Action: onOff(on)}
			c.send(ctx, "scenario", s.ID, action.Action, func(done api.CompletionFunc) error {
				return c.Wrapper.CallScenarioAction(ctx, action, done, "")
			})
		})
		home.Scenarios[s.ID] = a
		accessories = append(accessories, a.A)
	}

	domotics, _ := state.Get(api.LabelDomotics)
	for _, d := range asSlice[api.Domotic](domotics) {
		a := accessory.NewSwitch(accessory.Info{Name: strings.TrimSpace(d.Label)})
		a.Switch.On.SetValue(d.SupposedState == api.ActionOn)
		a.Switch.On.OnValueRemoteUpdate(func(on bool) {
			action := api.DomoticAction{ID: d.ID, Action: onOff(on)}
			c.send(ctx, "domotic", d.ID, action.Action, func(done api.CompletionFunc) error {
				return c.Wrapper.CallDomoticAction(ctx, action, done, "")
			})
		})
		home.Domotics[d.ID] = a
		accessories = append(accessories, a.A)
	}

	heatings, _ := state.Get(api.LabelHeatings)
	for _, h := range asSlice[api.Heating](heatings) {
		a := accessory.NewSwitch(accessory.Info{Name: strings.TrimSpace(h.Label)})
		a.Switch.On.SetValue(heatingOn(h.State))
		a.Switch.On.OnValueRemoteUpdate(func(on bool) {
			action := api.HeatingAction{ID: h.ID, Action: onOff(on)}
			c.send(ctx, "heating", h.ID, action.Action, func(done api.CompletionFunc) error {
				return c.Wrapper.CallHeatingAction(ctx, action, done, "")
			})
		})
		home.Heatings[h.ID] = a
		accessories = append(accessories, a.A)
	}

	home.Alarm = accessory.NewSwitch(accessory.Info{Name: "Alarm"})
	if level, ok := state.Get(api.LabelAlarm); ok {
		home.Alarm.Switch.On.SetValue(level == api.AlarmLevel(api.ActionOn))
	}
	home.Alarm.Switch.On.OnValueRemoteUpdate(func(on bool) {
		action := api.AlarmAction{Action: onOff(on)}
		if !on {
			action.Password = c.AlarmPassword
		}
		c.send(ctx, "alarm", 0, action.Action, func(done api.CompletionFunc) error {
			return c.Wrapper.CallAlarmLevelAction(ctx, action, done)
		})
	})
	accessories = append(accessories, home.Alarm.A)

	home.listener = home.sync
	for _, label := range []string{api.LabelScenarios, api.LabelDomotics, api.LabelHeatings, api.LabelAlarm} {
		if _, err := state.AddListener(label, &home.listener); err != nil {
			return nil, nil, fmt.Errorf("watch %s: %w", label, err)
		}
	}

	return home, accessories, nil
}

// Serve runs the HAP server until ctx is done.
func (c *Client) Serve(ctx context.Context, accessories []*accessory.A) error {
	bridge := accessory.NewBridge(accessory.Info{Name: c.Name})

	fs := hap.NewFsStore(c.StoreDir)
	server, err := hap.NewServer(fs, bridge.A, accessories...)
	if err != nil {
		return fmt.Errorf("create HAP server: %w", err)
	}
	server.Pin = c.PIN

	slog.Info("HAP server will listen and serve", slog.Int("accessories", len(accessories)))
	return server.ListenAndServe(ctx)
}

func (c *Client) send(ctx context.Context, kind string, id int, action string, call func(api.CompletionFunc) error) {
	attrs := []slog.Attr{
		slog.String("kind", kind),
		slog.Int("id", id),
		slog.String("action", action),
	}

	err := call(func(err error, ev api.MacroEvent) {
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			slog.LogAttrs(ctx, slog.LevelError, "failed to send action", attrs...)
			return
		}
		slog.LogAttrs(ctx, slog.LevelInfo, "sent action", attrs...)
	})
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
		slog.LogAttrs(ctx, slog.LevelError, "invalid action", attrs...)
	}
}

// sync reflects state changes, including ones made elsewhere, on the switches.
func (h *Home) sync(label string, value, old any, at time.Time) {
	switch label {
	case api.LabelScenarios:
		for _, s := range asSlice[api.Scenario](value) {
			if a := h.Scenarios[s.ID]; a != nil {
				a.Switch.On.SetValue(s.Active)
			}
		}
	case api.LabelDomotics:
		for _, d := range asSlice[api.Domotic](value) {
			if a := h.Domotics[d.ID]; a != nil {
				a.Switch.On.SetValue(d.SupposedState == api.ActionOn)
			}
		}
	case api.LabelHeatings:
		for _, hh := range asSlice[api.Heating](value) {
			if a := h.Heatings[hh.ID]; a != nil {
				a.Switch.On.SetValue(heatingOn(hh.State))
			}
		}
	case api.LabelAlarm:
		h.Alarm.Switch.On.SetValue(value == api.AlarmLevel(api.ActionOn))
	}
}

func asSlice[T any](value any) []T {
	s, _ := value.([]T)
	return s
}

func onOff(on bool) string {
	if on {
		return api.ActionOn
	}
	return api.ActionOff
}

// heatingOn reports whether a heating in mode is running. Eco and frost
// protection count as on.
func heatingOn(mode string) bool {
	return mode != "" && mode != api.ActionOff
}
