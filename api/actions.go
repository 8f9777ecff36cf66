package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mitchellh/copystructure"
)

// ScenarioAction plays, enables or disables a scenario.
type ScenarioAction struct {
	ID     int    `json:"id" validate:"required,gt=0"`
	Action string `json:"action" validate:"required,oneof=on off play"`
	// DelayMS postpones the action, in milliseconds.
	DelayMS int `json:"delay" validate:"gte=0"`
}

// DomoticAction switches a domotic device.
type DomoticAction struct {
	ID      int    `json:"id" validate:"required,gt=0"`
	Action  string `json:"action" validate:"required,oneof=on off"`
	DelayMS int    `json:"delay" validate:"gte=0"`
}

// HeatingAction changes the mode of a heating.
type HeatingAction struct {
	ID      int    `json:"id" validate:"required,gt=0"`
	Action  string `json:"action" validate:"required,oneof=on eco frost off"`
	DelayMS int    `json:"delay" validate:"gte=0"`
}

// AlarmAction changes the security level of the site. Password is checked
// against the account credentials before anything is sent.
type AlarmAction struct {
	Action   string `json:"action" validate:"required,oneof=on half off"`
	Password string `json:"password,omitempty"`
}

// Tracked items of the state channels.
type (
	Scenario struct {
		ID     int    `json:"id"`
		Label  string `json:"label"`
		Active bool   `json:"active"`
	}

	Domotic struct {
		ID            int    `json:"id"`
		Label         string `json:"label"`
		SupposedState string `json:"supposedState"`
	}

	Heating struct {
		ID    int    `json:"id"`
		Label string `json:"label"`
		State string `json:"state"`
	}

	// AlarmLevel is the value of the alarm channel: on, half or off.
	AlarmLevel string
)

// ParseActionID parses an id read from a path or a command line.
func ParseActionID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ValidationError{Field: "id", Message: "must be a number"}
	}
	return id, nil
}

// step is one action of a macro.
type step interface {
	delay() time.Duration
	undelayed() step
	request(now time.Time) (*Request, error)
	// apply records the effect of a successful call in the state store.
	apply(s *StateStore) error
}

func (a ScenarioAction) delay() time.Duration { return time.Duration(a.DelayMS) * time.Millisecond }

func (a ScenarioAction) undelayed() step {
	a.DelayMS = 0
	return a
}

func (a ScenarioAction) request(now time.Time) (*Request, error) {
	return &Request{
		Path:   fmt.Sprintf("/widget/{siteId}/scenario/%s/%d", a.Action, a.ID),
		Method: http.MethodGet,
		Parser: CodeParser,
		Query:  url.Values{"_": {strconv.FormatInt(now.UnixMilli(), 10)}},
	}, nil
}

func (a ScenarioAction) apply(s *StateStore) error {
	if a.Action == ActionPlay {
		return nil
	}
	return updateState(s, LabelScenarios, func(scenarios []Scenario) []Scenario {
		for i := range scenarios {
			if scenarios[i].ID == a.ID {
				scenarios[i].Active = a.Action == ActionOn
			}
		}
		return scenarios
	})
}

func (a DomoticAction) delay() time.Duration { return time.Duration(a.DelayMS) * time.Millisecond }

func (a DomoticAction) undelayed() step {
	a.DelayMS = 0
	return a
}

func (a DomoticAction) request(time.Time) (*Request, error) {
	return &Request{
		Path:   fmt.Sprintf("/widget/{siteId}/domotic/%s/%d", a.Action, a.ID),
		Method: http.MethodPost,
		Parser: CodeParser,
	}, nil
}

func (a DomoticAction) apply(s *StateStore) error {
	return updateState(s, LabelDomotics, func(domotics []Domotic) []Domotic {
		for i := range domotics {
			if domotics[i].ID == a.ID {
				domotics[i].SupposedState = a.Action
			}
		}
		return domotics
	})
}

func (a HeatingAction) delay() time.Duration { return time.Duration(a.DelayMS) * time.Millisecond }

func (a HeatingAction) undelayed() step {
	a.DelayMS = 0
	return a
}

func (a HeatingAction) request(time.Time) (*Request, error) {
	return &Request{
		Path:   fmt.Sprintf("/widget/{siteId}/heating/%s/%d", a.Action, a.ID),
		Method: http.MethodPost,
		Parser: CodeParser,
	}, nil
}

func (a HeatingAction) apply(s *StateStore) error {
	return updateState(s, LabelHeatings, func(heatings []Heating) []Heating {
		for i := range heatings {
			if heatings[i].ID == a.ID {
				heatings[i].State = a.Action
			}
		}
		return heatings
	})
}

func (a AlarmAction) delay() time.Duration { return 0 }

func (a AlarmAction) undelayed() step { return a }

func (a AlarmAction) request(time.Time) (*Request, error) {
	level, err := MapSecurityLevel(a.Action)
	if err != nil {
		return nil, err
	}
	return &Request{
		Path:   fmt.Sprintf("/widget/{siteId}/protection/seclev/%d", level),
		Method: http.MethodGet,
		Parser: CodeParser,
	}, nil
}

func (a AlarmAction) apply(s *StateStore) error {
	return s.Push(LabelAlarm, AlarmLevel(a.Action))
}

// updateState stores mutate's result on a deep copy of the current value of
// label. Nothing happens while the channel has no value.
func updateState[T any](s *StateStore, label string, mutate func(T) T) error {
	return s.Update(label, func(current any) (any, error) {
		if _, ok := current.(T); !ok {
			return nil, fmt.Errorf("state %q holds %T, not %T", label, current, *new(T))
		}

		copied, err := copystructure.Copy(current)
		if err != nil {
			return nil, fmt.Errorf("copy state %q: %w", label, err)
		}
		return mutate(copied.(T)), nil
	})
}

// validateSteps validates first and next and returns them in order.
func validateSteps[A step](first A, next []A) ([]step, error) {
	steps := make([]step, 0, len(next)+1)
	for _, a := range append([]A{first}, next...) {
		if err := validateStruct(a); err != nil {
			return nil, err
		}
		steps = append(steps, a)
	}
	return steps, nil
}
