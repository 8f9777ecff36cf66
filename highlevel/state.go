package highlevel

import (
	"fmt"
	"slices"

	"github.com/bartekpacia/myfox/api"
	"github.com/bartekpacia/myfox/cfg"
)

// SeedState pushes the scenarios, domotics and heatings named in config, so
// that actions on them are tracked. Items are ordered by label.
//
// The first push of a channel does not notify listeners.
func SeedState(store *api.StateStore, config *cfg.Config) error {
	scenarios := named(config.Scenarios, func(label string, id int) api.Scenario {
		return api.Scenario{ID: id, Label: label}
	})
	domotics := named(config.Domotics, func(label string, id int) api.Domotic {
		return api.Domotic{ID: id, Label: label}
	})
	heatings := named(config.Heatings, func(label string, id int) api.Heating {
		return api.Heating{ID: id, Label: label}
	})

	for label, value := range map[string]any{
		api.LabelScenarios: scenarios,
		api.LabelDomotics:  domotics,
		api.LabelHeatings:  heatings,
	} {
		if err := store.Push(label, value); err != nil {
			return fmt.Errorf("seed %s: %w", label, err)
		}
	}

	return nil
}

func named[T any](ids map[string]int, build func(label string, id int) T) []T {
	labels := make([]string, 0, len(ids))
	for label := range ids {
		labels = append(labels, label)
	}
	slices.Sort(labels)

	items := make([]T, 0, len(ids))
	for _, label := range labels {
		items = append(items, build(label, ids[label]))
	}
	return items
}
