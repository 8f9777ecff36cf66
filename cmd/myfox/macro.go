package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/bartekpacia/myfox/api"
	"github.com/google/uuid"
)

// minAliasScore is the lowest similarity accepted for a scenario name.
const minAliasScore = 0.5

// stepTimeout bounds the wait for each action of a macro, on top of its delays.
const stepTimeout = 30 * time.Second

// step is an action given on the command line.
type step struct {
	ID      int
	Action  string
	DelayMS int
}

// parseStep parses "id:action[:delay]", e.g. "12:off:10s". resolve turns the
// id part into a number.
func parseStep(s string, resolve func(string) (int, error)) (step, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return step{}, fmt.Errorf("invalid step %q, want id:action[:delay]", s)
	}

	id, err := resolve(parts[0])
	if err != nil {
		return step{}, err
	}

	st := step{ID: id, Action: parts[1]}
	if len(parts) == 3 {
		d, err := time.ParseDuration(parts[2])
		if err != nil {
			return step{}, fmt.Errorf("invalid delay of step %q: %w", s, err)
		}
		st.DelayMS = int(d.Milliseconds())
	}

	return st, nil
}

// scenarioResolver resolves scenario ids, or names found in aliases.
func scenarioResolver(aliases map[string]int) func(string) (int, error) {
	return func(s string) (int, error) {
		if id, err := strconv.Atoi(s); err == nil {
			return id, nil
		}

		name, id, score := bestScenarioMatch(s, aliases)
		if score < minAliasScore {
			return 0, fmt.Errorf("no scenario named %q", s)
		}

		slog.Debug("matched scenario", slog.String("query", s), slog.String("name", name), slog.Int("id", id), slog.Float64("score", score))
		return id, nil
	}
}

func bestScenarioMatch(query string, aliases map[string]int) (string, int, float64) {
	var (
		bestName  string
		bestID    int
		bestScore float64
	)

	for name, id := range aliases {
		score := strutil.Similarity(strings.ToLower(query), strings.ToLower(name), metrics.NewSorensenDice())
		if score > bestScore || (score == bestScore && name < bestName) {
			bestName, bestID, bestScore = name, id, score
		}
	}

	return bestName, bestID, bestScore
}

// startFunc starts a macro under macroID.
type startFunc func(done api.CompletionFunc, macroID string) error

// runMacro starts a macro and waits until its last action was sent, or until
// ctx is done.
func runMacro(ctx context.Context, w api.Wrapper, steps []step, start startFunc) error {
	macroID := uuid.NewString()
	finished := make(chan struct{}, 1)

	var total time.Duration
	for _, s := range steps {
		total += time.Duration(s.DelayMS)*time.Millisecond + stepTimeout
	}

	listener := api.MacroListener(func(id string, data any, state api.MacroState, remaining int, at time.Time) bool {
		if id != macroID {
			return true
		}

		slog.Info("macro step", slog.String("state", string(state)), slog.Int("remaining", remaining))
		if state == api.MacroFinished {
			finished <- struct{}{}
			return false
		}
		return true
	})
	w.AddMacroListener(&listener)
	defer w.RemoveMacroListener(&listener)

	first := make(chan error, 1)
	err := start(func(err error, ev api.MacroEvent) {
		if err == nil {
			slog.Info("action sent", slog.String("state", string(ev.State)), slog.Int("remaining", ev.Remaining))
			if ev.State == api.MacroFinished {
				finished <- struct{}{}
			}
		}
		first <- err
	}, macroID)
	if err != nil {
		return err
	}

	timer := time.NewTimer(total)
	defer timer.Stop()

	select {
	case err := <-first:
		if err != nil {
			return fmt.Errorf("first action failed: %w", err)
		}
	case <-timer.C:
		return fmt.Errorf("macro %s timed out", macroID)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-timer.C:
		return fmt.Errorf("macro %s timed out, see logs for failed actions", macroID)
	case <-ctx.Done():
		return ctx.Err()
	}
}
