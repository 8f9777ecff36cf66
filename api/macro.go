package api

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// MacroState is the progress of a macro reported to callbacks and listeners.
type MacroState string

const (
	MacroDelayed  MacroState = "delayed"
	MacroProgress MacroState = "progress"
	MacroFinished MacroState = "finished"
)

// MacroEvent reports one step of a macro. ID is empty for a single action
// without delay.
type MacroEvent struct {
	ID        string     `json:"id"`
	Data      any        `json:"data,omitempty"`
	State     MacroState `json:"state"`
	Remaining int        `json:"remaining"`
}

// CompletionFunc receives the outcome of the first step of a macro.
type CompletionFunc func(err error, ev MacroEvent)

// MacroListener receives the steps of macros that happen after the caller got
// its [CompletionFunc] result. Returning false unregisters the listener.
type MacroListener func(id string, data any, state MacroState, remaining int, at time.Time) bool

// MacroRegistry holds macro listeners. Listeners are identified by pointer.
type MacroRegistry struct {
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	listeners []*MacroListener
}

func NewMacroRegistry(logger *slog.Logger) *MacroRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &MacroRegistry{logger: logger, now: time.Now}
}

// Add registers l. It returns false if l is already registered.
func (r *MacroRegistry) Add(l *MacroListener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.listeners, l) {
		return false
	}
	r.listeners = append(r.listeners, l)
	return true
}

// Remove unregisters l. It returns false if l was not registered.
func (r *MacroRegistry) Remove(l *MacroListener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.Index(r.listeners, l)
	if i < 0 {
		return false
	}
	r.listeners = slices.Delete(r.listeners, i, i+1)
	return true
}

// Notify sends ev to every listener. A non-nil err is only logged: listeners
// never see errors.
func (r *MacroRegistry) Notify(err error, ev MacroEvent) {
	if err != nil {
		r.logger.Error("macro step failed", slog.String("macro_id", ev.ID), slog.Any("error", err))
		return
	}

	r.mu.Lock()
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	at := r.now()
	var done []*MacroListener
	for _, l := range listeners {
		if !r.call(l, ev, at) {
			done = append(done, l)
		}
	}

	for _, l := range done {
		r.Remove(l)
	}
}

// call runs l, keeping it registered if it panics.
func (r *MacroRegistry) call(l *MacroListener, ev MacroEvent, at time.Time) (keep bool) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("macro listener panicked", slog.String("macro_id", ev.ID), slog.Any("panic", v))
			keep = true
		}
	}()
	return (*l)(ev.ID, ev.Data, ev.State, ev.Remaining, at)
}

// Len returns the number of registered listeners.
func (r *MacroRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}
