package api

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"
)

// Labels of the state channels tracked by a wrapper.
const (
	LabelStatus    = "status"
	LabelAlarm     = "alarm"
	LabelScenarios = "scenarios"
	LabelDomotics  = "domotics"
	LabelSensors   = "sensors"
	LabelHeatings  = "heatings"
)

var DefaultStateLabels = []string{
	LabelStatus,
	LabelAlarm,
	LabelScenarios,
	LabelDomotics,
	LabelSensors,
	LabelHeatings,
}

// StateListener is called when the value of a channel changes. old is nil
// when the channel had no value yet.
type StateListener func(label string, value, old any, at time.Time)

type stateChannel struct {
	value     any
	set       bool
	listeners []*StateListener
}

// StateStore keeps the last known value of a fixed set of channels and tells
// listeners when one of them changes.
//
// Values are stored as pushed. Callers must not mutate a value after pushing
// it, nor a value returned by Get: copy it first.
//
// Listeners cannot be removed.
type StateStore struct {
	now func() time.Time

	mu       sync.Mutex
	channels map[string]*stateChannel
}

func NewStateStore(labels ...string) *StateStore {
	channels := make(map[string]*stateChannel, len(labels))
	for _, label := range labels {
		channels[label] = &stateChannel{}
	}

	return &StateStore{now: time.Now, channels: channels}
}

// AddListener registers fn on the channel label. It returns false if fn is
// already registered there.
func (s *StateStore) AddListener(label string, fn *StateListener) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[label]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownStateLabel, label)
	}

	for _, l := range ch.listeners {
		if l == fn {
			return false, nil
		}
	}

	ch.listeners = append(ch.listeners, fn)
	return true, nil
}

// Push stores value, notifying listeners if it differs from the previous
// value. The first value of a channel is not notified.
func (s *StateStore) Push(label string, value any) error {
	return s.PushWithOptions(label, value, true)
}

// PushWithOptions is like Push. With skipFirst false, the first value of a
// channel is notified too.
func (s *StateStore) PushWithOptions(label string, value any, skipFirst bool) error {
	s.mu.Lock()
	ch, ok := s.channels[label]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownStateLabel, label)
	}

	old, listeners := ch.store(value, skipFirst)
	s.mu.Unlock()

	s.notify(label, value, old, listeners)
	return nil
}

// Update replaces the value of label with the result of fn, called with the
// current value while the store is locked. fn is not called while the
// channel has no value. fn must not mutate old nor call back into the store.
func (s *StateStore) Update(label string, fn func(old any) (any, error)) error {
	s.mu.Lock()
	ch, ok := s.channels[label]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownStateLabel, label)
	}
	if !ch.set {
		s.mu.Unlock()
		return nil
	}

	value, err := fn(ch.value)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	old, listeners := ch.store(value, true)
	s.mu.Unlock()

	s.notify(label, value, old, listeners)
	return nil
}

// store sets value and returns the previous one along with the listeners to
// notify. The caller holds the store mutex.
func (ch *stateChannel) store(value any, skipFirst bool) (any, []*StateListener) {
	old, wasSet := ch.value, ch.set
	changed := !reflect.DeepEqual(old, value)
	ch.value, ch.set = value, true

	if !changed || (skipFirst && !wasSet) {
		return old, nil
	}
	return old, slices.Clone(ch.listeners)
}

func (s *StateStore) notify(label string, value, old any, listeners []*StateListener) {
	if len(listeners) == 0 {
		return
	}

	at := s.now()
	for _, l := range listeners {
		(*l)(label, value, old, at)
	}
}

// Get returns the current value of label, and whether it was ever pushed.
func (s *StateStore) Get(label string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[label]
	if !ok || !ch.set {
		return nil, false
	}
	return ch.value, true
}

// Snapshot returns the current value of every channel that has one.
func (s *StateStore) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]any, len(s.channels))
	for label, ch := range s.channels {
		if ch.set {
			snapshot[label] = ch.value
		}
	}
	return snapshot
}
