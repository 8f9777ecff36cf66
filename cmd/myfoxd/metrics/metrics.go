// Package metrics exposes Prometheus metrics about the portal and the macros.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bartekpacia/myfox/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "myfox"

type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	macroSteps   *prometheus.CounterVec
	stateChanges *prometheus.CounterVec
	lastChange   *prometheus.GaugeVec

	macroListener api.MacroListener
	stateListener api.StateListener
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "portal_requests_total",
			Help:      "Requests sent to the Myfox portal.",
		}, []string{"code", "method"}),
		macroSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "macro_steps_total",
			Help:      "Macro steps reported to listeners.",
		}, []string{"state"}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_changes_total",
			Help:      "Changes of the tracked state channels.",
		}, []string{"label"}),
		lastChange: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_last_change_timestamp_seconds",
			Help:      "Time of the last change of a state channel.",
		}, []string{"label"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.macroSteps,
		m.stateChanges,
		m.lastChange,
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
	)

	m.macroListener = func(id string, data any, state api.MacroState, remaining int, at time.Time) bool {
		m.macroSteps.WithLabelValues(string(state)).Inc()
		return true
	}
	m.stateListener = func(label string, value, old any, at time.Time) {
		m.stateChanges.WithLabelValues(label).Inc()
		m.lastChange.WithLabelValues(label).Set(float64(at.Unix()))
	}

	return m
}

// HTTPClient returns a copy of client that counts its requests.
func (m *Metrics) HTTPClient(client *http.Client) *http.Client {
	c := *client
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c.Transport = promhttp.InstrumentRoundTripperCounter(m.requests, next)
	return &c
}

// Watch counts the macro steps and state changes of w.
func (m *Metrics) Watch(w api.Wrapper) error {
	w.AddMacroListener(&m.macroListener)

	for _, label := range api.DefaultStateLabels {
		if _, err := w.State().AddListener(label, &m.stateListener); err != nil {
			return fmt.Errorf("watch %s: %w", label, err)
		}
	}
	return nil
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
