// Package broker publishes state changes and macro steps to an MQTT broker.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bartekpacia/myfox/api"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	qos            = 1
	queueSize      = 256
)

// Client is the part of the paho client used by [Publisher].
type Client interface {
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
}

type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect connects to the broker and waits for the connection.
func Connect(o Options) (pahomqtt.Client, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		slog.Warn("lost connection to MQTT broker", slog.Any("error", err))
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout after %v", o.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", o.Broker, err)
	}

	slog.Info("connected to MQTT broker", slog.String("broker", o.Broker))
	return client, nil
}

// Publisher sends every state change, retained, to <topic>/<label> and every
// macro step to <topic>/macros.
//
// Listeners only queue messages; a single goroutine publishes them in order.
// Messages are dropped while the queue is full.
type Publisher struct {
	client Client
	topic  string
	queue  chan outgoing

	stateListener api.StateListener
	macroListener api.MacroListener
}

type outgoing struct {
	topic    string
	retained bool
	payload  []byte
}

type stateMessage struct {
	Label string    `json:"label"`
	Value any       `json:"value"`
	At    time.Time `json:"at"`
}

type macroMessage struct {
	api.MacroEvent
	At time.Time `json:"at"`
}

func NewPublisher(client Client, topic string) *Publisher {
	p := &Publisher{client: client, topic: topic, queue: make(chan outgoing, queueSize)}

	p.stateListener = func(label string, value, old any, at time.Time) {
		p.enqueue(p.topic+"/"+label, true, stateMessage{Label: label, Value: value, At: at})
	}
	p.macroListener = func(id string, data any, state api.MacroState, remaining int, at time.Time) bool {
		p.enqueue(p.topic+"/macros", false, macroMessage{
			MacroEvent: api.MacroEvent{ID: id, Data: data, State: state, Remaining: remaining},
			At:         at,
		})
		return true
	}

	return p
}

// Watch publishes the state changes and macro steps of w until ctx is done.
func (p *Publisher) Watch(ctx context.Context, w api.Wrapper) error {
	for _, label := range api.DefaultStateLabels {
		if _, err := w.State().AddListener(label, &p.stateListener); err != nil {
			return fmt.Errorf("watch %s: %w", label, err)
		}
	}
	w.AddMacroListener(&p.macroListener)

	go p.run(ctx)
	return nil
}

func (p *Publisher) enqueue(topic string, retained bool, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		slog.Error("failed to marshal message", slog.String("topic", topic), slog.Any("error", err))
		return
	}

	select {
	case p.queue <- outgoing{topic: topic, retained: retained, payload: payload}:
	default:
		slog.Warn("MQTT queue full, dropping message", slog.String("topic", topic))
	}
}

func (p *Publisher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-p.queue:
			p.publish(m)
		}
	}
}

func (p *Publisher) publish(m outgoing) {
	token := p.client.Publish(m.topic, qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		slog.Error("failed to publish", slog.String("topic", m.topic), slog.String("error", "timeout"))
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish", slog.String("topic", m.topic), slog.Any("error", err))
	}
}
