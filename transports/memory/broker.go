package memory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sladdky/ah-mqttrouter/contracts"
	"github.com/sladdky/ah-mqttrouter/messaging"
)

type retainedMessage struct {
	payload []byte
	options contracts.PublishOptions
}

// Broker is an in-process publish/subscribe hub shared by its transports
type Broker struct {
	mu         sync.RWMutex
	transports map[*Transport]struct{}
	retained   map[string]retainedMessage
	logger     *slog.Logger
}

// BrokerOption configures the Broker
type BrokerOption func(*Broker)

// WithBrokerLogger sets the logger
func WithBrokerLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = logger
	}
}

// NewBroker creates an empty broker
func NewBroker(options ...BrokerOption) *Broker {
	b := &Broker{
		transports: make(map[*Transport]struct{}),
		retained:   make(map[string]retainedMessage),
		logger:     slog.Default(),
	}

	for _, opt := range options {
		opt(b)
	}

	return b
}

// Connect creates a transport attached to the broker
func (b *Broker) Connect(options ...TransportOption) *Transport {
	t := newTransport(b, options...)

	b.mu.Lock()
	b.transports[t] = struct{}{}
	b.mu.Unlock()

	return t
}

// Retained returns the number of retained topics
func (b *Broker) Retained() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.retained)
}

func (b *Broker) disconnect(t *Transport) {
	b.mu.Lock()
	delete(b.transports, t)
	b.mu.Unlock()
}

// route delivers a publish to every transport with a matching subscription.
// A retained publish with an empty payload clears the retained message.
func (b *Broker) route(topic string, payload []byte, options contracts.PublishOptions) {
	body := append([]byte(nil), payload...)

	b.mu.Lock()
	if options.Retain {
		if len(body) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = retainedMessage{payload: body, options: options}
		}
	}
	targets := make([]*Transport, 0, len(b.transports))
	for t := range b.transports {
		targets = append(targets, t)
	}
	b.mu.Unlock()

	delivered := 0
	for _, t := range targets {
		if t.matches(topic) {
			t.enqueue(newDelivery(topic, body, options, false))
			delivered++
		}
	}

	b.logger.Debug("message routed",
		"topic", topic,
		"retain", options.Retain,
		"transportCount", delivered,
	)
}

// replayRetained queues retained messages matching match for t
func (b *Broker) replayRetained(t *Transport, match func(string) bool) {
	b.mu.RLock()
	var pending []messaging.Delivery
	for topic, msg := range b.retained {
		if match(topic) {
			pending = append(pending, newDelivery(topic, msg.payload, msg.options, true))
		}
	}
	b.mu.RUnlock()

	for _, d := range pending {
		t.enqueue(d)
	}
}

func newDelivery(topic string, payload []byte, options contracts.PublishOptions, retained bool) messaging.Delivery {
	var headers map[string]interface{}
	if len(options.Headers) > 0 {
		headers = make(map[string]interface{}, len(options.Headers))
		for k, v := range options.Headers {
			headers[k] = v
		}
	}

	return messaging.Delivery{
		Topic:   topic,
		Payload: payload,
		Metadata: contracts.Metadata{
			MessageID: uuid.NewString(),
			QoS:       options.QoS,
			Retain:    retained,
			Timestamp: time.Now(),
			Headers:   headers,
		},
	}
}
