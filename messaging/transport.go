package messaging

import (
	"context"

	"github.com/sladdky/ah-mqttrouter/contracts"
)

// Delivery is one inbound message handed over by the transport
type Delivery struct {
	Topic    string
	Payload  []byte
	Metadata contracts.Metadata
}

// DeliveryFunc receives inbound deliveries from a transport
type DeliveryFunc func(ctx context.Context, delivery Delivery)

// Transport is the publish/subscribe connection the router sits on.
//
// Implementations deliver inbound messages to a single listener, one at a
// time and in the order the broker presented them.
type Transport interface {
	// Subscribe asks the broker for messages matching pattern
	Subscribe(ctx context.Context, pattern string) error

	// Unsubscribe withdraws a broker subscription
	Unsubscribe(ctx context.Context, pattern string) error

	// Publish sends payload on topic
	Publish(ctx context.Context, topic string, payload []byte, options contracts.PublishOptions) error

	// SetListener installs the listener for inbound deliveries, replacing any
	// previous one. A nil listener detaches; deliveries are then dropped.
	SetListener(listener DeliveryFunc)
}
