package messaging

import (
	"context"
	"sync"

	"github.com/sladdky/ah-mqttrouter/contracts"
)

// Request is the inbound side of a dispatch. It is not modified by the
// router; handlers that want to change it pass a copy to next.
type Request struct {
	Topic          string
	RawPayload     []byte
	Payload        any
	PayloadInvalid bool
	Metadata       contracts.Metadata

	ctx context.Context
}

// Context returns the request context, never nil
func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of r with its context changed to ctx
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx == nil {
		panic("nil context")
	}
	r2 := new(Request)
	*r2 = *r
	r2.ctx = ctx
	return r2
}

// PayloadString returns the payload if it decoded to a string
func (r *Request) PayloadString() (string, bool) {
	s, ok := r.Payload.(string)
	return s, ok
}

func newRequest(ctx context.Context, delivery Delivery, payload contracts.Payload) *Request {
	return &Request{
		Topic:          delivery.Topic,
		RawPayload:     delivery.Payload,
		Payload:        payload.Value,
		PayloadInvalid: payload.Invalid,
		Metadata:       delivery.Metadata,
		ctx:            ctx,
	}
}

type publishFunc func(ctx context.Context, topic string, payload []byte) error

// Response is the reply side of a dispatch. It sends at most one reply.
type Response struct {
	mu      sync.Mutex
	topic   string
	sent    bool
	publish publishFunc
}

func newResponse(topic string, publish publishFunc) *Response {
	return &Response{topic: topic, publish: publish}
}

// Topic returns the current reply topic
func (r *Response) Topic() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topic
}

// SetTopic changes the reply topic. It has no effect once a reply was sent.
func (r *Response) SetTopic(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sent {
		r.topic = topic
	}
}

// Sent reports whether a reply has been published
func (r *Response) Sent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// Send publishes message on the reply topic.
// It returns ErrUndefinedResponseTopic when no topic is set, and does nothing
// if a reply was already sent.
func (r *Response) Send(ctx context.Context, message []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.topic == "" {
		return ErrUndefinedResponseTopic
	}
	if r.sent {
		return nil
	}
	if err := r.publish(ctx, r.topic, message); err != nil {
		return err
	}
	r.sent = true
	return nil
}

// SendString publishes a text reply
func (r *Response) SendString(ctx context.Context, message string) error {
	return r.Send(ctx, []byte(message))
}
