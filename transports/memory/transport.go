package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sladdky/ah-mqttrouter/contracts"
	"github.com/sladdky/ah-mqttrouter/messaging"
	"github.com/sladdky/ah-mqttrouter/topic"
)

// ErrClosed is returned by a transport after Close
var ErrClosed = errors.New("memory transport is closed")

// Transport is one client connection to a Broker. It implements
// messaging.Transport and delivers from a single goroutine in publish order.
type Transport struct {
	broker *Broker
	logger *slog.Logger

	mu       sync.Mutex
	listener messaging.DeliveryFunc
	patterns map[string]*topic.Matcher
	queue    []messaging.Delivery
	closed   bool

	signal chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// TransportOption configures the Transport
type TransportOption func(*Transport)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

func newTransport(broker *Broker, options ...TransportOption) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		broker:   broker,
		logger:   broker.logger,
		patterns: make(map[string]*topic.Matcher),
		signal:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, opt := range options {
		opt(t)
	}

	t.wg.Add(1)
	go t.deliverLoop()

	return t
}

// Subscribe implements messaging.Transport
func (t *Transport) Subscribe(ctx context.Context, pattern string) error {
	matcher := topic.Compile(pattern)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	_, existed := t.patterns[pattern]
	t.patterns[pattern] = matcher
	t.mu.Unlock()

	if !existed {
		t.broker.replayRetained(t, matcher.Match)
	}
	return nil
}

// Unsubscribe implements messaging.Transport
func (t *Transport) Unsubscribe(ctx context.Context, pattern string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	delete(t.patterns, pattern)
	return nil
}

// Publish implements messaging.Transport
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte, options contracts.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	t.broker.route(topic, payload, options)
	return nil
}

// SetListener implements messaging.Transport
func (t *Transport) SetListener(listener messaging.DeliveryFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = listener
}

// Patterns returns the subscribed patterns
func (t *Transport) Patterns() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	patterns := make([]string, 0, len(t.patterns))
	for p := range t.patterns {
		patterns = append(patterns, p)
	}
	return patterns
}

// Close detaches from the broker and stops delivery. Queued messages are
// dropped. It waits for the running delivery, so it must not be called from
// a listener.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.queue = nil
	t.mu.Unlock()

	t.broker.disconnect(t)
	t.cancel()
	t.wg.Wait()
	return nil
}

func (t *Transport) matches(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	for _, m := range t.patterns {
		if m.Match(topic) {
			return true
		}
	}
	return false
}

// enqueue never blocks, so handlers may publish to their own transport
func (t *Transport) enqueue(d messaging.Delivery) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.queue = append(t.queue, d)
	t.mu.Unlock()

	select {
	case t.signal <- struct{}{}:
	default:
	}
}

func (t *Transport) deliverLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.signal:
		}

		for {
			t.mu.Lock()
			if t.closed || len(t.queue) == 0 {
				t.mu.Unlock()
				break
			}
			d := t.queue[0]
			t.queue[0] = messaging.Delivery{}
			t.queue = t.queue[1:]
			listener := t.listener
			t.mu.Unlock()

			if listener == nil {
				t.logger.Debug("no listener, dropping message", "topic", d.Topic)
				continue
			}
			listener(t.ctx, d)
		}
	}
}
