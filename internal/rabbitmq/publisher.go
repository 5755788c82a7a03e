package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes messages with broker confirmation over a dedicated
// confirm-mode channel. Publishes are serialized so each confirmation
// pairs with the message that produced it.
type Publisher struct {
	manager        *ConnectionManager
	confirmTimeout time.Duration
	publishTimeout time.Duration
	maxRetries     int
	retryDelay     time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
	closed   bool
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithConfirmTimeout sets the confirmation timeout
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.confirmTimeout = timeout
	}
}

// WithPublishTimeout sets the overall publish timeout used when ctx has no deadline
func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.publishTimeout = timeout
	}
}

// WithPublishRetries sets the maximum number of publish retries
func WithPublishRetries(retries int) PublisherOption {
	return func(p *Publisher) {
		p.maxRetries = retries
	}
}

// WithRetryDelay sets the base delay between publish attempts
func WithRetryDelay(delay time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.retryDelay = delay
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a new publisher
func NewPublisher(manager *ConnectionManager, options ...PublisherOption) (*Publisher, error) {
	if manager == nil {
		return nil, ErrInvalidConfiguration
	}

	p := &Publisher{
		manager:        manager,
		confirmTimeout: 5 * time.Second,
		publishTimeout: 10 * time.Second,
		maxRetries:     3,
		retryDelay:     time.Second,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	if p.maxRetries < 0 {
		return nil, fmt.Errorf("%w: publish retries cannot be negative", ErrInvalidConfiguration)
	}

	return p, nil
}

// Publish publishes a message and waits for the broker to confirm it
func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * p.retryDelay):
			case <-ctx.Done():
				return &PublishError{
					Exchange:   exchange,
					RoutingKey: routingKey,
					Err:        ctx.Err(),
					Timestamp:  time.Now(),
				}
			}
		}

		err := p.publishWithConfirm(ctx, exchange, routingKey, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			break
		}

		p.logger.Warn("publish attempt failed",
			"exchange", exchange,
			"routingKey", routingKey,
			"attempt", attempt+1,
			"error", err)
	}

	return &PublishError{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Err:        lastErr,
		Timestamp:  time.Now(),
	}
}

// Close closes the confirm channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.resetLocked()
}

func (p *Publisher) publishWithConfirm(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPublisherClosed
	}

	if err := p.ensureChannelLocked(); err != nil {
		return err
	}

	if err := p.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		_ = p.resetLocked()
		return fmt.Errorf("failed to publish: %w", err)
	}

	timer := time.NewTimer(p.confirmTimeout)
	defer timer.Stop()

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			_ = p.resetLocked()
			return ErrChannelClosed
		}
		if !confirm.Ack {
			return ErrPublishNotConfirmed
		}
		return nil

	case <-timer.C:
		// the pending confirmation would pair with the next publish
		_ = p.resetLocked()
		return ErrPublishTimeout

	case <-ctx.Done():
		_ = p.resetLocked()
		return ctx.Err()
	}
}

// ensureChannelLocked opens the confirm channel if there is none usable
func (p *Publisher) ensureChannelLocked() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}

	ch, err := p.manager.Channel()
	if err != nil {
		return &ChannelError{
			Op:        "open confirm channel",
			ChannelID: "publisher",
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to enable confirms: %w", err)
	}

	p.ch = ch
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return nil
}

func (p *Publisher) resetLocked() error {
	if p.ch == nil {
		return nil
	}
	ch := p.ch
	p.ch = nil
	p.confirms = nil
	if ch.IsClosed() {
		return nil
	}
	return ch.Close()
}
