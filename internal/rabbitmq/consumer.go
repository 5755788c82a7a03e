package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler processes incoming messages
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// Consumer manages message consumption from RabbitMQ. Each consumer runs on
// its own channel and handles deliveries one at a time, in arrival order.
type Consumer struct {
	manager        *ConnectionManager
	prefetchCount  int
	handlerTimeout time.Duration
	requeueOnError bool
	tagPrefix      string
	logger         *slog.Logger

	mu     sync.Mutex
	active map[string]*consumerInfo
}

type consumerInfo struct {
	queue   string
	tag     string
	channel *amqp.Channel
	cancel  context.CancelFunc
	done    chan struct{}
}

// ConsumerOption configures the consumer
type ConsumerOption func(*Consumer)

// WithPrefetchCount sets the prefetch count
func WithPrefetchCount(count int) ConsumerOption {
	return func(c *Consumer) {
		c.prefetchCount = count
	}
}

// WithHandlerTimeout bounds the context passed to each handler call
func WithHandlerTimeout(timeout time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.handlerTimeout = timeout
	}
}

// WithRequeueOnError requeues deliveries whose handler returns an error
func WithRequeueOnError(requeue bool) ConsumerOption {
	return func(c *Consumer) {
		c.requeueOnError = requeue
	}
}

// WithConsumerTagPrefix sets the prefix of generated consumer tags
func WithConsumerTagPrefix(prefix string) ConsumerOption {
	return func(c *Consumer) {
		c.tagPrefix = prefix
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// NewConsumer creates a new consumer
func NewConsumer(manager *ConnectionManager, options ...ConsumerOption) *Consumer {
	c := &Consumer{
		manager:        manager,
		prefetchCount:  10,
		handlerTimeout: 30 * time.Second,
		tagPrefix:      "mqttrouter",
		logger:         slog.Default(),
		active:         make(map[string]*consumerInfo),
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

// Consume starts consuming from queue and returns the consumer tag.
// Deliveries are acked when handler succeeds and nacked otherwise.
func (c *Consumer) Consume(ctx context.Context, queue string, handler MessageHandler) (string, error) {
	tag := c.tagPrefix + "-" + uuid.NewString()[:8]

	ch, err := c.manager.Channel()
	if err != nil {
		return "", &ConsumerError{
			Queue:       queue,
			ConsumerTag: tag,
			Op:          "open channel",
			Err:         err,
			Timestamp:   time.Now(),
		}
	}

	if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
		_ = ch.Close()
		return "", fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return "", &ConsumerError{
			Queue:       queue,
			ConsumerTag: tag,
			Op:          "consume",
			Err:         err,
			Timestamp:   time.Now(),
		}
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	info := &consumerInfo{
		queue:   queue,
		tag:     tag,
		channel: ch,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	c.active[tag] = info
	c.mu.Unlock()

	go c.processMessages(consumerCtx, info, deliveries, handler)

	c.logger.Info("consuming from queue",
		"queue", queue,
		"consumerTag", tag,
		"prefetchCount", c.prefetchCount)

	return tag, nil
}

// Cancel stops the consumer with the given tag and waits for its in-flight
// delivery to finish. It must not be called from that consumer's handler.
func (c *Consumer) Cancel(tag string) error {
	c.mu.Lock()
	info, ok := c.active[tag]
	c.mu.Unlock()

	if !ok {
		return &ConsumerError{
			ConsumerTag: tag,
			Op:          "cancel",
			Err:         ErrConsumerNotFound,
			Timestamp:   time.Now(),
		}
	}

	info.cancel()
	<-info.done
	return nil
}

// CancelAll stops every active consumer
func (c *Consumer) CancelAll() {
	for _, tag := range c.Active() {
		if err := c.Cancel(tag); err != nil {
			c.logger.Debug("consumer already stopped", "consumerTag", tag)
		}
	}
}

// Active returns the tags of running consumers
func (c *Consumer) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	tags := make([]string, 0, len(c.active))
	for tag := range c.active {
		tags = append(tags, tag)
	}
	return tags
}

func (c *Consumer) processMessages(ctx context.Context, info *consumerInfo, deliveries <-chan amqp.Delivery, handler MessageHandler) {
	defer func() {
		if !info.channel.IsClosed() {
			_ = info.channel.Cancel(info.tag, false)
			_ = info.channel.Close()
		}
		c.mu.Lock()
		delete(c.active, info.tag)
		c.mu.Unlock()
		close(info.done)
		c.logger.Info("consumer stopped", "queue", info.queue, "consumerTag", info.tag)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed", "queue", info.queue)
				return
			}

			if err := c.handleMessage(ctx, delivery, handler); err != nil {
				c.logger.Error("failed to handle message",
					"error", err,
					"queue", info.queue,
					"messageId", delivery.MessageId)
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, delivery amqp.Delivery, handler MessageHandler) error {
	msgCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()

	err := handler(msgCtx, delivery)

	if err != nil {
		if nackErr := delivery.Nack(false, c.requeueOnError); nackErr != nil {
			c.logger.Error("failed to nack message",
				"error", nackErr,
				"originalError", err)
		}
		return err
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack message", "error", ackErr)
	}
	return nil
}
