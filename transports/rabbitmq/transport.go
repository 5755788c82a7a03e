package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sladdky/ah-mqttrouter/contracts"
	"github.com/sladdky/ah-mqttrouter/internal/rabbitmq"
	"github.com/sladdky/ah-mqttrouter/messaging"
	"github.com/sladdky/ah-mqttrouter/topic"
)

const (
	// DefaultExchange is the topic exchange used when none is configured
	DefaultExchange = "mqttrouter"

	// HeaderTopic carries the original topic so levels survive the key mapping
	HeaderTopic  = "x-topic"
	HeaderQoS    = "x-qos"
	HeaderRetain = "x-retain"
)

// ErrClosed is returned after Close
var ErrClosed = errors.New("rabbitmq transport is closed")

type publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

type binder interface {
	BindQueue(ctx context.Context, binding rabbitmq.Binding) error
	UnbindQueue(ctx context.Context, binding rabbitmq.Binding) error
}

// Transport implements messaging.Transport over a RabbitMQ topic exchange.
//
// Each transport owns one exclusive, auto-deleted queue. Subscriptions
// become bindings on that queue and a single consumer feeds the listener,
// so deliveries arrive one at a time in queue order. After a reconnect the
// queue, its bindings and the consumer are restored.
type Transport struct {
	manager   *rabbitmq.ConnectionManager
	pool      *rabbitmq.ChannelPool
	topology  *rabbitmq.TopologyManager
	publisher publisher
	bindings  binder
	consumer  *rabbitmq.Consumer
	exchange  string
	queue     string
	logger    *slog.Logger

	listenerMu sync.RWMutex
	listener   messaging.DeliveryFunc

	mu          sync.Mutex
	patterns    map[string]string
	keyRefs     map[string]int
	consumerTag string
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
}

// TransportConfig holds configuration for the transport
type TransportConfig struct {
	Exchange          string
	QueuePrefix       string
	Logger            *slog.Logger
	ConnectionOptions []rabbitmq.ConnectionOption
	PublisherOptions  []rabbitmq.PublisherOption
	ConsumerOptions   []rabbitmq.ConsumerOption
}

// TransportOption configures the transport
type TransportOption func(*TransportConfig)

// WithExchange sets the topic exchange name
func WithExchange(name string) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Exchange = name
	}
}

// WithQueuePrefix sets the prefix of the generated queue name
func WithQueuePrefix(prefix string) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.QueuePrefix = prefix
	}
}

// WithLogger sets the logger for the transport and its connection
func WithLogger(logger *slog.Logger) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.Logger = logger
	}
}

// WithConnectionOptions sets connection options
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConnectionOptions = append(cfg.ConnectionOptions, opts...)
	}
}

// WithPublisherOptions sets publisher options
func WithPublisherOptions(opts ...rabbitmq.PublisherOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.PublisherOptions = append(cfg.PublisherOptions, opts...)
	}
}

// WithConsumerOptions sets consumer options
func WithConsumerOptions(opts ...rabbitmq.ConsumerOption) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.ConsumerOptions = append(cfg.ConsumerOptions, opts...)
	}
}

func newConfig(options ...TransportOption) *TransportConfig {
	cfg := &TransportConfig{
		Exchange:    DefaultExchange,
		QueuePrefix: "mqttrouter",
		Logger:      slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// NewTransport connects to url, declares the exchange and starts consuming
// from a private queue
func NewTransport(ctx context.Context, url string, options ...TransportOption) (*Transport, error) {
	cfg := newConfig(options...)
	if cfg.Exchange == "" {
		return nil, fmt.Errorf("%w: exchange name is required", rabbitmq.ErrInvalidConfiguration)
	}

	connOpts := append([]rabbitmq.ConnectionOption{rabbitmq.WithLogger(cfg.Logger)}, cfg.ConnectionOptions...)
	manager := rabbitmq.NewConnectionManager(url, connOpts...)
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	pool, err := rabbitmq.NewChannelPool(manager)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to create channel pool: %w", err)
	}

	pubOpts := append([]rabbitmq.PublisherOption{rabbitmq.WithPublisherLogger(cfg.Logger)}, cfg.PublisherOptions...)
	pub, err := rabbitmq.NewPublisher(manager, pubOpts...)
	if err != nil {
		pool.Close()
		manager.Close()
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	consOpts := append([]rabbitmq.ConsumerOption{rabbitmq.WithConsumerLogger(cfg.Logger)}, cfg.ConsumerOptions...)

	t := newTransport(cfg)
	t.manager = manager
	t.pool = pool
	t.topology = rabbitmq.NewTopologyManager(pool)
	t.bindings = t.topology
	t.publisher = pub
	t.consumer = rabbitmq.NewConsumer(manager, consOpts...)

	t.mu.Lock()
	err = t.startConsumingLocked(ctx)
	t.mu.Unlock()
	if err != nil {
		t.Close()
		return nil, err
	}

	manager.AddStateListener(&reconnectListener{transport: t})

	t.logger.Info("rabbitmq transport ready", "exchange", t.exchange, "queue", t.queue)
	return t, nil
}

func newTransport(cfg *TransportConfig) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		exchange: cfg.Exchange,
		queue:    cfg.QueuePrefix + "-" + uuid.NewString(),
		logger:   cfg.Logger,
		patterns: make(map[string]string),
		keyRefs:  make(map[string]int),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Subscribe implements messaging.Transport. Patterns that translate to the
// same binding key share one binding.
func (t *Transport) Subscribe(ctx context.Context, pattern string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if _, ok := t.patterns[pattern]; ok {
		return nil
	}

	key := topic.ToBindingKey(pattern)
	if t.keyRefs[key] == 0 {
		if err := t.bindings.BindQueue(ctx, t.binding(key)); err != nil {
			return fmt.Errorf("failed to bind %s: %w", pattern, err)
		}
		t.logger.Debug("bound pattern", "pattern", pattern, "bindingKey", key)
	}

	t.patterns[pattern] = key
	t.keyRefs[key]++
	return nil
}

// Unsubscribe implements messaging.Transport
func (t *Transport) Unsubscribe(ctx context.Context, pattern string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	key, ok := t.patterns[pattern]
	if !ok {
		return nil
	}

	if t.keyRefs[key] == 1 {
		if err := t.bindings.UnbindQueue(ctx, t.binding(key)); err != nil {
			return fmt.Errorf("failed to unbind %s: %w", pattern, err)
		}
		t.logger.Debug("unbound pattern", "pattern", pattern, "bindingKey", key)
	}

	delete(t.patterns, pattern)
	if t.keyRefs[key]--; t.keyRefs[key] == 0 {
		delete(t.keyRefs, key)
	}
	return nil
}

// Publish implements messaging.Transport
func (t *Transport) Publish(ctx context.Context, topicName string, payload []byte, options contracts.PublishOptions) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return t.publisher.Publish(ctx, t.exchange, topic.ToRoutingKey(topicName), toPublishing(topicName, payload, options))
}

// SetListener implements messaging.Transport
func (t *Transport) SetListener(listener messaging.DeliveryFunc) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
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

// Queue returns the name of the transport's private queue
func (t *Transport) Queue() string {
	return t.queue
}

// IsConnected reports whether the underlying connection is up
func (t *Transport) IsConnected() bool {
	return t.manager != nil && t.manager.IsConnected()
}

// Close stops consuming and closes the connection. The private queue is
// removed by the broker. Close waits for the running delivery, so it must
// not be called from a listener.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.consumerTag = ""
	t.mu.Unlock()

	t.cancel()

	if t.consumer != nil {
		t.consumer.CancelAll()
	}

	var errs []error
	if closer, ok := t.publisher.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if t.pool != nil {
		errs = append(errs, t.pool.Close())
	}
	if t.manager != nil {
		errs = append(errs, t.manager.Close())
	}
	return errors.Join(errs...)
}

func (t *Transport) binding(key string) rabbitmq.Binding {
	return rabbitmq.Binding{
		Queue:      t.queue,
		Exchange:   t.exchange,
		RoutingKey: key,
	}
}

// startConsumingLocked declares the exchange and the private queue with its
// current bindings, then starts the consumer; the caller holds t.mu
func (t *Transport) startConsumingLocked(ctx context.Context) error {
	declared := rabbitmq.Topology{
		Exchanges: []rabbitmq.ExchangeDeclaration{{
			Name:    t.exchange,
			Type:    amqp.ExchangeTopic,
			Durable: true,
		}},
		Queues: []rabbitmq.QueueDeclaration{{
			Name:       t.queue,
			Exclusive:  true,
			AutoDelete: true,
		}},
	}
	for key := range t.keyRefs {
		declared.Bindings = append(declared.Bindings, t.binding(key))
	}

	if err := t.topology.DeclareTopology(ctx, declared); err != nil {
		return fmt.Errorf("failed to declare topology: %w", err)
	}

	tag, err := t.consumer.Consume(t.ctx, t.queue, t.handleDelivery)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	t.consumerTag = tag
	return nil
}

// handleDelivery passes one broker delivery to the listener. Deliveries are
// acked once the listener returns; handler failures are the router's concern.
func (t *Transport) handleDelivery(_ context.Context, d amqp.Delivery) error {
	t.listenerMu.RLock()
	listener := t.listener
	t.listenerMu.RUnlock()

	if listener == nil {
		t.logger.Debug("no listener, dropping delivery", "routingKey", d.RoutingKey)
		return nil
	}

	listener(t.ctx, toDelivery(d))
	return nil
}

func (t *Transport) restore() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	ctx, cancel := context.WithTimeout(t.ctx, 30*time.Second)
	defer cancel()

	if err := t.startConsumingLocked(ctx); err != nil {
		t.logger.Error("failed to restore subscriptions after reconnect",
			"queue", t.queue,
			"error", err)
		return
	}

	t.logger.Info("restored subscriptions after reconnect",
		"queue", t.queue,
		"consumerTag", t.consumerTag,
		"bindings", len(t.keyRefs))
}

type reconnectListener struct {
	transport *Transport
}

func (l *reconnectListener) OnConnected() {
	l.transport.restore()
}

func (l *reconnectListener) OnDisconnected(err error) {
	l.transport.logger.Warn("rabbitmq transport disconnected", "error", err)
}

func (l *reconnectListener) OnReconnecting(attempt int) {
	l.transport.logger.Info("rabbitmq transport reconnecting", "attempt", attempt)
}

func toPublishing(topicName string, payload []byte, options contracts.PublishOptions) amqp.Publishing {
	headers := amqp.Table{}
	for k, v := range options.Headers {
		headers[k] = v
	}
	headers[HeaderTopic] = topicName
	headers[HeaderQoS] = int32(options.QoS)
	if options.Retain {
		headers[HeaderRetain] = true
	}

	deliveryMode := amqp.Transient
	if options.QoS > 0 {
		deliveryMode = amqp.Persistent
	}

	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/octet-stream",
		DeliveryMode: deliveryMode,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         payload,
	}
}

func toDelivery(d amqp.Delivery) messaging.Delivery {
	topicName, ok := d.Headers[HeaderTopic].(string)
	if !ok {
		topicName = topic.FromRoutingKey(d.RoutingKey)
	}

	metadata := contracts.Metadata{
		MessageID: d.MessageId,
		Duplicate: d.Redelivered,
		Timestamp: d.Timestamp,
	}

	for k, v := range d.Headers {
		switch k {
		case HeaderTopic:
		case HeaderQoS:
			metadata.QoS = headerByte(v)
		case HeaderRetain:
			metadata.Retain, _ = v.(bool)
		default:
			if metadata.Headers == nil {
				metadata.Headers = make(map[string]interface{})
			}
			metadata.Headers[k] = v
		}
	}

	return messaging.Delivery{
		Topic:    topicName,
		Payload:  d.Body,
		Metadata: metadata,
	}
}

// headerByte reads a small integer header whatever width the broker chose
func headerByte(v interface{}) byte {
	switch n := v.(type) {
	case int8:
		return byte(n)
	case uint8:
		return n
	case int16:
		return byte(n)
	case int32:
		return byte(n)
	case int64:
		return byte(n)
	case int:
		return byte(n)
	}
	return 0
}
