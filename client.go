// Copyright 2024 ah-mqttrouter Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mqttrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sladdky/ah-mqttrouter/contracts"
	"github.com/sladdky/ah-mqttrouter/internal/rabbitmq"
	"github.com/sladdky/ah-mqttrouter/messaging"
	rabbitmqTransport "github.com/sladdky/ah-mqttrouter/transports/rabbitmq"
)

// Client bundles a transport, a router and a requestor
type Client struct {
	transport messaging.Transport
	router    *messaging.Router
	requestor *messaging.Requestor
	logger    *slog.Logger
}

// NewClient connects to RabbitMQ at url and returns a ready client
func NewClient(ctx context.Context, url string, options ...ClientOption) (*Client, error) {
	cfg := newClientConfig(options...)

	transportOpts := append([]rabbitmqTransport.TransportOption{
		rabbitmqTransport.WithLogger(cfg.logger),
		rabbitmqTransport.WithConnectionOptions(rabbitmq.WithConnectionName(cfg.connectionName)),
	}, cfg.transportOptions...)

	transport, err := rabbitmqTransport.NewTransport(ctx, url, transportOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	client, err := newClient(transport, cfg)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return client, nil
}

// NewClientWithTransport builds a client on an existing transport. Close
// closes the transport if it has a Close method.
func NewClientWithTransport(transport messaging.Transport, options ...ClientOption) (*Client, error) {
	return newClient(transport, newClientConfig(options...))
}

func newClient(transport messaging.Transport, cfg *clientConfig) (*Client, error) {
	routerOpts := []messaging.RouterOption{messaging.WithRouterLogger(cfg.logger)}
	if cfg.metrics != nil {
		routerOpts = append(routerOpts, messaging.WithRouterMetrics(cfg.metrics))
	}

	router, err := messaging.NewRouter(transport, routerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	requestor, err := messaging.NewRequestor(router,
		messaging.WithRequestTimeout(cfg.requestTimeout),
		messaging.WithRequestorLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create requestor: %w", err)
	}

	return &Client{
		transport: transport,
		router:    router,
		requestor: requestor,
		logger:    cfg.logger,
	}, nil
}

// Router returns the message router
func (c *Client) Router() *messaging.Router {
	return c.router
}

// Requestor returns the request/response helper
func (c *Client) Requestor() *messaging.Requestor {
	return c.requestor
}

// Transport returns the underlying transport
func (c *Client) Transport() messaging.Transport {
	return c.transport
}

// Subscribe registers handlers for pattern
func (c *Client) Subscribe(ctx context.Context, pattern string, handlers ...messaging.Handler) (*messaging.Subscription, error) {
	return c.router.Subscribe(ctx, pattern, handlers...)
}

// Unsubscribe removes the registration of pattern with exactly these handlers
func (c *Client) Unsubscribe(ctx context.Context, pattern string, handlers ...messaging.Handler) error {
	return c.router.Unsubscribe(ctx, pattern, handlers...)
}

// Publish sends payload on topic
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, options ...contracts.PublishOption) error {
	return c.router.Publish(ctx, topic, payload, options...)
}

// PublishJSON encodes value as JSON and sends it on topic
func (c *Client) PublishJSON(ctx context.Context, topic string, value any, options ...contracts.PublishOption) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode message for %s: %w", topic, err)
	}
	return c.Publish(ctx, topic, payload, options...)
}

// Request sends message on topic and waits for the first reply
func (c *Client) Request(ctx context.Context, topic, message string, options ...messaging.RequestOption) (*messaging.Request, error) {
	return c.requestor.Send(ctx, topic, message, options...)
}

// Close removes all subscriptions and closes the transport
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if err := c.router.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close router: %w", err))
	}
	if closer, ok := c.transport.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
		}
	}
	return errors.Join(errs...)
}

// clientConfig holds client configuration
type clientConfig struct {
	logger           *slog.Logger
	metrics          messaging.MetricsCollector
	requestTimeout   time.Duration
	connectionName   string
	transportOptions []rabbitmqTransport.TransportOption
}

func newClientConfig(options ...ClientOption) *clientConfig {
	cfg := &clientConfig{
		logger:         slog.Default(),
		requestTimeout: messaging.DefaultRequestTimeout,
		connectionName: "mqttrouter",
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithMetrics sets the metrics collector used by the router
func WithMetrics(collector messaging.MetricsCollector) ClientOption {
	return func(cfg *clientConfig) {
		cfg.metrics = collector
	}
}

// WithRequestTimeout sets how long Request waits for a reply
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.requestTimeout = timeout
	}
}

// WithConnectionName sets the connection name shown by the broker
func WithConnectionName(name string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connectionName = name
	}
}

// WithTransportOptions passes options to the RabbitMQ transport
func WithTransportOptions(opts ...rabbitmqTransport.TransportOption) ClientOption {
	return func(cfg *clientConfig) {
		cfg.transportOptions = append(cfg.transportOptions, opts...)
	}
}
