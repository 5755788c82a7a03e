package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sladdky/ah-mqttrouter/contracts"
)

// DefaultRequestTimeout is how long Send waits for a reply
const DefaultRequestTimeout = 5000 * time.Millisecond

// ResponseTopicPrefix is the prefix of generated reply topics
const ResponseTopicPrefix = "response/"

// Requestor sends requests through a Router and waits for one reply.
//
// Generated reply topics are picked at random from 10000 values, so two
// requests in flight at once can collide. Callers that need isolation pass
// WithResponseTopic.
type Requestor struct {
	router   *Router
	timeout  time.Duration
	logger   *slog.Logger
	newTopic func() string
}

// RequestorOption configures the Requestor
type RequestorOption func(*Requestor)

// WithRequestTimeout sets how long to wait for a reply
func WithRequestTimeout(timeout time.Duration) RequestorOption {
	return func(r *Requestor) {
		r.timeout = timeout
	}
}

// WithRequestorLogger sets the logger
func WithRequestorLogger(logger *slog.Logger) RequestorOption {
	return func(r *Requestor) {
		r.logger = logger
	}
}

// RequestOption configures a single request
type RequestOption func(*requestConfig)

type requestConfig struct {
	responseTopic string
}

// WithResponseTopic sets the topic the reply is expected on
func WithResponseTopic(topic string) RequestOption {
	return func(c *requestConfig) {
		c.responseTopic = topic
	}
}

// Result is the outcome of an asynchronous request
type Result struct {
	Reply *Request
	Err   error
}

// NewRequestor creates a requestor on top of router
func NewRequestor(router *Router, options ...RequestorOption) (*Requestor, error) {
	if router == nil {
		return nil, fmt.Errorf("router cannot be nil")
	}

	r := &Requestor{
		router:   router,
		timeout:  DefaultRequestTimeout,
		logger:   router.logger,
		newTopic: randomResponseTopic,
	}

	for _, opt := range options {
		opt(r)
	}

	if r.timeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive")
	}

	return r, nil
}

// Send publishes message on topic wrapped in a reply envelope and waits for
// the first message on the reply topic.
//
// The reply subscription is made before publishing and removed on every
// return path. A timeout returns a *TimeoutError; a cancelled ctx returns
// ctx.Err().
//
// Send blocks the calling goroutine until the reply arrives. The bundled
// transports deliver every message, replies included, from one goroutine, so
// a handler must not call Send directly: it would hold up its own reply until
// the timeout. Run it in a new goroutine (or use SendAsync) and finish
// through res.Send or a deferred next once it returns.
func (r *Requestor) Send(ctx context.Context, topic, message string, options ...RequestOption) (*Request, error) {
	var cfg requestConfig
	for _, opt := range options {
		opt(&cfg)
	}

	responseTopic := cfg.responseTopic
	if responseTopic == "" {
		responseTopic = r.newTopic()
	}

	start := time.Now()
	replies := make(chan *Request, 1)
	onReply := HandlerFunc(func(req *Request, res *Response, next Next) error {
		select {
		case replies <- req:
		default:
		}
		return nil
	})

	sub, err := r.router.Subscribe(ctx, responseTopic, onReply)
	if err != nil {
		r.router.metrics.RecordRequest(RequestOutcomeFailed, time.Since(start))
		return nil, fmt.Errorf("failed to subscribe to response topic: %w", err)
	}
	defer func() {
		if err := sub.Unsubscribe(context.Background()); err != nil {
			r.logger.Warn("failed to remove reply subscription",
				"responseTopic", responseTopic,
				"error", err,
			)
		}
	}()

	body, err := contracts.NewEnvelope(responseTopic, message).Marshal()
	if err != nil {
		r.router.metrics.RecordRequest(RequestOutcomeFailed, time.Since(start))
		return nil, err
	}

	if err := r.router.Publish(ctx, topic, body); err != nil {
		r.router.metrics.RecordRequest(RequestOutcomeFailed, time.Since(start))
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		r.router.metrics.RecordRequest(RequestOutcomeReplied, time.Since(start))
		return reply, nil
	case <-timer.C:
		r.router.metrics.RecordRequest(RequestOutcomeTimeout, time.Since(start))
		r.logger.Debug("request timed out",
			"topic", topic,
			"responseTopic", responseTopic,
			"timeout", r.timeout,
		)
		return nil, &TimeoutError{
			Topic:         topic,
			ResponseTopic: responseTopic,
			Timeout:       r.timeout,
		}
	case <-ctx.Done():
		r.router.metrics.RecordRequest(RequestOutcomeCancelled, time.Since(start))
		return nil, ctx.Err()
	}
}

// SendAsync runs Send in the background. The returned channel receives
// exactly one Result and is then closed.
// A handler that uses it must read the channel from another goroutine, not
// from Handle itself.
func (r *Requestor) SendAsync(ctx context.Context, topic, message string, options ...RequestOption) <-chan Result {
	result := make(chan Result, 1)
	go func() {
		defer close(result)
		reply, err := r.Send(ctx, topic, message, options...)
		result <- Result{Reply: reply, Err: err}
	}()
	return result
}

func randomResponseTopic() string {
	return fmt.Sprintf("%s%d", ResponseTopicPrefix, rand.Intn(10000))
}
