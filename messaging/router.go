package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sladdky/ah-mqttrouter/contracts"
	"github.com/sladdky/ah-mqttrouter/topic"
)

// Subscription is a registered pattern with its handler chain
type Subscription struct {
	pattern  string
	matcher  *topic.Matcher
	handlers []Handler
	router   *Router

	// closed once the transport subscribe finished; err holds its failure
	ready chan struct{}
	err   error
}

// Pattern returns the subscribed topic pattern
func (s *Subscription) Pattern() string {
	return s.pattern
}

// Handlers returns a copy of the handler chain
func (s *Subscription) Handlers() []Handler {
	result := make([]Handler, len(s.handlers))
	copy(result, s.handlers)
	return result
}

// Matches reports whether the subscription accepts topic
func (s *Subscription) Matches(topic string) bool {
	return s.matcher.Match(topic)
}

// Unsubscribe removes this subscription from its router
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	return s.router.remove(ctx, s)
}

// Router routes inbound messages to handler chains by topic pattern
type Router struct {
	transport Transport
	logger    *slog.Logger
	metrics   MetricsCollector
	routes    []Route

	mu sync.RWMutex
	// replaced on every change, never mutated in place
	subscriptions []*Subscription
}

// RouterOption configures the Router
type RouterOption func(*Router)

// WithRouterLogger sets the logger
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithRouterMetrics sets the metrics collector
func WithRouterMetrics(collector MetricsCollector) RouterOption {
	return func(r *Router) {
		r.metrics = collector
	}
}

// WithRoutes registers routes when the router is created
func WithRoutes(routes ...Route) RouterOption {
	return func(r *Router) {
		r.routes = append(r.routes, routes...)
	}
}

// NewRouter creates a router on top of transport and subscribes any
// configured routes.
func NewRouter(transport Transport, options ...RouterOption) (*Router, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}

	r := &Router{
		transport: transport,
		logger:    slog.Default(),
		metrics:   NoOpMetricsCollector{},
	}

	for _, opt := range options {
		opt(r)
	}

	for _, route := range r.routes {
		if _, err := r.Subscribe(context.Background(), route.Pattern, route.Handlers...); err != nil {
			return nil, fmt.Errorf("failed to register route %s: %w", route.Pattern, err)
		}
	}

	return r, nil
}

// Subscribe registers handlers for topics matching pattern.
//
// Registering the same pattern with the same handler chain again returns the
// existing subscription without contacting the transport, once that
// subscription's own transport subscribe has completed. The first
// subscription attaches the router to the transport's delivery stream.
//
// Handlers are compared with ==. Func values such as HandlerFunc are never
// equal, so each call with a chain containing one adds a new entry that is
// invoked on its own; keep the returned Subscription to remove it.
func (r *Router) Subscribe(ctx context.Context, pattern string, handlers ...Handler) (*Subscription, error) {
	if len(handlers) == 0 {
		return nil, ErrNoHandlers
	}
	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("handler cannot be nil")
		}
	}

	r.mu.Lock()
	for _, existing := range r.subscriptions {
		if existing.pattern == pattern && sameChain(existing.handlers, handlers) {
			r.mu.Unlock()
			return r.await(ctx, existing)
		}
	}

	sub := &Subscription{
		pattern:  pattern,
		matcher:  topic.Compile(pattern),
		handlers: append([]Handler(nil), handlers...),
		router:   r,
		ready:    make(chan struct{}),
	}

	updated := make([]*Subscription, len(r.subscriptions), len(r.subscriptions)+1)
	copy(updated, r.subscriptions)
	r.subscriptions = append(updated, sub)
	count := len(r.subscriptions)

	if count == 1 {
		r.transport.SetListener(r.deliver)
	}
	r.metrics.RecordSubscriptions(count)
	r.mu.Unlock()

	if err := r.transport.Subscribe(ctx, pattern); err != nil {
		r.detach(sub)
		sub.err = fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		close(sub.ready)
		return nil, sub.err
	}
	close(sub.ready)

	r.logger.Debug("subscribed",
		"pattern", pattern,
		"handlerCount", len(handlers),
		"subscriptionCount", count,
	)

	return sub, nil
}

// await waits for a pending subscription to be confirmed by the transport
func (r *Router) await(ctx context.Context, sub *Subscription) (*Subscription, error) {
	select {
	case <-sub.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if sub.err != nil {
		return nil, sub.err
	}
	return sub, nil
}

// Unsubscribe removes the first subscription registered with pattern and the
// same handler chain. It does nothing if there is none.
//
// Handlers are compared with ==. Func values cannot be compared, so a chain
// containing a HandlerFunc is removed through its Subscription instead.
func (r *Router) Unsubscribe(ctx context.Context, pattern string, handlers ...Handler) error {
	r.mu.RLock()
	var target *Subscription
	for _, sub := range r.subscriptions {
		if sub.pattern == pattern && sameChain(sub.handlers, handlers) {
			target = sub
			break
		}
	}
	r.mu.RUnlock()

	if target == nil {
		return nil
	}
	return r.remove(ctx, target)
}

// Publish sends payload on topic through the transport
func (r *Router) Publish(ctx context.Context, topic string, payload []byte, options ...contracts.PublishOption) error {
	err := r.transport.Publish(ctx, topic, payload, contracts.NewPublishOptions(options...))
	r.metrics.RecordPublish(err)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// MatchingChains returns the handler chains of every subscription that
// matches topic, in registration order.
func (r *Router) MatchingChains(topic string) [][]Handler {
	var chains [][]Handler
	for _, sub := range r.snapshot() {
		if sub.matcher.Match(topic) {
			chains = append(chains, sub.handlers)
		}
	}
	return chains
}

// Subscriptions returns the active subscriptions in registration order
func (r *Router) Subscriptions() []*Subscription {
	subs := r.snapshot()
	result := make([]*Subscription, len(subs))
	copy(result, subs)
	return result
}

// Close removes every subscription and detaches from the transport
func (r *Router) Close(ctx context.Context) error {
	var firstErr error
	for _, sub := range r.snapshot() {
		if err := r.remove(ctx, sub); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) snapshot() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subscriptions
}

// remove drops sub and withdraws the broker subscription when no other
// subscription uses the same pattern.
func (r *Router) remove(ctx context.Context, sub *Subscription) error {
	removed, patternInUse := r.detach(sub)
	if !removed || patternInUse {
		return nil
	}

	if err := r.transport.Unsubscribe(ctx, sub.pattern); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", sub.pattern, err)
	}

	r.logger.Debug("unsubscribed", "pattern", sub.pattern)
	return nil
}

func (r *Router) detach(sub *Subscription) (removed bool, patternInUse bool) {
	r.mu.Lock()
	idx := -1
	updated := make([]*Subscription, 0, len(r.subscriptions))
	for i, existing := range r.subscriptions {
		if existing == sub && idx < 0 {
			idx = i
			continue
		}
		if existing.pattern == sub.pattern {
			patternInUse = true
		}
		updated = append(updated, existing)
	}
	if idx < 0 {
		r.mu.Unlock()
		return false, false
	}

	r.subscriptions = updated
	count := len(updated)
	if count == 0 {
		r.transport.SetListener(nil)
	}
	r.metrics.RecordSubscriptions(count)
	r.mu.Unlock()

	return true, patternInUse
}

// deliver is the transport listener. Failures are logged so one faulty
// handler cannot stop later deliveries.
func (r *Router) deliver(ctx context.Context, delivery Delivery) {
	if err := r.dispatch(ctx, delivery); err != nil {
		r.logger.Error("message handling failed",
			"topic", delivery.Topic,
			"error", err,
		)
	}
}

func (r *Router) dispatch(ctx context.Context, delivery Delivery) (err error) {
	var handlers []Handler
	for _, chain := range r.MatchingChains(delivery.Topic) {
		handlers = append(handlers, chain...)
	}

	if len(handlers) == 0 {
		r.metrics.RecordUnmatched()
		r.logger.Debug("no subscription matched", "topic", delivery.Topic)
		return nil
	}

	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			err = &HandlerPanicError{Topic: delivery.Topic, Value: v}
		}
		r.metrics.RecordDispatch(len(handlers), time.Since(start), err)
	}()

	payload := contracts.DecodePayload(delivery.Payload)
	if payload.Invalid {
		r.logger.Debug("payload is not valid JSON", "topic", delivery.Topic)
	}

	req := newRequest(ctx, delivery, payload)
	res := newResponse(payload.ResponseTopic, r.publishReply)

	c := &chain{handlers: handlers}
	return c.run(0, req, res)
}

func (r *Router) publishReply(ctx context.Context, topic string, payload []byte) error {
	return r.Publish(ctx, topic, payload)
}

// chain walks a fixed handler sequence by index
type chain struct {
	handlers []Handler
}

func (c *chain) run(i int, req *Request, res *Response) error {
	if i >= len(c.handlers) {
		return nil
	}

	var advanced atomic.Bool
	next := func(nextReq *Request, nextRes *Response) error {
		if !advanced.CompareAndSwap(false, true) {
			return nil
		}
		if nextReq == nil {
			nextReq = req
		}
		if nextRes == nil {
			nextRes = res
		}
		return c.run(i+1, nextReq, nextRes)
	}

	return c.handlers[i].Handle(req, res, next)
}

func sameChain(a, b []Handler) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameHandler(a[i], b[i]) {
			return false
		}
	}
	return true
}

// sameHandler compares handlers with == when their dynamic values allow it
func sameHandler(a, b Handler) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || !va.Comparable() || !vb.Comparable() {
		return false
	}
	return a == b
}
