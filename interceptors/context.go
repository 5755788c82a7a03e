package interceptors

import (
	"context"
	"sync"

	"github.com/sladdky/ah-mqttrouter/messaging"
)

type contextKey struct{}

// InterceptorContext holds values shared by handlers of one dispatch
type InterceptorContext struct {
	values map[string]interface{}
	mu     sync.RWMutex
}

// NewInterceptorContext creates a new interceptor context
func NewInterceptorContext() *InterceptorContext {
	return &InterceptorContext{
		values: make(map[string]interface{}),
	}
}

// Set stores a value
func (ic *InterceptorContext) Set(key string, value interface{}) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.values[key] = value
}

// Get retrieves a value
func (ic *InterceptorContext) Get(key string) (interface{}, bool) {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	value, exists := ic.values[key]
	return value, exists
}

// GetString retrieves a string value
func (ic *InterceptorContext) GetString(key string) (string, bool) {
	value, exists := ic.Get(key)
	if !exists {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// Delete removes a value
func (ic *InterceptorContext) Delete(key string) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	delete(ic.values, key)
}

// GetInterceptorContext retrieves the interceptor context from ctx
func GetInterceptorContext(ctx context.Context) (*InterceptorContext, bool) {
	ic, ok := ctx.Value(contextKey{}).(*InterceptorContext)
	return ic, ok
}

// WithInterceptorContext returns ctx carrying ic
func WithInterceptorContext(ctx context.Context, ic *InterceptorContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ic)
}

// EnsureInterceptorContext returns the interceptor context of ctx, adding one if missing
func EnsureInterceptorContext(ctx context.Context) (context.Context, *InterceptorContext) {
	ic, exists := GetInterceptorContext(ctx)
	if !exists {
		ic = NewInterceptorContext()
		ctx = WithInterceptorContext(ctx, ic)
	}
	return ctx, ic
}

// ContextEnricher adds values for later handlers to read
type ContextEnricher interface {
	Enrich(ic *InterceptorContext, req *messaging.Request) error
}

// ContextEnricherFunc is a function adapter for ContextEnricher
type ContextEnricherFunc func(ic *InterceptorContext, req *messaging.Request) error

// Enrich implements ContextEnricher
func (f ContextEnricherFunc) Enrich(ic *InterceptorContext, req *messaging.Request) error {
	return f(ic, req)
}

// ContextEnrichmentInterceptor passes on a request whose context carries an
// enriched InterceptorContext
type ContextEnrichmentInterceptor struct {
	enricher ContextEnricher
}

// NewContextEnrichmentInterceptor creates a new context enrichment interceptor
func NewContextEnrichmentInterceptor(enricher ContextEnricher) *ContextEnrichmentInterceptor {
	return &ContextEnrichmentInterceptor{enricher: enricher}
}

// Handle implements messaging.Handler
func (i *ContextEnrichmentInterceptor) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
	ctx, ic := EnsureInterceptorContext(req.Context())

	if err := i.enricher.Enrich(ic, req); err != nil {
		return err
	}

	return next(req.WithContext(ctx), nil)
}

// Name implements Interceptor
func (i *ContextEnrichmentInterceptor) Name() string {
	return "ContextEnrichmentInterceptor"
}
