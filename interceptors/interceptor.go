package interceptors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sladdky/ah-mqttrouter/messaging"
)

// Interceptor is a handler that wraps the rest of a chain
type Interceptor interface {
	messaging.Handler

	// Name returns the interceptor name for logging and debugging
	Name() string
}

// InterceptorFunc is a function adapter for Interceptor
type InterceptorFunc struct {
	name string
	fn   messaging.HandlerFunc
}

// NewInterceptorFunc creates a new function-based interceptor
func NewInterceptorFunc(name string, fn messaging.HandlerFunc) *InterceptorFunc {
	return &InterceptorFunc{name: name, fn: fn}
}

// Handle implements messaging.Handler
func (i *InterceptorFunc) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
	return i.fn(req, res, next)
}

// Name implements Interceptor
func (i *InterceptorFunc) Name() string {
	return i.name
}

// LoggingInterceptor logs message processing
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoggingInterceptor{logger: logger}
}

// Handle implements messaging.Handler
func (i *LoggingInterceptor) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
	start := time.Now()
	ctx := req.Context()

	i.logger.InfoContext(ctx, "processing message",
		"topic", req.Topic,
		"messageId", req.Metadata.MessageID,
		"responseTopic", res.Topic(),
	)

	err := next(nil, nil)
	duration := time.Since(start)

	if err != nil {
		i.logger.ErrorContext(ctx, "message processing failed",
			"topic", req.Topic,
			"duration", duration,
			"error", err,
		)
	} else {
		i.logger.InfoContext(ctx, "message processed successfully",
			"topic", req.Topic,
			"duration", duration,
			"replied", res.Sent(),
		)
	}

	return err
}

// Name implements Interceptor
func (i *LoggingInterceptor) Name() string {
	return "LoggingInterceptor"
}

// RecoveryInterceptor turns panics in later handlers into errors
type RecoveryInterceptor struct {
	logger *slog.Logger
}

// NewRecoveryInterceptor creates a new recovery interceptor
func NewRecoveryInterceptor(logger *slog.Logger) *RecoveryInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return &RecoveryInterceptor{logger: logger}
}

// Handle implements messaging.Handler
func (i *RecoveryInterceptor) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) (err error) {
	defer func() {
		if v := recover(); v != nil {
			i.logger.ErrorContext(req.Context(), "recovered handler panic",
				"topic", req.Topic,
				"panic", v,
			)
			err = &messaging.HandlerPanicError{Topic: req.Topic, Value: v}
		}
	}()

	return next(nil, nil)
}

// Name implements Interceptor
func (i *RecoveryInterceptor) Name() string {
	return "RecoveryInterceptor"
}

// TimeoutInterceptor gives later handlers a request context with a deadline.
// The context is cancelled once the synchronous part of the chain returns.
type TimeoutInterceptor struct {
	timeout time.Duration
}

// NewTimeoutInterceptor creates a new timeout interceptor
func NewTimeoutInterceptor(timeout time.Duration) *TimeoutInterceptor {
	return &TimeoutInterceptor{timeout: timeout}
}

// Handle implements messaging.Handler
func (i *TimeoutInterceptor) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
	ctx, cancel := context.WithTimeout(req.Context(), i.timeout)
	defer cancel()

	err := next(req.WithContext(ctx), nil)
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("message processing timeout after %v on topic %s", i.timeout, req.Topic)
	}
	return err
}

// Name implements Interceptor
func (i *TimeoutInterceptor) Name() string {
	return "TimeoutInterceptor"
}

// MessageValidator checks a request before it reaches later handlers
type MessageValidator interface {
	Validate(req *messaging.Request) error
}

// MessageValidatorFunc is a function adapter for MessageValidator
type MessageValidatorFunc func(req *messaging.Request) error

// Validate implements MessageValidator
func (f MessageValidatorFunc) Validate(req *messaging.Request) error {
	return f(req)
}

// ValidationInterceptor stops the chain when validation fails
type ValidationInterceptor struct {
	validator MessageValidator
}

// NewValidationInterceptor creates a new validation interceptor
func NewValidationInterceptor(validator MessageValidator) *ValidationInterceptor {
	return &ValidationInterceptor{validator: validator}
}

// Handle implements messaging.Handler
func (i *ValidationInterceptor) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
	if err := i.validator.Validate(req); err != nil {
		return fmt.Errorf("message validation failed: %w", err)
	}

	return next(nil, nil)
}

// Name implements Interceptor
func (i *ValidationInterceptor) Name() string {
	return "ValidationInterceptor"
}

// ChainBuilder assembles interceptors in front of handlers
type ChainBuilder struct {
	interceptors []Interceptor
	logger       *slog.Logger
}

// NewChainBuilder creates a new builder
func NewChainBuilder(logger *slog.Logger) *ChainBuilder {
	if logger == nil {
		logger = slog.Default()
	}

	return &ChainBuilder{logger: logger}
}

// WithLogging adds logging interceptor
func (b *ChainBuilder) WithLogging() *ChainBuilder {
	b.interceptors = append(b.interceptors, NewLoggingInterceptor(b.logger))
	return b
}

// WithRecovery adds recovery interceptor
func (b *ChainBuilder) WithRecovery() *ChainBuilder {
	b.interceptors = append(b.interceptors, NewRecoveryInterceptor(b.logger))
	return b
}

// WithTracing adds tracing interceptor
func (b *ChainBuilder) WithTracing(options ...TracingOption) *ChainBuilder {
	b.interceptors = append(b.interceptors, NewTracingInterceptor(options...))
	return b
}

// WithTimeout adds timeout interceptor
func (b *ChainBuilder) WithTimeout(timeout time.Duration) *ChainBuilder {
	b.interceptors = append(b.interceptors, NewTimeoutInterceptor(timeout))
	return b
}

// WithValidation adds validation interceptor
func (b *ChainBuilder) WithValidation(validator MessageValidator) *ChainBuilder {
	b.interceptors = append(b.interceptors, NewValidationInterceptor(validator))
	return b
}

// WithFilter adds filtering interceptor
func (b *ChainBuilder) WithFilter(filter MessageFilter, skipBehavior SkipBehavior) *ChainBuilder {
	b.interceptors = append(b.interceptors, NewFilteringInterceptor(filter, skipBehavior, b.logger))
	return b
}

// WithCustom adds a custom interceptor
func (b *ChainBuilder) WithCustom(interceptor Interceptor) *ChainBuilder {
	b.interceptors = append(b.interceptors, interceptor)
	return b
}

// Names returns the interceptor names in chain order
func (b *ChainBuilder) Names() []string {
	names := make([]string, len(b.interceptors))
	for i, interceptor := range b.interceptors {
		names[i] = interceptor.Name()
	}
	return names
}

// Build returns the interceptors followed by handlers, ready to subscribe
func (b *ChainBuilder) Build(handlers ...messaging.Handler) []messaging.Handler {
	chain := make([]messaging.Handler, 0, len(b.interceptors)+len(handlers))
	for _, interceptor := range b.interceptors {
		chain = append(chain, interceptor)
	}
	return append(chain, handlers...)
}
