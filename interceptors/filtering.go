package interceptors

import (
	"fmt"
	"log/slog"

	"github.com/sladdky/ah-mqttrouter/messaging"
	"github.com/sladdky/ah-mqttrouter/topic"
)

// MessageFilter defines the interface for message filtering
type MessageFilter interface {
	// ShouldProcess returns true if the message should be processed
	ShouldProcess(req *messaging.Request) (bool, error)
}

// MessageFilterFunc is a function adapter for MessageFilter
type MessageFilterFunc func(req *messaging.Request) (bool, error)

// ShouldProcess implements MessageFilter
func (f MessageFilterFunc) ShouldProcess(req *messaging.Request) (bool, error) {
	return f(req)
}

// SkipBehavior defines what happens when a message is filtered out
type SkipBehavior int

const (
	// SkipSilently skips the message without error
	SkipSilently SkipBehavior = iota
	// SkipWithError returns an error when message is filtered
	SkipWithError
	// SkipWithLog logs that the message was skipped
	SkipWithLog
)

// FilteringInterceptor stops the chain for messages the filter rejects
type FilteringInterceptor struct {
	filter       MessageFilter
	skipBehavior SkipBehavior
	logger       *slog.Logger
}

// NewFilteringInterceptor creates a new filtering interceptor
func NewFilteringInterceptor(filter MessageFilter, skipBehavior SkipBehavior, logger *slog.Logger) *FilteringInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return &FilteringInterceptor{
		filter:       filter,
		skipBehavior: skipBehavior,
		logger:       logger,
	}
}

// Handle implements messaging.Handler
func (i *FilteringInterceptor) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
	shouldProcess, err := i.filter.ShouldProcess(req)
	if err != nil {
		return fmt.Errorf("filter error: %w", err)
	}

	if !shouldProcess {
		switch i.skipBehavior {
		case SkipWithError:
			return fmt.Errorf("message filtered: topic=%s", req.Topic)
		case SkipWithLog:
			i.logger.InfoContext(req.Context(), "message filtered", "topic", req.Topic)
			return nil
		default:
			return nil
		}
	}

	return next(nil, nil)
}

// Name implements Interceptor
func (i *FilteringInterceptor) Name() string {
	return "FilteringInterceptor"
}

// CompositeFilter combines multiple filters with AND logic
type CompositeFilter struct {
	filters []MessageFilter
}

// NewCompositeFilter creates a new composite filter
func NewCompositeFilter(filters ...MessageFilter) *CompositeFilter {
	return &CompositeFilter{filters: filters}
}

// ShouldProcess implements MessageFilter - all filters must return true
func (f *CompositeFilter) ShouldProcess(req *messaging.Request) (bool, error) {
	for _, filter := range f.filters {
		shouldProcess, err := filter.ShouldProcess(req)
		if err != nil {
			return false, err
		}
		if !shouldProcess {
			return false, nil
		}
	}
	return true, nil
}

// OrFilter combines multiple filters with OR logic
type OrFilter struct {
	filters []MessageFilter
}

// NewOrFilter creates a new OR filter
func NewOrFilter(filters ...MessageFilter) *OrFilter {
	return &OrFilter{filters: filters}
}

// ShouldProcess implements MessageFilter - at least one filter must return true
func (f *OrFilter) ShouldProcess(req *messaging.Request) (bool, error) {
	for _, filter := range f.filters {
		shouldProcess, err := filter.ShouldProcess(req)
		if err != nil {
			return false, err
		}
		if shouldProcess {
			return true, nil
		}
	}
	return false, nil
}

// TopicFilter accepts messages whose topic matches one of its patterns
type TopicFilter struct {
	matchers []*topic.Matcher
}

// NewTopicFilter creates a filter from topic patterns
func NewTopicFilter(patterns ...string) *TopicFilter {
	matchers := make([]*topic.Matcher, len(patterns))
	for i, p := range patterns {
		matchers[i] = topic.Compile(p)
	}
	return &TopicFilter{matchers: matchers}
}

// ShouldProcess implements MessageFilter
func (f *TopicFilter) ShouldProcess(req *messaging.Request) (bool, error) {
	for _, m := range f.matchers {
		if m.Match(req.Topic) {
			return true, nil
		}
	}
	return false, nil
}

// ValidPayloadFilter accepts messages whose body parsed as JSON
type ValidPayloadFilter struct{}

// ShouldProcess implements MessageFilter
func (ValidPayloadFilter) ShouldProcess(req *messaging.Request) (bool, error) {
	return !req.PayloadInvalid, nil
}

// ConditionalInterceptor executes an interceptor only if a condition is met
type ConditionalInterceptor struct {
	condition   MessageFilter
	interceptor Interceptor
}

// NewConditionalInterceptor creates a new conditional interceptor
func NewConditionalInterceptor(condition MessageFilter, interceptor Interceptor) *ConditionalInterceptor {
	return &ConditionalInterceptor{
		condition:   condition,
		interceptor: interceptor,
	}
}

// Handle implements messaging.Handler
func (i *ConditionalInterceptor) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
	shouldExecute, err := i.condition.ShouldProcess(req)
	if err != nil {
		return err
	}

	if shouldExecute {
		return i.interceptor.Handle(req, res, next)
	}

	return next(nil, nil)
}

// Name implements Interceptor
func (i *ConditionalInterceptor) Name() string {
	return fmt.Sprintf("ConditionalInterceptor[%s]", i.interceptor.Name())
}

// ContextBasedFilter filters based on values in the interceptor context
type ContextBasedFilter struct {
	contextKey    string
	expectedValue interface{}
}

// NewContextBasedFilter creates a filter that checks context values
func NewContextBasedFilter(contextKey string, expectedValue interface{}) *ContextBasedFilter {
	return &ContextBasedFilter{
		contextKey:    contextKey,
		expectedValue: expectedValue,
	}
}

// ShouldProcess implements MessageFilter
func (f *ContextBasedFilter) ShouldProcess(req *messaging.Request) (bool, error) {
	ic, exists := GetInterceptorContext(req.Context())
	if !exists {
		return false, nil
	}

	value, exists := ic.Get(f.contextKey)
	if !exists {
		return false, nil
	}

	return value == f.expectedValue, nil
}
