package interceptors

import (
	"context"

	"github.com/sladdky/ah-mqttrouter/messaging"
)

// ShortCircuitResult is the reply sent when the chain is cut short
type ShortCircuitResult struct {
	Reply  []byte
	Reason string
}

// ShortCircuitEvaluator determines if the chain should be cut short
type ShortCircuitEvaluator interface {
	// ShouldShortCircuit returns true to stop the chain. A result with a
	// Reply is sent on the response topic when one is set.
	ShouldShortCircuit(req *messaging.Request) (bool, *ShortCircuitResult, error)
}

// ShortCircuitEvaluatorFunc is a function adapter for ShortCircuitEvaluator
type ShortCircuitEvaluatorFunc func(req *messaging.Request) (bool, *ShortCircuitResult, error)

// ShouldShortCircuit implements ShortCircuitEvaluator
func (f ShortCircuitEvaluatorFunc) ShouldShortCircuit(req *messaging.Request) (bool, *ShortCircuitResult, error) {
	return f(req)
}

// ShortCircuitInterceptor answers or drops a message without running later handlers
type ShortCircuitInterceptor struct {
	evaluator ShortCircuitEvaluator
}

// NewShortCircuitInterceptor creates a new short-circuit interceptor
func NewShortCircuitInterceptor(evaluator ShortCircuitEvaluator) *ShortCircuitInterceptor {
	return &ShortCircuitInterceptor{evaluator: evaluator}
}

// Handle implements messaging.Handler
func (i *ShortCircuitInterceptor) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
	shouldShortCircuit, result, err := i.evaluator.ShouldShortCircuit(req)
	if err != nil {
		return err
	}

	if !shouldShortCircuit {
		return next(nil, nil)
	}

	if result != nil && result.Reply != nil && res.Topic() != "" {
		return res.Send(req.Context(), result.Reply)
	}
	return nil
}

// Name implements Interceptor
func (i *ShortCircuitInterceptor) Name() string {
	return "ShortCircuitInterceptor"
}

// DuplicateDetector remembers message IDs that were handled
type DuplicateDetector interface {
	IsDuplicate(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

// DuplicateDetectionInterceptor drops redelivered messages. Messages without
// an ID always pass.
type DuplicateDetectionInterceptor struct {
	detector DuplicateDetector
}

// NewDuplicateDetectionInterceptor creates a new duplicate detection interceptor
func NewDuplicateDetectionInterceptor(detector DuplicateDetector) *DuplicateDetectionInterceptor {
	return &DuplicateDetectionInterceptor{detector: detector}
}

// Handle implements messaging.Handler
func (i *DuplicateDetectionInterceptor) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
	messageID := req.Metadata.MessageID
	if messageID == "" {
		return next(nil, nil)
	}

	ctx := req.Context()
	isDuplicate, err := i.detector.IsDuplicate(ctx, messageID)
	if err != nil {
		return err
	}
	if isDuplicate {
		return nil
	}

	if err := next(nil, nil); err != nil {
		return err
	}

	return i.detector.MarkProcessed(ctx, messageID)
}

// Name implements Interceptor
func (i *DuplicateDetectionInterceptor) Name() string {
	return "DuplicateDetectionInterceptor"
}
