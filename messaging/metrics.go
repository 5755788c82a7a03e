package messaging

import "time"

// Request outcomes reported to MetricsCollector.RecordRequest
const (
	RequestOutcomeReplied   = "replied"
	RequestOutcomeTimeout   = "timeout"
	RequestOutcomeCancelled = "cancelled"
	RequestOutcomeFailed    = "failed"
)

// MetricsCollector collects routing metrics
type MetricsCollector interface {
	// RecordDispatch records a delivery that matched at least one subscription
	RecordDispatch(handlerCount int, duration time.Duration, err error)

	// RecordUnmatched records a delivery no subscription matched
	RecordUnmatched()

	// RecordPublish records an outbound publish
	RecordPublish(err error)

	// RecordSubscriptions records the number of active subscriptions
	RecordSubscriptions(count int)

	// RecordRequest records the outcome of a correlated request
	RecordRequest(outcome string, duration time.Duration)
}

// NoOpMetricsCollector is a no-op implementation of MetricsCollector
type NoOpMetricsCollector struct{}

// RecordDispatch does nothing
func (NoOpMetricsCollector) RecordDispatch(handlerCount int, duration time.Duration, err error) {}

// RecordUnmatched does nothing
func (NoOpMetricsCollector) RecordUnmatched() {}

// RecordPublish does nothing
func (NoOpMetricsCollector) RecordPublish(err error) {}

// RecordSubscriptions does nothing
func (NoOpMetricsCollector) RecordSubscriptions(count int) {}

// RecordRequest does nothing
func (NoOpMetricsCollector) RecordRequest(outcome string, duration time.Duration) {}
