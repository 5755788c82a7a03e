package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "mqttrouter"

const (
	resultSuccess = "success"
	resultError   = "error"
)

// Collector implements messaging.MetricsCollector on Prometheus metrics
type Collector struct {
	Dispatched    *prometheus.CounterVec
	DispatchTime  prometheus.Histogram
	Unmatched     prometheus.Counter
	Published     *prometheus.CounterVec
	Subscriptions prometheus.Gauge
	Requests      *prometheus.CounterVec
	RequestTime   prometheus.Histogram
}

// NewCollector creates unregistered metrics under namespace
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &Collector{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_total",
			Help:      "Total number of messages dispatched to at least one handler",
		}, []string{"result"}),
		DispatchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent in the synchronous part of a handler chain",
			Buckets:   prometheus.DefBuckets,
		}),
		Unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_total",
			Help:      "Total number of messages no subscription matched",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Total number of outbound publishes",
		}, []string{"result"}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Number of active subscriptions",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requestor",
			Name:      "requests_total",
			Help:      "Total number of correlated requests by outcome",
		}, []string{"outcome"}),
		RequestTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "requestor",
			Name:      "request_duration_seconds",
			Help:      "Time from sending a request until it was resolved",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Register registers every metric with registerer
func (c *Collector) Register(registerer prometheus.Registerer) error {
	for _, metric := range []prometheus.Collector{
		c.Dispatched,
		c.DispatchTime,
		c.Unmatched,
		c.Published,
		c.Subscriptions,
		c.Requests,
		c.RequestTime,
	} {
		if err := registerer.Register(metric); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// RecordDispatch implements messaging.MetricsCollector
func (c *Collector) RecordDispatch(handlerCount int, duration time.Duration, err error) {
	c.Dispatched.WithLabelValues(result(err)).Inc()
	c.DispatchTime.Observe(duration.Seconds())
}

// RecordUnmatched implements messaging.MetricsCollector
func (c *Collector) RecordUnmatched() {
	c.Unmatched.Inc()
}

// RecordPublish implements messaging.MetricsCollector
func (c *Collector) RecordPublish(err error) {
	c.Published.WithLabelValues(result(err)).Inc()
}

// RecordSubscriptions implements messaging.MetricsCollector
func (c *Collector) RecordSubscriptions(count int) {
	c.Subscriptions.Set(float64(count))
}

// RecordRequest implements messaging.MetricsCollector
func (c *Collector) RecordRequest(outcome string, duration time.Duration) {
	c.Requests.WithLabelValues(outcome).Inc()
	c.RequestTime.Observe(duration.Seconds())
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
