// Package metrics exposes router activity as Prometheus metrics.
package metrics
