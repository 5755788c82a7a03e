// Package interceptors provides reusable handlers that wrap a router chain.
//
// Each interceptor is a messaging.Handler that does its work around the call
// to next. Built-in interceptors:
//   - LoggingInterceptor: Logs message processing with timing information
//   - RecoveryInterceptor: Turns panics in later handlers into errors
//   - TracingInterceptor: Starts an OpenTelemetry consumer span
//   - TimeoutInterceptor: Puts a deadline on the request context
//   - ValidationInterceptor: Stops messages that fail validation
//   - FilteringInterceptor: Stops messages a MessageFilter rejects
//   - ContextEnrichmentInterceptor: Shares values with later handlers
//   - ShortCircuitInterceptor: Answers a message without running later handlers
//   - DuplicateDetectionInterceptor: Drops redelivered messages
//
// Example usage:
//
//	chain := interceptors.NewChainBuilder(logger).
//		WithRecovery().
//		WithLogging().
//		WithTracing().
//		WithFilter(interceptors.ValidPayloadFilter{}, interceptors.SkipWithLog).
//		Build(handler)
//
//	_, err := router.Subscribe(ctx, "sensors/+/temperature", chain...)
//
// Interceptors run in the order they were added, followed by the handlers
// passed to Build.
package interceptors
