package interceptors

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sladdky/ah-mqttrouter/messaging"
)

const tracerName = "github.com/sladdky/ah-mqttrouter/interceptors"

// TracingInterceptor starts a consumer span around the rest of the chain
type TracingInterceptor struct {
	tracer trace.Tracer
}

// TracingOption configures the TracingInterceptor
type TracingOption func(*tracingConfig)

type tracingConfig struct {
	provider trace.TracerProvider
}

// WithTracerProvider sets the provider; the global provider is used otherwise
func WithTracerProvider(provider trace.TracerProvider) TracingOption {
	return func(c *tracingConfig) {
		c.provider = provider
	}
}

// NewTracingInterceptor creates a new tracing interceptor
func NewTracingInterceptor(options ...TracingOption) *TracingInterceptor {
	var cfg tracingConfig
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.provider == nil {
		cfg.provider = otel.GetTracerProvider()
	}

	return &TracingInterceptor{tracer: cfg.provider.Tracer(tracerName)}
}

// Handle implements messaging.Handler
func (i *TracingInterceptor) Handle(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
	ctx, span := i.tracer.Start(req.Context(), "process "+req.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", req.Topic),
			attribute.Int("messaging.message.body.size", len(req.RawPayload)),
			attribute.Bool("mqttrouter.payload.invalid", req.PayloadInvalid),
		),
	)
	defer span.End()

	if id := req.Metadata.MessageID; id != "" {
		span.SetAttributes(attribute.String("messaging.message.id", id))
	}

	err := next(req.WithContext(ctx), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Bool("mqttrouter.replied", res.Sent()))

	return err
}

// Name implements Interceptor
func (i *TracingInterceptor) Name() string {
	return "TracingInterceptor"
}
