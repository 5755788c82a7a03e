package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	mqttrouter "github.com/sladdky/ah-mqttrouter"
	"github.com/sladdky/ah-mqttrouter/health"
	"github.com/sladdky/ah-mqttrouter/interceptors"
	"github.com/sladdky/ah-mqttrouter/messaging"
	"github.com/sladdky/ah-mqttrouter/metrics"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		patterns    []string
		metricsAddr string
		reply       string
		trace       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer requests on topic patterns",
		Long: `Serve subscribes to the configured patterns and replies to every request
that carries a reply topic: "echo" sends the request message back, "ack"
sends true. Prometheus metrics are served on /metrics and health on /healthz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("pattern") {
				cfg.Serve.Patterns = patterns
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Serve.MetricsAddr = metricsAddr
			}
			if cmd.Flags().Changed("reply") {
				cfg.Serve.Reply = reply
			}
			if cmd.Flags().Changed("trace") {
				cfg.Tracing.Enabled = trace
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				return errors.Join(errs...)
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg.Logging)

			ctx, cancel := signalContext()
			defer cancel()

			shutdownTracing, err := setupTracing(cfg.Tracing.Enabled, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("failed to set up tracing: %w", err)
			}
			defer shutdownTracing(context.Background())

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector())
			collector := metrics.NewCollector(metrics.DefaultNamespace)
			if err := collector.Register(registry); err != nil {
				return fmt.Errorf("failed to register metrics: %w", err)
			}

			client, err := newClient(ctx, cfg, logger, mqttrouter.WithMetrics(collector))
			if err != nil {
				return err
			}
			defer client.Close(context.Background())

			handlers := serveChain(logger, cfg.Serve.HandlerTimeout, newResponder(cfg.Serve.Reply, logger))
			for _, pattern := range cfg.Serve.Patterns {
				if _, err := client.Subscribe(ctx, pattern, handlers...); err != nil {
					return err
				}
			}

			checks := health.NewRegistry(5 * time.Second)
			if conn, ok := client.Transport().(health.Connectable); ok {
				checks.Register(health.NewConnectionChecker("rabbitmq", conn))
			}
			checks.Register(subscriptionChecker(client))

			var server *http.Server
			if cfg.Serve.MetricsAddr != "" {
				server = newMetricsServer(cfg.Serve.MetricsAddr, registry, checks)
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server failed", "error", err)
						cancel()
					}
				}()
			}

			logger.Info("serving",
				"patterns", cfg.Serve.Patterns,
				"reply", cfg.Serve.Reply,
				"metricsAddr", cfg.Serve.MetricsAddr)

			<-ctx.Done()
			logger.Info("shutting down")

			if server != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Warn("metrics server shutdown failed", "error", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&patterns, "pattern", "p", nil, "Topic pattern to serve (repeatable)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address for the /metrics endpoint; empty disables it")
	cmd.Flags().StringVar(&reply, "reply", "echo", "Reply mode: echo or ack")
	cmd.Flags().BoolVar(&trace, "trace", false, "Print spans to stdout")

	return cmd
}

func serveChain(logger *slog.Logger, timeout time.Duration, responder messaging.Handler) []messaging.Handler {
	builder := interceptors.NewChainBuilder(logger).
		WithRecovery().
		WithTracing().
		WithLogging()
	if timeout > 0 {
		builder = builder.WithTimeout(timeout)
	}
	return builder.Build(responder)
}

// newResponder answers requests that carry a reply topic and ends the chain.
// Plain messages are passed on to the next handler.
func newResponder(mode string, logger *slog.Logger) messaging.Handler {
	return messaging.HandlerFunc(func(req *messaging.Request, res *messaging.Response, next messaging.Next) error {
		if res.Topic() == "" {
			logger.Debug("message without reply topic", "topic", req.Topic)
			return next(nil, nil)
		}

		var body []byte
		switch {
		case mode == "ack":
			body = []byte("true")
		case req.PayloadInvalid:
			text, _ := req.PayloadString()
			encoded, err := json.Marshal(text)
			if err != nil {
				return err
			}
			body = encoded
		default:
			encoded, err := json.Marshal(req.Payload)
			if err != nil {
				return fmt.Errorf("failed to encode reply: %w", err)
			}
			body = encoded
		}

		return res.Send(req.Context(), body)
	})
}

// subscriptionChecker reports degraded when nothing is subscribed
func subscriptionChecker(client *mqttrouter.Client) health.Checker {
	return health.NewComponentChecker("subscriptions", func(ctx context.Context) (health.Status, string, map[string]interface{}, error) {
		count := len(client.Router().Subscriptions())
		details := map[string]interface{}{"count": count}
		if count == 0 {
			return health.StatusDegraded, "no active subscriptions", details, nil
		}
		return health.StatusHealthy, "", details, nil
	})
}

func newMetricsServer(addr string, registry *prometheus.Registry, checks *health.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", checks.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
