package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	mqttrouter "github.com/sladdky/ah-mqttrouter"
	"github.com/sladdky/ah-mqttrouter/internal/config"
	"github.com/sladdky/ah-mqttrouter/internal/rabbitmq"
	rabbitmqTransport "github.com/sladdky/ah-mqttrouter/transports/rabbitmq"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// globalFlags are the persistent flags shared by every command
type globalFlags struct {
	url        string
	exchange   string
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd(&globalFlags{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(flags *globalFlags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mqttrouter",
		Short: "Publish, request and serve topic-routed messages",
		Long: `mqttrouter talks to a RabbitMQ topic exchange using MQTT-style topics.
It can publish a message, send a request and wait for the reply, or serve
replies for a set of topic patterns.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	defaults := config.Default()
	rootCmd.PersistentFlags().StringVarP(&flags.url, "url", "u", defaults.Broker.URL, "RabbitMQ connection URL")
	rootCmd.PersistentFlags().StringVarP(&flags.exchange, "exchange", "e", defaults.Broker.Exchange, "Topic exchange name")
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newPublishCmd(flags),
		newRequestCmd(flags),
		newServeCmd(flags),
	)

	return rootCmd
}

// loadConfig reads the config file if one is given and lets explicitly set
// flags override it
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("url") {
		cfg.Broker.URL = flags.url
	}
	if cmd.Flags().Changed("exchange") {
		cfg.Broker.Exchange = flags.exchange
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newClient(ctx context.Context, cfg config.Config, logger *slog.Logger, options ...mqttrouter.ClientOption) (*mqttrouter.Client, error) {
	options = append([]mqttrouter.ClientOption{
		mqttrouter.WithLogger(logger),
		mqttrouter.WithRequestTimeout(cfg.Request.Timeout),
		mqttrouter.WithConnectionName(cfg.Broker.ConnectionName),
		mqttrouter.WithTransportOptions(
			rabbitmqTransport.WithExchange(cfg.Broker.Exchange),
			rabbitmqTransport.WithQueuePrefix(cfg.Broker.QueuePrefix),
			rabbitmqTransport.WithConnectionOptions(
				rabbitmq.WithReconnectDelay(cfg.Broker.ReconnectDelay),
				rabbitmq.WithMaxRetries(cfg.Broker.MaxRetries),
			),
			rabbitmqTransport.WithConsumerOptions(
				rabbitmq.WithPrefetchCount(cfg.Broker.PrefetchCount),
			),
		),
	}, options...)

	return mqttrouter.NewClient(ctx, cfg.Broker.URL, options...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
