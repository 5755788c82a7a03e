package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sladdky/ah-mqttrouter/messaging"
)

func newRequestCmd(flags *globalFlags) *cobra.Command {
	var (
		responseTopic string
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "request <topic> <message>",
		Short: "Send a request and print the reply",
		Long: `Request wraps message in a reply envelope, publishes it on topic and prints
the first message that arrives on the reply topic.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Request.Timeout = timeout
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.Logging)

			ctx, cancel := signalContext()
			defer cancel()

			client, err := newClient(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close(context.Background())

			var opts []messaging.RequestOption
			if responseTopic != "" {
				opts = append(opts, messaging.WithResponseTopic(responseTopic))
			}

			reply, err := client.Request(ctx, args[0], args[1], opts...)
			if err != nil {
				return err
			}
			return printReply(cmd.OutOrStdout(), reply)
		},
	}

	cmd.Flags().StringVar(&responseTopic, "response-topic", "", "Reply topic (random response/<n> by default)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", messaging.DefaultRequestTimeout, "How long to wait for the reply")

	return cmd
}

// printReply writes the decoded reply as JSON, or the raw text if it was not JSON
func printReply(w io.Writer, reply *messaging.Request) error {
	if reply.PayloadInvalid {
		_, err := fmt.Fprintln(w, string(reply.RawPayload))
		return err
	}

	out, err := json.Marshal(reply.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
