package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sladdky/ah-mqttrouter/contracts"
)

func newPublishCmd(flags *globalFlags) *cobra.Command {
	var (
		qos    uint8
		retain bool
	)

	cmd := &cobra.Command{
		Use:   "publish <topic> <message>",
		Short: "Publish one message",
		Long:  "Publish sends message as-is on topic. Use JSON text so subscribers can decode it.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.Logging)

			ctx, cancel := signalContext()
			defer cancel()

			client, err := newClient(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close(context.Background())

			if err := client.Publish(ctx, args[0], []byte(args[1]),
				contracts.WithQoS(qos),
				contracts.WithRetain(retain),
			); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().Uint8VarP(&qos, "qos", "q", 0, "Quality of service (0, 1 or 2)")
	cmd.Flags().BoolVarP(&retain, "retain", "r", false, "Mark the message as retained")

	return cmd
}
