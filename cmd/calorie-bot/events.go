package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calorieai/calorie-bot/internal/config"
	inats "github.com/calorieai/calorie-bot/internal/nats"
)

func eventsCmd() *cobra.Command {
	var durable string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print usage events from NATS as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			setupLogger(cfg.Log)
			if !cfg.NATS.Enabled() {
				return errors.New("NATS_URL is not set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := inats.NewClient(ctx, cfg.NATS)
			if err != nil {
				return err
			}
			defer client.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			cm := inats.NewConsumerManager(client.JetStream())
			return cm.TailUsageEvents(ctx, durable, func(event inats.UsageEvent) error {
				return enc.Encode(event)
			})
		},
	}

	cmd.Flags().StringVar(&durable, "durable", "calorie-events-tail", "Durable consumer name")
	return cmd
}
