package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gwww/upb-lib/bridge"
	"github.com/gwww/upb-lib/history"
	"github.com/gwww/upb-lib/logging"
)

// pruneInterval is how often old history rows are cleaned up.
const pruneInterval = time.Hour

func bridgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Run the MQTT bridge until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, logger, err := newClient()
			if err != nil {
				return err
			}
			defer client.Disconnect()

			if cfg.MQTT.BrokerURL == "" {
				return fmt.Errorf("no MQTT broker URL configured")
			}

			ctx, cancel := signalContext()
			defer cancel()

			if err := client.Connect(ctx); err != nil {
				return err
			}
			logger.Info("connected", "network", client.NetworkID(),
				"devices", len(client.Devices()), "links", len(client.Links()))

			if cfg.History.Path != "" {
				recorder, err := history.Open(cfg.History.Path)
				if err != nil {
					return fmt.Errorf("open history store: %w", err)
				}
				defer recorder.Close()
				recorder.SetLogger(logger.With("component", "history"))
				recorder.Attach(client.Bus())
				go pruneLoop(ctx, recorder, cfg.historyRetention(), logger)
			}

			b := bridge.New(cfg.bridgeConfig(), client)
			b.SetLogger(logger.With("component", "bridge"))
			if err := b.Start(ctx); err != nil {
				return err
			}
			defer b.Close()

			logger.Info("bridge running", "broker", cfg.MQTT.BrokerURL)
			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
}

func pruneLoop(ctx context.Context, recorder *history.Recorder, retention time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := recorder.Prune(ctx, retention)
			if err != nil {
				logger.Warn("history prune failed", "error", err)
			} else if n > 0 {
				logger.Debug("pruned history", "rows", n)
			}
		}
	}
}
