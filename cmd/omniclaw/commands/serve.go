package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/transport"
)

// newServeCmd creates the `omniclaw serve` command that starts the daemon.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant daemon",
		Long: `Start OmniClaw as a daemon: the message pipeline, worker orchestrator,
automations, and (when enabled) the life engine.

Examples:
  omniclaw serve
  omniclaw serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	// The console transport doubles as the daemon's local channel; chat
	// transports register the same way once configured.
	tr := transport.NewConsole(os.Stdout)
	defer tr.Close()

	a, err := buildApp(cfg, cfgPath, tr, appOptions{}, logger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- a.pipeline.Run(ctx)
	}()

	logger.Info("OmniClaw running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"life", cfg.Life.Enabled,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, stopping...")
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			logger.Error("pipeline stopped", "error", err)
		}
	}
	cancel()

	done := make(chan struct{})
	go func() {
		a.shutdown()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}
	return nil
}
