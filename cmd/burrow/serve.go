package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane",
	Long: `Run the control plane until interrupted.

On start every known resource has its health checks re-armed. Metrics
are served on /metrics next to the /health, /ready and /live probes.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "How long to wait for running deployments on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

	mgr, cfg, err := openManager(cmd)
	if err != nil {
		return err
	}
	metrics.SetVersion(Version)
	mgr.Start()

	logger := log.WithComponent("serve")
	errCh := make(chan error, 1)

	var server *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())

		server = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics endpoint listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown")
		}
	}
	if err := mgr.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}
	logger.Info().Msg("Shutdown complete")
	return runErr
}
