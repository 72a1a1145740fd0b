package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runclub/clubsync/internal/api"
	"github.com/runclub/clubsync/internal/auth"
	"github.com/runclub/clubsync/internal/scheduler"
	"github.com/runclub/clubsync/internal/server"
	"github.com/runclub/clubsync/internal/syncer"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled sweeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	logger := c.logger
	logger.Info("Starting clubsync")

	a, err := newApp(ctx, c.cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		return err
	}
	defer a.Close()

	worker := syncer.NewWorker(a.orchestrator, c.cfg.Sync.Workers, c.cfg.Sync.QueueSize, logger)
	worker.Start(ctx)

	go func() {
		for result := range worker.Failures() {
			logger.Warn("On-demand sync failed",
				"user_id", result.UserID,
				"run_id", result.RunID,
				"trigger", result.Trigger,
				"error", result.Error,
			)
		}
	}()

	sweeps := scheduler.NewSweepScheduler(a.orchestrator, c.cfg.Sync.Interval, c.cfg.Sync.RunOnStart, logger)
	go sweeps.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.metrics.Handler())
	api.SetupRoutes(mux, api.Dependencies{
		Users:      a.store,
		Activities: a.store,
		Runs:       a.store,
		OAuth:      a.oauth,
		Sync:       worker,
		Auth: auth.Config{
			JWTSecret:     c.cfg.Auth.JWTSecret,
			TokenDuration: c.cfg.Auth.TokenDuration,
		},
		FrontendURL: c.cfg.Auth.FrontendURL,
		Ping:        a.store.Ping,
	}, logger)

	handler := a.metrics.InstrumentHandler(api.CORS(c.cfg.Auth.FrontendURL, mux))
	srv := server.New(c.cfg.Server, logger, handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errCh:
		if err != nil {
			logger.Error("Server failed", "error", err)
		}
	}

	// Stop intake first, then let in-flight syncs finish.
	if shutdownErr := srv.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
		logger.Error("Failed to shut down server", "error", shutdownErr)
	}
	sweeps.Stop()
	worker.Stop()

	logger.Info("Shutdown complete")
	return err
}
