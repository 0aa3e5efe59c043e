package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/incident-ingest-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/incident-ingest-service/internal/adapter/ws"
	"github.com/couchcryptid/incident-ingest-service/internal/observability"
	"github.com/couchcryptid/incident-ingest-service/internal/pipeline"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger, notification stream, and optional scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	hub := ws.NewHub(logger, metrics)

	a, err := buildApp(ctx, cfg, logger, metrics, hub)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := pipeline.NewScheduler(a.trigger, cfg.IngestSources, cfg.IngestInterval, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, a.store, logger,
		httpadapter.WithIngest(a.trigger, cfg.WeatherCity),
		httpadapter.WithWebSocket(hub),
	)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	bg, bgCtx := errgroup.WithContext(ctx)
	bg.Go(func() error { return hub.Run(bgCtx) })
	bg.Go(func() error { return scheduler.Run(bgCtx) })

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := bg.Wait(); err != nil {
		logger.Error("background task error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
