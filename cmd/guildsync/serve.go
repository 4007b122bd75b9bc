package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/galexite/guildsync"
	"github.com/galexite/guildsync/config"
	guildhttp "github.com/galexite/guildsync/http"
	"github.com/galexite/guildsync/keybackend"
	"github.com/galexite/guildsync/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local copy over HTTP",
	Long: `Serve the stored resources read-only:

  GET|HEAD /events.json
  GET|HEAD /organisations.json
  GET      /status
  GET      /metrics (with --metrics)

With --auth private every request except /metrics must carry a SigV4
Authorization header signed with one of server.keys. With --interval the
bucket is synced in the background while serving.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 5709, "HTTP server port (env: GUILDSYNC_SERVER_PORT)")
	serveCmd.Flags().String("auth", "", "access mode: public, private (default: public, env: GUILDSYNC_SERVER_AUTH)")
	serveCmd.Flags().Bool("metrics", false, "serve Prometheus metrics at /metrics (env: GUILDSYNC_METRICS_ENABLED)")
	serveCmd.Flags().Duration("interval", 0, "sync the bucket in the background every interval")
	serveCmd.Flags().StringSlice("resources", nil, "resources to sync in the background (default: all)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
	}

	repo, closeDB, err := openState(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer closeDB()

	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	handlerConfig := guildhttp.HandlerConfig{
		CORS:   cfg.CORS,
		Logger: slog.Default().With("component", "http"),
	}

	if cfg.Server.Auth == "private" {
		store, storeErr := keybackend.NewSecretStore(cfg.Server.Keys)
		if storeErr != nil {
			return fmt.Errorf("load server keys: %w", storeErr)
		}
		handlerConfig.Verifier = guildsync.NewSignatureVerifier(cfg.Bucket.Region, store)
	}
	if collector != nil {
		handlerConfig.Metrics = collector.Handler()
	}

	var wg sync.WaitGroup
	if cfg.Sync.Interval > 0 {
		service, syncErr := newSyncService(ctx, cfg, collector, repo, storage)
		if syncErr != nil {
			return syncErr
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("background sync started", "interval", cfg.Sync.Interval)
			if runErr := service.Run(ctx, cfg.Sync.Interval); runErr != nil {
				slog.Error("background sync stopped", "err", runErr)
			}
		}()
	}

	handler := guildhttp.NewHandler(&handlerConfig, guildsync.NewMirror(repo, storage))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("starting server", "addr", addr, "auth", cfg.Server.Auth, "metrics", cfg.Metrics.Enabled)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	}

	wg.Wait()
	return nil
}
