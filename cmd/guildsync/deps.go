package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/galexite/guildsync"
	"github.com/galexite/guildsync/client"
	"github.com/galexite/guildsync/config"
	"github.com/galexite/guildsync/database"
	"github.com/galexite/guildsync/filesystem"
	"github.com/galexite/guildsync/metrics"
)

// newClient builds a bucket client from cfg. collector may be nil.
func newClient(ctx context.Context, cfg *config.Config, collector *metrics.Collector) (*client.Client, error) {
	clientCfg, err := cfg.ClientConfig(ctx)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.HTTP.MaxIdleConns > 0 {
		transport.MaxIdleConnsPerHost = cfg.HTTP.MaxIdleConns
	}

	opts := []client.Option{
		client.WithHTTPClient(&http.Client{Transport: transport}),
		client.WithTimeout(cfg.HTTP.Timeout),
		client.WithLogger(slog.Default().With("component", "client")),
	}
	if collector != nil {
		opts = append(opts, client.WithObserver(collector))
	}

	return client.New(clientCfg, opts...)
}

// openState connects the state database. The returned repo is
// instrumented when collector is not nil.
func openState(ctx context.Context, cfg *config.Config, collector *metrics.Collector) (guildsync.StateRepo, func(), error) {
	repo, closeDB, err := database.Connect(ctx, cfg.State)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Debug("connected to database", "type", cfg.State.Type, "table", cfg.State.Table)

	if collector != nil {
		repo = collector.InstrumentStateRepo(repo)
	}
	return repo, closeDB, nil
}

// openStorage opens the payload directory, creating it if needed.
func openStorage(cfg *config.Config) (*filesystem.Store, func(), error) {
	storage, closeRoot, err := filesystem.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	return storage, func() { _ = closeRoot() }, nil
}

// newSyncService wires a SyncService to the bucket described by cfg and the
// given state repository and payload storage.
func newSyncService(ctx context.Context, cfg *config.Config, collector *metrics.Collector, repo guildsync.StateRepo, storage guildsync.PayloadStorage) (*guildsync.SyncService, error) {
	resources, err := cfg.Resources()
	if err != nil {
		return nil, err
	}

	c, err := newClient(ctx, cfg, collector)
	if err != nil {
		return nil, err
	}

	syncCfg := guildsync.SyncConfig{
		Resources: resources,
		Logger:    slog.Default().With("component", "sync"),
		OnUpdate: func(_ context.Context, state guildsync.SyncState) {
			slog.Info("payload replaced", "resource", state.Resource.String(), "last_modified", state.LastModified)
		},
	}
	if collector != nil {
		syncCfg.Observer = collector
	}

	service, err := guildsync.NewSyncService(c, repo, storage, syncCfg)
	if err != nil {
		return nil, fmt.Errorf("create sync service: %w", err)
	}
	return service, nil
}
