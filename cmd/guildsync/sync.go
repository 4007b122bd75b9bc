package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/galexite/guildsync/config"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download resources that changed in the bucket",
	Long: `Compare the bucket's Last-Modified time of every resource with the recorded
state and download the ones that moved forward. A resource the bucket does
not return is skipped and the local copy is kept.

Without --interval a single cycle runs and a report is printed. With
--interval the cycle repeats until interrupted.

Examples:
  guildsync sync
  guildsync sync --resources events
  guildsync sync --interval 10m`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Duration("interval", 0, "repeat every interval until interrupted (env: GUILDSYNC_SYNC_INTERVAL)")
	syncCmd.Flags().StringSlice("resources", nil, "resources to sync (default: all)")
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	repo, closeDB, err := openState(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closeDB()

	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	service, err := newSyncService(ctx, cfg, nil, repo, storage)
	if err != nil {
		return err
	}

	if cfg.Sync.Interval > 0 {
		slog.Info("sync loop started", "interval", cfg.Sync.Interval)
		return service.Run(ctx, cfg.Sync.Interval)
	}

	report, syncErr := service.SyncAll(ctx)
	if err := getFormatter(cmd).FormatReport(os.Stdout, report); err != nil {
		return err
	}
	if syncErr != nil {
		return fmt.Errorf("sync: %w", syncErr)
	}
	return nil
}
