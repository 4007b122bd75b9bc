package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/galexite/guildsync/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded state of every resource",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	repo, closeDB, err := openState(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closeDB()

	states, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list state: %w", err)
	}
	return getFormatter(cmd).FormatStates(os.Stdout, states)
}
