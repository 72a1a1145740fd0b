package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runclub/clubsync/internal/models"
)

func newSyncCmd(c *cli) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync one member's activities now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.orchestrator.SyncUser(ctx, userID, models.SyncTriggerManual)
			if err := printJSON(result); err != nil {
				return err
			}
			if result.Failed() {
				return fmt.Errorf("sync failed: %s", result.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "member id to sync")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSweepCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Sync every member once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.sweep(ctx)
		},
	}
}

func (c *cli) sweep(ctx context.Context) error {
	a, err := newApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.orchestrator.SyncAllUsers(ctx)
	if err := printJSON(report); err != nil {
		return err
	}
	if report.Err != nil {
		return report.Err
	}
	if report.Failures > 0 {
		return fmt.Errorf("sweep finished with %d failed users: %v", report.Failures, report.FailedUsers())
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
