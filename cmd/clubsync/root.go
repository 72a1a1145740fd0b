package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/runclub/clubsync/internal/config"
	"github.com/runclub/clubsync/internal/logging"
)

// cli carries what every subcommand needs after flag parsing.
type cli struct {
	envFiles []string
	cfg      config.Config
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "clubsync",
		Short: "Activity sync service for the running club",
		Long: `clubsync keeps members' running activities in step with Strava.

It refreshes OAuth credentials, pages through each member's activity
history, keeps runs, trail runs and virtual runs, and upserts them.`,
		PersistentPreRunE: c.setup,
		SilenceUsage:      true,
	}
	root.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	root.AddCommand(
		newServeCmd(c),
		newSyncCmd(c),
		newSweepCmd(c),
	)
	return root
}

func (c *cli) setup(_ *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(c.envFiles...); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("Failed to load config", "error", err)
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}
