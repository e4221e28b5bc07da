package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxeo-ai/journey-canary/internal/cleanup"
	"github.com/maxeo-ai/journey-canary/internal/config"
	"github.com/maxeo-ai/journey-canary/internal/platform/postgres"
)

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Soft-delete stale canary rows left by interrupted runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := newLogger()

			cfg, err := config.LoadPartial(configPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			dbCfg, err := postgres.ConfigFromEnv()
			if err != nil {
				return fmt.Errorf("database configuration: %w", err)
			}
			db, err := postgres.Open(ctx, dbCfg)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			sweeper, err := cleanup.NewSweeper(db, cfg.Identity.EmailDomain, cfg.StaleRetention, log)
			if err != nil {
				return err
			}
			stats, err := sweeper.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swept %d rows (%d workspaces, %d identities)\n",
				stats.Total(), stats.Workspaces, stats.Identities)
			return nil
		},
	}
}
