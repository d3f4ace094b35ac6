package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/siteledger/internal/platform/db"
)

func newMigrateCmd(cc *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert the embedded schema migrations",
	}

	var steps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations (all unless --steps is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, cc, "up", steps)
		},
	}
	up.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply")

	var downSteps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations (one unless --steps is set, 0 reverts everything)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, cc, "down", downSteps)
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to revert")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.New(cmd.Context(), cc.cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			v, dirty, err := db.MigrationVersion(pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func runMigrate(cmd *cobra.Command, cc *cliContext, direction string, steps int) error {
	if steps < 0 {
		return fmt.Errorf("steps must not be negative")
	}
	pool, err := db.New(cmd.Context(), cc.cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := db.Migrate(pool, direction, steps); err != nil {
		return err
	}
	cc.logger.Info("migrations applied", slog.String("direction", direction), slog.Int("steps", steps))
	return nil
}
