// Command ledgerctl is the operator CLI for schema migrations, ledger verification and job triggers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/siteledger/internal/app"
)

type cliContext struct {
	cfg    *app.Config
	logger *slog.Logger
}

func (c *cliContext) load() error {
	if c.cfg != nil {
		return nil
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg
	c.logger = app.NewLogger(cfg)
	return nil
}

func newRootCmd() *cobra.Command {
	cc := &cliContext{}
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the site ledger: migrations, verification and background jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cc.load()
		},
	}
	root.AddCommand(newMigrateCmd(cc), newVerifyCmd(cc), newEnqueueCmd(cc))
	return root
}

func main() {
	ctx := context.Background()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}
