package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/siteledger/internal/events"
	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/platform/db"
)

var errViolations = errors.New("ledger violations found")

func newVerifyCmd(cc *cliContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "verify [vendor|project ID]",
		Short: "Recompute running balances and report entries that do not chain",
		Long: `Without arguments every vendor and project ledger is checked.
With an entity kind and id only that ledger is checked.
The command exits non-zero when a violation is found.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or <entity> <id>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := db.New(ctx, cc.cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			svc := ledger.NewService(ledger.NewRepository(pool), nil, events.Nop{}, nil, cc.logger)

			report := ledger.VerifyReport{}
			if len(args) == 2 {
				entity, err := ledger.ParseEntityKind(args[0])
				if err != nil {
					return err
				}
				id, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid id %q", args[1])
				}
				report.Violations, err = svc.Verify(ctx, entity, id)
				if err != nil {
					return err
				}
				report.Checked = 1
			} else {
				report, err = svc.VerifyAll(ctx)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				for _, v := range report.Violations {
					fmt.Fprintf(out, "%s %d seq=%d %s expected=%s actual=%s\n",
						v.Entity, v.EntityID, v.Seq, v.Reason, v.Expected.StringFixed(2), v.Actual.StringFixed(2))
				}
				fmt.Fprintf(out, "checked %d ledgers, %d violations\n", report.Checked, len(report.Violations))
			}
			if len(report.Violations) > 0 {
				return errViolations
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
