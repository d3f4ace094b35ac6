package main

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/siteledger/jobs"
)

func newEnqueueCmd(cc *cliContext) *cobra.Command {
	var (
		activityLimit int
		retention     time.Duration
	)
	cmd := &cobra.Command{
		Use:       "enqueue <job>",
		Short:     "Queue a background job for the worker",
		ValidArgs: []string{jobs.TaskLedgerVerify, jobs.TaskDashboardWarmup, jobs.TaskIdempotencyCleanup},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cc.cfg.RedisAddr, Password: cc.cfg.RedisPassword, DB: cc.cfg.RedisDB})
			if err != nil {
				return err
			}
			defer client.Close()

			ctx := cmd.Context()
			var info *asynq.TaskInfo
			switch args[0] {
			case jobs.TaskLedgerVerify:
				info, err = client.EnqueueLedgerVerify(ctx, jobs.LedgerVerifyPayload{RequestedBy: "ledgerctl"})
			case jobs.TaskDashboardWarmup:
				info, err = client.EnqueueDashboardWarmup(ctx, jobs.DashboardWarmupPayload{ActivityLimit: activityLimit})
			case jobs.TaskIdempotencyCleanup:
				info, err = client.EnqueueIdempotencyCleanup(ctx, jobs.IdempotencyCleanupPayload{Retention: retention})
			}
			if err != nil {
				return fmt.Errorf("enqueue %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().IntVar(&activityLimit, "activity-limit", 0, "recent activity rows for dashboard:warmup")
	cmd.Flags().DurationVar(&retention, "retention", jobs.DefaultIdempotencyRetention, "key age to keep for idempotency:cleanup")
	return cmd
}
