package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/siteledger/internal/jobs"
	"github.com/odyssey-erp/siteledger/internal/ledger"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Verifier recomputes running balances.
type Verifier interface {
	VerifyAll(ctx context.Context) (ledger.VerifyReport, error)
}

// LedgerVerifyJob walks every vendor and project ledger looking for broken balances.
type LedgerVerifyJob struct {
	Verifier Verifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewLedgerVerifyJob wires dependencies for the verification handler.
func NewLedgerVerifyJob(verifier Verifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerVerifyJob {
	return &LedgerVerifyJob{Verifier: verifier, Logger: logger, Metrics: metrics}
}

// Handle runs a verification pass. Violations are reported, not repaired.
func (j *LedgerVerifyJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Verifier == nil {
		return errors.New("ledger verify: handler not configured")
	}
	var payload LedgerVerifyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskLedgerVerify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.RequestedBy != "" {
		logger = logger.With(slog.String("requested_by", payload.RequestedBy))
	}
	logger.Info("starting ledger verification")

	report, err := j.Verifier.VerifyAll(ctx)
	if err != nil {
		logger.Error("ledger verification failed", slog.Any("error", err))
		return err
	}

	perEntity := make(map[ledger.EntityKind]int)
	for _, v := range report.Violations {
		perEntity[v.Entity]++
		logger.Warn("ledger balance drift",
			slog.String("entity", string(v.Entity)),
			slog.Int64("entity_id", v.EntityID),
			slog.Int64("seq", v.Seq),
			slog.String("reason", v.Reason),
			slog.String("expected", v.Expected.String()),
			slog.String("actual", v.Actual.String()),
		)
	}
	for entity, n := range perEntity {
		j.metrics().AddViolations(string(entity), n)
	}

	logger.Info("completed ledger verification",
		slog.Int("ledgers", report.Checked),
		slog.Int("violations", len(report.Violations)),
	)
	return nil
}

func (j *LedgerVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerVerify))
	}
	return slog.Default().With(slog.String("job", TaskLedgerVerify))
}

func (j *LedgerVerifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
