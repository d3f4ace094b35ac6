package cashbook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/siteledger/internal/events"
	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// Service records expenses, payments and wages and keeps the ledgers in step with them.
type Service struct {
	repo      Repository
	poster    *ledger.Poster
	publisher events.Publisher
	dedup     Deduplicator
	logger    *slog.Logger
	clock     func() time.Time
}

// NewService builds Service. dedup may be nil, in which case idempotency keys are ignored.
func NewService(repo Repository, poster *ledger.Poster, publisher events.Publisher, dedup Deduplicator, logger *slog.Logger) *Service {
	if poster == nil {
		poster = ledger.NewPoster(nil)
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, poster: poster, publisher: publisher, dedup: dedup, logger: logger, clock: time.Now}
}

// WithClock overrides the time source used for missing dates.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock().UTC()
	}
	return t.UTC()
}

// RecordExpense stores an expense and debits the project or vendor ledger it is charged to.
func (s *Service) RecordExpense(ctx context.Context, input ExpenseInput) (Posted[Expense], error) {
	input.Method = strings.TrimSpace(input.Method)
	if err := shared.Validate(input); err != nil {
		return Posted[Expense]{}, err
	}
	if err := checkTarget(input); err != nil {
		return Posted[Expense]{}, err
	}
	expense := Expense{
		Type:      input.Type,
		ProjectID: input.ProjectID,
		VendorID:  input.VendorID,
		Amount:    shared.RoundMoney(input.Amount),
		Method:    input.Method,
		SpentAt:   s.stamp(input.SpentAt),
	}
	entity, id := expense.Target()

	var entry ledger.Entry
	err := s.once(ctx, input.IdempotencyKey, scopeExpense, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			// Posting first locks the owner and reports a missing project or vendor as NotFound.
			entry, err = s.poster.Post(ctx, tx.Ledger(), ledger.Posting{
				Entity:      entity,
				EntityID:    id,
				Kind:        ledger.EntryStandard,
				Description: expenseDescription(expense),
				Debit:       expense.Amount,
			})
			if err != nil {
				return err
			}
			expense.ID, err = tx.InsertExpense(ctx, expense)
			return err
		})
	})
	if err != nil {
		return Posted[Expense]{}, err
	}
	s.notify(ctx, events.New(events.TopicCashbook, events.ExpenseRecorded, expense), ledger.Notification(entry))
	return Posted[Expense]{Record: expense, Entry: entry}, nil
}

func checkTarget(input ExpenseInput) error {
	switch input.Type {
	case ExpenseProject:
		if input.ProjectID <= 0 {
			return shared.NewValidationError("project_id", "is required for project expenses")
		}
		if input.VendorID != 0 {
			return shared.NewValidationError("vendor_id", "must be empty for project expenses")
		}
	case ExpensePurchase:
		if input.VendorID <= 0 {
			return shared.NewValidationError("vendor_id", "is required for purchase expenses")
		}
		if input.ProjectID != 0 {
			return shared.NewValidationError("project_id", "must be empty for purchase expenses")
		}
	}
	return nil
}

func expenseDescription(e Expense) string {
	if e.Type == ExpensePurchase {
		return "Purchase payment (" + e.Method + ")"
	}
	return "Expense (" + e.Method + ")"
}

// RecordPayment stores a client payment and credits the project ledger.
func (s *Service) RecordPayment(ctx context.Context, input PaymentInput) (Posted[Payment], error) {
	input.Method = strings.TrimSpace(input.Method)
	if err := shared.Validate(input); err != nil {
		return Posted[Payment]{}, err
	}
	payment := Payment{
		ProjectID: input.ProjectID,
		Amount:    shared.RoundMoney(input.Amount),
		Method:    input.Method,
		PaidAt:    s.stamp(input.PaidAt),
	}

	var entry ledger.Entry
	err := s.once(ctx, input.IdempotencyKey, scopePayment, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			entry, err = s.poster.Post(ctx, tx.Ledger(), ledger.Posting{
				Entity:      ledger.KindProject,
				EntityID:    payment.ProjectID,
				Kind:        ledger.EntryStandard,
				Description: "Payment received (" + payment.Method + ")",
				Credit:      payment.Amount,
			})
			if err != nil {
				return err
			}
			payment.ID, err = tx.InsertPayment(ctx, payment)
			return err
		})
	})
	if err != nil {
		return Posted[Payment]{}, err
	}
	s.notify(ctx, events.New(events.TopicCashbook, events.PaymentRecorded, payment), ledger.Notification(entry))
	return Posted[Payment]{Record: payment, Entry: entry}, nil
}

// DeleteExpense removes an expense and appends a reversal credit to its ledger.
func (s *Service) DeleteExpense(ctx context.Context, id int64) (Posted[Expense], error) {
	if id <= 0 {
		return Posted[Expense]{}, shared.NewValidationError("id", "must be a positive integer")
	}
	var (
		expense Expense
		entry   ledger.Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if expense, err = tx.GetExpense(ctx, id); err != nil {
			return err
		}
		entity, ownerID := expense.Target()
		// Owner row before the expense row, the same order a cascade delete takes them in.
		if _, err := tx.Ledger().LockOwner(ctx, entity, ownerID); err != nil {
			return err
		}
		n, err := tx.DeleteExpense(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: expense %d", shared.ErrNotFound, id)
		}
		entry, err = s.poster.Post(ctx, tx.Ledger(), ledger.Posting{
			Entity:      entity,
			EntityID:    ownerID,
			Kind:        ledger.EntryReversal,
			Description: fmt.Sprintf("Reversal of expense #%d", id),
			Credit:      expense.Amount,
		})
		return err
	})
	if err != nil {
		return Posted[Expense]{}, err
	}
	s.notify(ctx, events.New(events.TopicCashbook, events.ExpenseDeleted, expense), ledger.Notification(entry))
	return Posted[Expense]{Record: expense, Entry: entry}, nil
}

// DeletePayment removes a payment and appends a reversal debit to the project ledger.
func (s *Service) DeletePayment(ctx context.Context, id int64) (Posted[Payment], error) {
	if id <= 0 {
		return Posted[Payment]{}, shared.NewValidationError("id", "must be a positive integer")
	}
	var (
		payment Payment
		entry   ledger.Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if payment, err = tx.GetPayment(ctx, id); err != nil {
			return err
		}
		if _, err := tx.Ledger().LockOwner(ctx, ledger.KindProject, payment.ProjectID); err != nil {
			return err
		}
		n, err := tx.DeletePayment(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: payment %d", shared.ErrNotFound, id)
		}
		entry, err = s.poster.Post(ctx, tx.Ledger(), ledger.Posting{
			Entity:      ledger.KindProject,
			EntityID:    payment.ProjectID,
			Kind:        ledger.EntryReversal,
			Description: fmt.Sprintf("Reversal of payment #%d", id),
			Debit:       payment.Amount,
		})
		return err
	})
	if err != nil {
		return Posted[Payment]{}, err
	}
	s.notify(ctx, events.New(events.TopicCashbook, events.PaymentDeleted, payment), ledger.Notification(entry))
	return Posted[Payment]{Record: payment, Entry: entry}, nil
}

// RecordLaborPayment stores a wage payment.
func (s *Service) RecordLaborPayment(ctx context.Context, input LaborPaymentInput) (LaborPayment, error) {
	input.Method = strings.TrimSpace(input.Method)
	input.Description = strings.TrimSpace(input.Description)
	if err := shared.Validate(input); err != nil {
		return LaborPayment{}, err
	}
	payment := LaborPayment{
		LaborID:     input.LaborID,
		Description: input.Description,
		Amount:      shared.RoundMoney(input.Amount),
		Method:      input.Method,
		PaidAt:      s.stamp(input.PaidAt),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		name, err := tx.LockLabor(ctx, payment.LaborID)
		if err != nil {
			return err
		}
		payment.LaborName = name
		payment.ID, err = tx.InsertLaborPayment(ctx, payment)
		return err
	})
	if err != nil {
		return LaborPayment{}, err
	}
	s.notify(ctx, events.New(events.TopicCashbook, events.LaborPaymentRecorded, payment))
	return payment, nil
}

// ListExpenses returns expenses newest first.
func (s *Service) ListExpenses(ctx context.Context, filter ExpenseFilter) ([]Expense, error) {
	switch filter.Type {
	case "", ExpenseProject, ExpensePurchase:
	default:
		return nil, shared.NewValidationError("type", "must be one of project purchase")
	}
	return s.repo.ListExpenses(ctx, filter)
}

// ListPayments returns payments newest first, optionally for one project.
func (s *Service) ListPayments(ctx context.Context, projectID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, projectID)
}

// ListLaborPayments returns wage payments newest first, optionally for one labor record.
func (s *Service) ListLaborPayments(ctx context.Context, laborID int64) ([]LaborPayment, error) {
	return s.repo.ListLaborPayments(ctx, laborID)
}

// once runs fn at most once per idempotency key. The key is released when fn fails so the
// client can retry.
func (s *Service) once(ctx context.Context, key, scope string, fn func() error) error {
	if key == "" || s.dedup == nil {
		return fn()
	}
	if err := s.dedup.Claim(ctx, key, scope); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if relErr := s.dedup.Release(context.WithoutCancel(ctx), key, scope); relErr != nil {
			s.logger.Warn("release idempotency key", slog.String("scope", scope), slog.Any("error", relErr))
		}
		return err
	}
	return nil
}

func (s *Service) notify(ctx context.Context, ns ...events.Notification) {
	if err := events.PublishAll(ctx, s.publisher, ns...); err != nil {
		s.logger.Warn("cashbook notification failed", slog.Any("error", err))
	}
}
