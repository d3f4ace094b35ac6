package invoices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/siteledger/internal/events"
	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// Service drives vendor invoices from draft to finalization.
type Service struct {
	repo      Repository
	poster    *ledger.Poster
	publisher events.Publisher
	logger    *slog.Logger
	clock     func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, poster *ledger.Poster, publisher events.Publisher, logger *slog.Logger) *Service {
	if poster == nil {
		poster = ledger.NewPoster(nil)
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, poster: poster, publisher: publisher, logger: logger, clock: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// Start opens a DRAFT invoice for an existing vendor.
func (s *Service) Start(ctx context.Context, input StartInput) (Invoice, error) {
	input.Number = strings.TrimSpace(input.Number)
	if err := shared.Validate(input); err != nil {
		return Invoice{}, err
	}
	inv := Invoice{
		VendorID:    input.VendorID,
		Number:      input.Number,
		Status:      StatusDraft,
		InvoiceDate: input.InvoiceDate,
		CreatedAt:   s.now(),
	}
	if inv.InvoiceDate.IsZero() {
		inv.InvoiceDate = inv.CreatedAt.Truncate(24 * time.Hour)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		owner, err := tx.Ledger().LockOwner(ctx, ledger.KindVendor, inv.VendorID)
		if err != nil {
			return err
		}
		inv.VendorName = owner.Name
		inv.ID, err = tx.InsertInvoice(ctx, inv)
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.notify(ctx, events.New(events.TopicInvoices, events.InvoiceAdded, inv))
	return inv, nil
}

// AddItem appends a line to a draft invoice and refreshes its subtotal.
func (s *Service) AddItem(ctx context.Context, invoiceID int64, input ItemInput) (Item, error) {
	if invoiceID <= 0 {
		return Item{}, shared.NewValidationError("invoice_id", "must be a positive integer")
	}
	input.Product = strings.TrimSpace(input.Product)
	if err := shared.Validate(input); err != nil {
		return Item{}, err
	}
	item := Item{
		InvoiceID: invoiceID,
		Product:   input.Product,
		Quantity:  shared.RoundQuantity(input.Quantity),
		Unit:      strings.TrimSpace(input.Unit),
		Rate:      shared.RoundMoney(input.Rate),
		Total:     shared.RoundMoney(input.Total),
	}
	var subtotal decimal.Decimal
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockDraft(ctx, tx, invoiceID); err != nil {
			return err
		}
		var err error
		if item.ID, err = tx.InsertItem(ctx, item); err != nil {
			return err
		}
		subtotal, err = tx.RecomputeSubtotal(ctx, invoiceID)
		return err
	})
	if err != nil {
		return Item{}, err
	}
	s.notify(ctx, events.New(events.InvoiceTopic(invoiceID), events.InvoiceUpdated, map[string]any{
		"invoice_id": invoiceID, "item": item, "subtotal": subtotal,
	}))
	return item, nil
}

// DeleteItem removes a line from a draft invoice and returns the recomputed subtotal.
func (s *Service) DeleteItem(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	if itemID <= 0 {
		return decimal.Zero, shared.NewValidationError("item_id", "must be a positive integer")
	}
	var (
		invoiceID int64
		subtotal  decimal.Decimal
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if invoiceID, err = tx.ItemInvoice(ctx, itemID); err != nil {
			return err
		}
		if _, err := lockDraft(ctx, tx, invoiceID); err != nil {
			return err
		}
		n, err := tx.DeleteItem(ctx, itemID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: invoice item %d", shared.ErrNotFound, itemID)
		}
		subtotal, err = tx.RecomputeSubtotal(ctx, invoiceID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.notify(ctx, events.New(events.InvoiceTopic(invoiceID), events.InvoiceUpdated, map[string]any{
		"invoice_id": invoiceID, "deleted_item_id": itemID, "subtotal": subtotal,
	}))
	return subtotal, nil
}

// RecordAdvance stores a prepayment against a draft invoice. It does not touch the vendor ledger;
// advances reach the ledger as the credit side of the settlement entry.
func (s *Service) RecordAdvance(ctx context.Context, invoiceID int64, input AdvanceInput) (Advance, error) {
	if invoiceID <= 0 {
		return Advance{}, shared.NewValidationError("invoice_id", "must be a positive integer")
	}
	if err := shared.Validate(input); err != nil {
		return Advance{}, err
	}
	adv := Advance{InvoiceID: invoiceID, Amount: shared.RoundMoney(input.Amount), PaidAt: s.now()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := lockDraft(ctx, tx, invoiceID); err != nil {
			return err
		}
		var err error
		adv.ID, err = tx.InsertAdvance(ctx, adv)
		return err
	})
	if err != nil {
		return Advance{}, err
	}
	s.notify(ctx, events.New(events.InvoiceTopic(invoiceID), events.InvoiceUpdated, map[string]any{
		"invoice_id": invoiceID, "advance": adv,
	}))
	return adv, nil
}

// Finalize freezes a draft invoice and posts one settlement entry to the vendor ledger:
// debit total_amount, credit advance_paid.
func (s *Service) Finalize(ctx context.Context, invoiceID int64, input FinalizeInput) (Invoice, ledger.Entry, error) {
	if invoiceID <= 0 {
		return Invoice{}, ledger.Entry{}, shared.NewValidationError("invoice_id", "must be a positive integer")
	}
	if err := shared.Validate(input); err != nil {
		return Invoice{}, ledger.Entry{}, err
	}
	total := shared.RoundMoney(input.TotalAmount)
	closing := shared.RoundMoney(input.ClosingAdvance)

	var (
		inv   Invoice
		entry ledger.Entry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		vendorID, err := tx.InvoiceVendor(ctx, invoiceID)
		if err != nil {
			return err
		}
		// Vendor row first, matching the lock order of a vendor cascade delete.
		if _, err := tx.Ledger().LockOwner(ctx, ledger.KindVendor, vendorID); err != nil {
			return err
		}
		if inv, err = lockDraft(ctx, tx, invoiceID); err != nil {
			return err
		}
		now := s.now()
		if closing.IsPositive() {
			if _, err := tx.InsertAdvance(ctx, Advance{InvoiceID: invoiceID, Amount: closing, PaidAt: now}); err != nil {
				return err
			}
		}
		advances, err := tx.SumAdvances(ctx, invoiceID)
		if err != nil {
			return err
		}
		inv.TotalAmount = total
		inv.AdvancePaid = advances
		inv.Balance = total.Sub(advances)
		inv.Number = fmt.Sprintf("%s-%d", inv.Number, inv.ID)
		inv.Status = StatusFinalized
		inv.FinalizedAt = &now
		n, err := tx.MarkFinalized(ctx, inv)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: invoice %d is already finalized", shared.ErrInvalidState, invoiceID)
		}
		entry, err = s.poster.Post(ctx, tx.Ledger(), ledger.Posting{
			Entity:      ledger.KindVendor,
			EntityID:    inv.VendorID,
			Kind:        ledger.EntrySettlement,
			Description: "Invoice " + inv.Number,
			Debit:       inv.TotalAmount,
			Credit:      inv.AdvancePaid,
		})
		return err
	})
	if err != nil {
		return Invoice{}, ledger.Entry{}, err
	}
	s.logger.Info("invoice finalized",
		slog.Int64("invoice_id", inv.ID),
		slog.Int64("vendor_id", inv.VendorID),
		slog.String("total", inv.TotalAmount.StringFixed(shared.MoneyScale)),
		slog.String("balance", inv.Balance.StringFixed(shared.MoneyScale)),
	)
	s.notify(ctx,
		events.New(events.InvoiceTopic(inv.ID), events.InvoiceUpdated, inv),
		events.New(events.TopicInvoices, events.InvoiceUpdated, inv),
		ledger.Notification(entry),
	)
	return inv, entry, nil
}

func lockDraft(ctx context.Context, tx TxRepository, id int64) (Invoice, error) {
	inv, err := tx.LockInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != StatusDraft {
		return Invoice{}, fmt.Errorf("%w: invoice %d is %s", shared.ErrInvalidState, id, inv.Status)
	}
	return inv, nil
}

func (s *Service) notify(ctx context.Context, ns ...events.Notification) {
	if err := events.PublishAll(ctx, s.publisher, ns...); err != nil {
		s.logger.Warn("invoice notification failed", slog.Any("error", err))
	}
}

// Get returns an invoice with its items and advances.
func (s *Service) Get(ctx context.Context, id int64) (Details, error) {
	if id <= 0 {
		return Details{}, shared.NewValidationError("id", "must be a positive integer")
	}
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Details{}, err
	}
	items, err := s.repo.Items(ctx, id)
	if err != nil {
		return Details{}, err
	}
	advances, err := s.repo.Advances(ctx, id)
	if err != nil {
		return Details{}, err
	}
	return Details{Invoice: inv, Items: items, Advances: advances}, nil
}

// List returns invoices matching filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	switch filter.Status {
	case "", StatusDraft, StatusFinalized:
	default:
		return nil, shared.NewValidationError("status", "must be one of DRAFT FINALIZED")
	}
	return s.repo.List(ctx, filter)
}

// ListFinalized returns every finalized invoice.
func (s *Service) ListFinalized(ctx context.Context) ([]Invoice, error) {
	return s.List(ctx, ListFilter{Status: StatusFinalized})
}

// ListDrafts returns draft invoices, optionally for one vendor.
func (s *Service) ListDrafts(ctx context.Context, vendorID int64) ([]Invoice, error) {
	return s.List(ctx, ListFilter{Status: StatusDraft, VendorID: vendorID})
}

// PendingInvoices returns finalized invoices with an outstanding balance, oldest first.
func (s *Service) PendingInvoices(ctx context.Context, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	return s.repo.Pending(ctx, limit)
}
