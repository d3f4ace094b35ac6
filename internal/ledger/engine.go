package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/siteledger/internal/events"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// Metrics receives posting outcomes.
type Metrics interface {
	ObservePosting(entity EntityKind, kind EntryKind, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObservePosting(EntityKind, EntryKind, error) {}

// Poster appends entries inside transactions owned by the caller, so a ledger write commits or
// rolls back together with the business change that caused it.
type Poster struct {
	clock   func() time.Time
	metrics Metrics
}

// NewPoster constructs a Poster. A nil metrics sink is allowed.
func NewPoster(metrics Metrics) *Poster {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Poster{
		clock:   func() time.Time { return time.Now().UTC() },
		metrics: metrics,
	}
}

// WithClock overrides the time source.
func (p *Poster) WithClock(clock func() time.Time) *Poster {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Post appends one entry. The owning entity row is locked first, so concurrent posts against the
// same entity queue behind each other and each one reads the tail its predecessor committed.
func (p *Poster) Post(ctx context.Context, tx TxRepository, posting Posting) (Entry, error) {
	entry, err := p.post(ctx, tx, posting)
	p.metrics.ObservePosting(posting.Entity, posting.Kind, err)
	return entry, err
}

func (p *Poster) post(ctx context.Context, tx TxRepository, posting Posting) (Entry, error) {
	if err := posting.Validate(); err != nil {
		return Entry{}, err
	}
	owner, err := tx.LockOwner(ctx, posting.Entity, posting.EntityID)
	if err != nil {
		return Entry{}, err
	}
	last, found, err := tx.LastEntry(ctx, posting.Entity, posting.EntityID)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Entity:      posting.Entity,
		EntityID:    posting.EntityID,
		Kind:        posting.Kind,
		Description: posting.Description,
		Debit:       posting.Debit,
		Credit:      posting.Credit,
		Seq:         1,
		At:          p.clock().UTC(),
	}

	prior := owner.Seed
	switch {
	case posting.Kind.IsSeed() && found:
		return Entry{}, fmt.Errorf("%w: %s %d ledger already seeded", shared.ErrInvalidState, posting.Entity, posting.EntityID)
	case posting.Kind.IsSeed():
		prior = decimal.Zero
	case found:
		prior = last.Balance
	}
	if found {
		entry.Seq = last.Seq + 1
		if entry.At.Before(last.At) {
			entry.At = last.At
		}
	}
	entry.Balance = prior.Add(entry.Delta())

	id, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	entry.ID = id
	return entry, nil
}

// Notification describes a committed entry to subscribers of the owning entity.
func Notification(entry Entry) events.Notification {
	if entry.Entity == KindVendor {
		return events.New(events.VendorTopic(entry.EntityID), events.VendorLedgerUpdated, entry)
	}
	return events.New(events.ProjectTopic(entry.EntityID), events.ProjectLedgerUpdated, entry)
}

// Verify recomputes the chain of entries (ascending) and returns every broken link.
// seed is used as the predecessor balance when the first entry is not a seed entry.
func Verify(entity EntityKind, id int64, seed decimal.Decimal, entries []Entry) []Violation {
	var out []Violation
	prior := seed
	var prevSeq int64
	var prevAt time.Time
	for i, e := range entries {
		if i == 0 && e.Kind.IsSeed() {
			prior = decimal.Zero
		}
		if i > 0 && e.Kind.IsSeed() {
			out = append(out, Violation{Entity: entity, EntityID: id, Seq: e.Seq, Reason: "seed entry after first position", Expected: prior, Actual: e.Balance})
		}
		if i > 0 && e.Seq <= prevSeq {
			out = append(out, Violation{Entity: entity, EntityID: id, Seq: e.Seq, Reason: fmt.Sprintf("sequence %d does not follow %d", e.Seq, prevSeq), Expected: prior, Actual: e.Balance})
		}
		if i > 0 && e.At.Before(prevAt) {
			out = append(out, Violation{Entity: entity, EntityID: id, Seq: e.Seq, Reason: "timestamp precedes previous entry", Expected: prior, Actual: e.Balance})
		}
		if e.Debit.IsNegative() || e.Credit.IsNegative() {
			out = append(out, Violation{Entity: entity, EntityID: id, Seq: e.Seq, Reason: "negative debit or credit", Expected: prior, Actual: e.Balance})
		}
		expected := prior.Add(e.Delta())
		if !expected.Equal(e.Balance) {
			out = append(out, Violation{Entity: entity, EntityID: id, Seq: e.Seq, Reason: "balance does not follow previous entry", Expected: expected, Actual: e.Balance})
		}
		prior = e.Balance
		prevSeq = e.Seq
		prevAt = e.At
	}
	return out
}
