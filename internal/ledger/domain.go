package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/siteledger/internal/shared"
)

// EntityKind identifies which ledger an entry belongs to.
type EntityKind string

const (
	// KindProject is the project (receivable) ledger.
	KindProject EntityKind = "project"
	// KindVendor is the vendor (payable) ledger.
	KindVendor EntityKind = "vendor"
)

// Valid reports whether the kind names a ledger.
func (k EntityKind) Valid() bool {
	return k == KindProject || k == KindVendor
}

// ParseEntityKind validates raw input.
func ParseEntityKind(raw string) (EntityKind, error) {
	k := EntityKind(raw)
	if !k.Valid() {
		return "", shared.NewValidationError("entity", "must be one of project vendor")
	}
	return k, nil
}

// EntryKind classifies how an entry moves the balance.
type EntryKind string

const (
	// EntryOpening seeds a vendor ledger with its opening balance.
	EntryOpening EntryKind = "opening"
	// EntryAdvance seeds a project ledger with the client's advance.
	EntryAdvance EntryKind = "advance"
	// EntryStandard is an ordinary debit or credit.
	EntryStandard EntryKind = "entry"
	// EntrySettlement is the net settlement of a finalized invoice.
	EntrySettlement EntryKind = "settlement"
	// EntryReversal compensates an earlier entry.
	EntryReversal EntryKind = "reversal"
)

// IsSeed reports whether the kind is the synthetic first entry of a ledger.
func (k EntryKind) IsSeed() bool {
	return k == EntryOpening || k == EntryAdvance
}

// Entry is an immutable ledger row.
type Entry struct {
	ID          int64           `json:"id"`
	Entity      EntityKind      `json:"entity"`
	EntityID    int64           `json:"entity_id"`
	Seq         int64           `json:"seq"`
	At          time.Time       `json:"at"`
	Kind        EntryKind       `json:"kind"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

// Delta is the signed change the entry applies to the running balance.
// Settlement entries add the net amount owed (debit - credit); all others apply credit - debit.
func (e Entry) Delta() decimal.Decimal {
	return delta(e.Kind, e.Debit, e.Credit)
}

func delta(kind EntryKind, debit, credit decimal.Decimal) decimal.Decimal {
	if kind == EntrySettlement {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// Posting is a request to append one entry.
type Posting struct {
	Entity      EntityKind
	EntityID    int64
	Kind        EntryKind
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Validate checks a posting before any store access.
func (p Posting) Validate() error {
	fields := map[string]string{}
	if !p.Entity.Valid() {
		fields["entity"] = "must be one of project vendor"
	}
	if p.EntityID <= 0 {
		fields["entity_id"] = "must be a positive integer"
	}
	switch p.Kind {
	case EntryOpening, EntryAdvance, EntryStandard, EntrySettlement, EntryReversal:
	default:
		fields["kind"] = fmt.Sprintf("unknown entry kind %q", p.Kind)
	}
	if p.Description == "" {
		fields["description"] = "is required"
	}
	if p.Debit.IsNegative() {
		fields["debit"] = "must be at least 0"
	}
	if p.Credit.IsNegative() {
		fields["credit"] = "must be at least 0"
	}
	if len(fields) == 0 && !p.Kind.IsSeed() {
		bothZero := p.Debit.IsZero() && p.Credit.IsZero()
		bothSet := !p.Debit.IsZero() && !p.Credit.IsZero()
		switch {
		case bothZero && p.Kind != EntrySettlement:
			fields["amount"] = "debit or credit must be greater than 0"
		case bothSet && p.Kind != EntrySettlement:
			fields["amount"] = "only one of debit or credit may be set"
		}
	}
	if len(fields) > 0 {
		return &shared.ValidationError{Fields: fields}
	}
	return nil
}

// SeedPosting builds the synthetic first entry for a signed seed amount.
// Positive seeds are credits, negative seeds are debits.
func SeedPosting(entity EntityKind, id int64, seed decimal.Decimal) Posting {
	p := Posting{Entity: entity, EntityID: id}
	switch entity {
	case KindVendor:
		p.Kind = EntryOpening
		p.Description = "Opening Balance"
	default:
		p.Kind = EntryAdvance
		p.Description = "Advance"
	}
	if seed.IsNegative() {
		p.Debit = seed.Neg()
	} else {
		p.Credit = seed
	}
	return p
}

// Owner is the entity a ledger belongs to, locked for the duration of an append.
type Owner struct {
	Entity EntityKind
	ID     int64
	Name   string
	Seed   decimal.Decimal
}

// Balance is an entity's current running balance.
type Balance struct {
	Entity   EntityKind      `json:"entity"`
	EntityID int64           `json:"entity_id"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	Seeded   bool            `json:"seeded"`
}

// Activity is a ledger entry tagged with its origin for the recent-activity feed.
type Activity struct {
	Origin     EntityKind      `json:"origin"`
	EntityID   int64           `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	EntryID    int64           `json:"entry_id"`
	Seq        int64           `json:"seq"`
	At         time.Time       `json:"at"`
	Kind       EntryKind       `json:"kind"`
	Desc       string          `json:"description"`
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
	Balance    decimal.Decimal `json:"balance"`
}

// Violation is a broken running-balance invariant found by Verify.
type Violation struct {
	Entity   EntityKind      `json:"entity"`
	EntityID int64           `json:"entity_id"`
	Seq      int64           `json:"seq"`
	Reason   string          `json:"reason"`
	Expected decimal.Decimal `json:"expected"`
	Actual   decimal.Decimal `json:"actual"`
}

// DashboardCounts are the non-ledger figures shown next to the balances.
type DashboardCounts struct {
	PendingInvoices      int `json:"pending_invoices"`
	ActiveProjectsInYear int `json:"active_projects_in_year"`
}

// Dashboard is the cached overview.
type Dashboard struct {
	TotalPayable    decimal.Decimal `json:"total_payable"`
	TotalReceivable decimal.Decimal `json:"total_receivable"`
	DashboardCounts
	RecentActivity []Activity `json:"recent_activity"`
	GeneratedAt    time.Time  `json:"generated_at"`
}
