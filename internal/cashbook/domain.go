// Package cashbook records money moving in and out of projects and vendors: project and purchase
// expenses, client payments and labor wages.
package cashbook

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/siteledger/internal/ledger"
)

// ExpenseType selects which ledger an expense is charged to.
type ExpenseType string

const (
	// ExpenseProject is spent on a project and debits the project ledger.
	ExpenseProject ExpenseType = "project"
	// ExpensePurchase is paid to a vendor and debits the vendor ledger.
	ExpensePurchase ExpenseType = "purchase"
)

// Idempotency scopes.
const (
	scopeExpense = "cashbook.expense"
	scopePayment = "cashbook.payment"
)

// Expense is money paid out.
type Expense struct {
	ID         int64           `json:"id"`
	Type       ExpenseType     `json:"type"`
	ProjectID  int64           `json:"project_id,omitempty"`
	VendorID   int64           `json:"vendor_id,omitempty"`
	TargetName string          `json:"target_name,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	SpentAt    time.Time       `json:"spent_at"`
}

// Target returns the ledger the expense is charged to.
func (e Expense) Target() (ledger.EntityKind, int64) {
	if e.Type == ExpensePurchase {
		return ledger.KindVendor, e.VendorID
	}
	return ledger.KindProject, e.ProjectID
}

// Payment is money received from a client for a project.
type Payment struct {
	ID          int64           `json:"id"`
	ProjectID   int64           `json:"project_id"`
	ProjectName string          `json:"project_name,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	PaidAt      time.Time       `json:"paid_at"`
}

// LaborPayment is a wage paid to a labor record. It never reaches a ledger.
type LaborPayment struct {
	ID          int64           `json:"id"`
	LaborID     int64           `json:"labor_id"`
	LaborName   string          `json:"labor_name,omitempty"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	PaidAt      time.Time       `json:"paid_at"`
}

// ExpenseInput records an expense. Exactly one of ProjectID and VendorID must be set, matching Type.
type ExpenseInput struct {
	Type           ExpenseType     `json:"type" validate:"required,oneof=project purchase"`
	ProjectID      int64           `json:"project_id" validate:"gte=0"`
	VendorID       int64           `json:"vendor_id" validate:"gte=0"`
	Amount         decimal.Decimal `json:"amount" validate:"money_gt0"`
	Method         string          `json:"method" validate:"required,max=40"`
	SpentAt        time.Time       `json:"spent_at"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=100"`
}

// PaymentInput records a client payment.
type PaymentInput struct {
	ProjectID      int64           `json:"project_id" validate:"required,gt=0"`
	Amount         decimal.Decimal `json:"amount" validate:"money_gt0"`
	Method         string          `json:"method" validate:"required,max=40"`
	PaidAt         time.Time       `json:"paid_at"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=100"`
}

// LaborPaymentInput records a wage payment.
type LaborPaymentInput struct {
	LaborID     int64           `json:"labor_id" validate:"required,gt=0"`
	Description string          `json:"description" validate:"max=200"`
	Amount      decimal.Decimal `json:"amount" validate:"money_gt0"`
	Method      string          `json:"method" validate:"required,max=40"`
	PaidAt      time.Time       `json:"paid_at"`
}

// ExpenseFilter narrows ListExpenses. Zero values match everything.
type ExpenseFilter struct {
	Type      ExpenseType
	ProjectID int64
	VendorID  int64
}

// Posted pairs a cashbook record with the ledger entry it produced.
type Posted[T any] struct {
	Record T            `json:"record"`
	Entry  ledger.Entry `json:"ledger_entry"`
}
