package cashbook

import (
	"context"

	"github.com/odyssey-erp/siteledger/internal/ledger"
)

// TxRepository exposes transactional cashbook statements.
type TxRepository interface {
	Ledger() ledger.TxRepository

	InsertExpense(ctx context.Context, e Expense) (int64, error)
	GetExpense(ctx context.Context, id int64) (Expense, error)
	DeleteExpense(ctx context.Context, id int64) (int64, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	GetPayment(ctx context.Context, id int64) (Payment, error)
	DeletePayment(ctx context.Context, id int64) (int64, error)
	// LockLabor takes a share lock on the labor row and returns its name.
	LockLabor(ctx context.Context, id int64) (string, error)
	InsertLaborPayment(ctx context.Context, p LaborPayment) (int64, error)
}

// Repository exposes cashbook persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]Expense, error)
	ListPayments(ctx context.Context, projectID int64) ([]Payment, error)
	ListLaborPayments(ctx context.Context, laborID int64) ([]LaborPayment, error)
}

// Deduplicator guards against replayed requests.
type Deduplicator interface {
	Claim(ctx context.Context, key, scope string) error
	Release(ctx context.Context, key, scope string) error
}
