package masterdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client owns projects.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// Vendor supplies materials; its ledger tracks what is owed to it.
type Vendor struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Project belongs to a client; its ledger tracks the client's running account.
type Project struct {
	ID        int64           `json:"id"`
	ClientID  int64           `json:"client_id"`
	Name      string          `json:"name"`
	Advance   decimal.Decimal `json:"advance"`
	VendorIDs []int64         `json:"vendor_ids,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Labor is a worker paid outside the ledgers.
type Labor struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	Salary    decimal.Decimal `json:"salary"`
	CreatedAt time.Time       `json:"created_at"`
}

// ClientInput creates a client.
type ClientInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"max=40"`
}

// VendorInput creates a vendor. OpeningBalance is signed: negative means the vendor owes us.
type VendorInput struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Phone          string          `json:"phone" validate:"max=40"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// ProjectInput creates a project under a client.
type ProjectInput struct {
	ClientID int64           `json:"client_id" validate:"required,gt=0"`
	Name     string          `json:"name" validate:"required,max=200"`
	Advance  decimal.Decimal `json:"advance"`
}

// LaborInput creates a labor record.
type LaborInput struct {
	Name   string          `json:"name" validate:"required,max=200"`
	Phone  string          `json:"phone" validate:"max=40"`
	Salary decimal.Decimal `json:"salary" validate:"gte=0"`
}

// DeleteReport counts removed rows per table.
type DeleteReport struct {
	Entity  string           `json:"entity"`
	ID      int64            `json:"id"`
	Removed map[string]int64 `json:"removed"`
}

func (r *DeleteReport) add(table string, n int64) {
	if r.Removed == nil {
		r.Removed = map[string]int64{}
	}
	r.Removed[table] += n
}
