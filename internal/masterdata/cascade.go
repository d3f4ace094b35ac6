package masterdata

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/siteledger/internal/shared"
)

// cascade removes an entity's dependency closure inside one transaction. Children are always
// deleted before their parents so foreign keys hold after every statement.
type cascade struct {
	tx     TxRepository
	report *DeleteReport
}

func (c *cascade) remove(ctx context.Context, table, column string, ids ...int64) (int64, error) {
	n, err := c.tx.DeleteRows(ctx, table, column, ids)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	c.report.add(table, n)
	return n, nil
}

func (c *cascade) lock(ctx context.Context, table, what string, id int64) error {
	return lockExisting(ctx, c.tx, table, what, id)
}

func lockExisting(ctx context.Context, tx TxRepository, table, what string, id int64) error {
	ok, err := tx.LockRow(ctx, table, id)
	if err != nil {
		return fmt.Errorf("lock %s: %w", table, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s %d", shared.ErrNotFound, what, id)
	}
	return nil
}

func (c *cascade) removeParent(ctx context.Context, table, what string, id int64) error {
	n, err := c.remove(ctx, table, "id", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", shared.ErrNotFound, what, id)
	}
	return nil
}

// vendor: invoice items and advances -> invoices -> purchase expenses -> ledger -> project links -> vendor.
func (c *cascade) vendor(ctx context.Context, id int64) error {
	if err := c.lock(ctx, tableVendors, "vendor", id); err != nil {
		return err
	}
	invoiceIDs, err := c.tx.ChildIDs(ctx, tableInvoices, "vendor_id", id)
	if err != nil {
		return fmt.Errorf("collect invoices: %w", err)
	}
	if len(invoiceIDs) > 0 {
		if _, err := c.remove(ctx, tableInvoiceItems, "invoice_id", invoiceIDs...); err != nil {
			return err
		}
		if _, err := c.remove(ctx, tableInvoiceAdvances, "invoice_id", invoiceIDs...); err != nil {
			return err
		}
		if _, err := c.remove(ctx, tableInvoices, "id", invoiceIDs...); err != nil {
			return err
		}
	}
	if _, err := c.remove(ctx, tableExpenses, "vendor_id", id); err != nil {
		return err
	}
	if _, err := c.remove(ctx, tableVendorLedger, "vendor_id", id); err != nil {
		return err
	}
	if _, err := c.remove(ctx, tableProjectVendors, "vendor_id", id); err != nil {
		return err
	}
	return c.removeParent(ctx, tableVendors, "vendor", id)
}

// project: ledger -> payments -> project expenses -> vendor links -> project.
func (c *cascade) project(ctx context.Context, id int64) error {
	if err := c.lock(ctx, tableProjects, "project", id); err != nil {
		return err
	}
	if _, err := c.remove(ctx, tableProjectLedger, "project_id", id); err != nil {
		return err
	}
	if _, err := c.remove(ctx, tablePayments, "project_id", id); err != nil {
		return err
	}
	if _, err := c.remove(ctx, tableExpenses, "project_id", id); err != nil {
		return err
	}
	if _, err := c.remove(ctx, tableProjectVendors, "project_id", id); err != nil {
		return err
	}
	return c.removeParent(ctx, tableProjects, "project", id)
}

// client: every project closure -> client. Returns the removed project ids.
func (c *cascade) client(ctx context.Context, id int64) ([]int64, error) {
	if err := c.lock(ctx, tableClients, "client", id); err != nil {
		return nil, err
	}
	projectIDs, err := c.tx.ChildIDs(ctx, tableProjects, "client_id", id)
	if err != nil {
		return nil, fmt.Errorf("collect projects: %w", err)
	}
	for _, pid := range projectIDs {
		if err := c.project(ctx, pid); err != nil {
			return nil, err
		}
	}
	if err := c.removeParent(ctx, tableClients, "client", id); err != nil {
		return nil, err
	}
	return projectIDs, nil
}

// labor: labor payments -> labor.
func (c *cascade) labor(ctx context.Context, id int64) error {
	if err := c.lock(ctx, tableLabor, "labor", id); err != nil {
		return err
	}
	if _, err := c.remove(ctx, tableLaborPayments, "labor_id", id); err != nil {
		return err
	}
	return c.removeParent(ctx, tableLabor, "labor", id)
}
