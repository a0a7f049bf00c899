package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ads360.org/internal/finance"
	"ads360.org/internal/rbac"
)

const invoiceColumns = `i.id, i.number, i.entity_id, coalesce(i.distribution_id,''), coalesce(i.description,''),
	i.total_amount, i.paid_amount, i.status, i.due_at, i.created_at, i.updated_at`

// Invoices are visible to their own entity for scoped principals. Both
// partner and client roles resolve to the same entity ownership test.
const invoiceVisibility = `($1 = '' or i.entity_id = $1)`

func visibleEntityID(vis rbac.Visibility) string {
	if vis.PartnerEntityID != "" {
		return vis.PartnerEntityID
	}
	return vis.ClientEntityID
}

func (s *Store) CreateInvoice(ctx context.Context, inv *finance.Invoice) error {
	_, err := s.db.ExecContext(ctx, `
		insert into invoices (id, number, entity_id, distribution_id, description, total_amount, paid_amount, status, due_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, inv.ID, inv.Number, inv.EntityID, nullIfEmpty(inv.DistributionID), nullIfEmpty(inv.Description),
		inv.TotalAmount, inv.PaidAmount, inv.Status, nullTime(inv.DueAt), inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: invoice number already exists", finance.ErrConflict)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: entity does not exist", finance.ErrNotFound)
			}
		}
		return err
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id string, vis rbac.Visibility) (finance.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+invoiceColumns+` from invoices i
		where `+invoiceVisibility+` and i.id = $2
	`, visibleEntityID(vis), id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Invoice{}, finance.ErrNotFound
	}
	return inv, err
}

func (s *Store) ListInvoices(ctx context.Context, vis rbac.Visibility) ([]finance.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+invoiceColumns+` from invoices i
		where `+invoiceVisibility+`
		order by i.created_at desc
	`, visibleEntityID(vis))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []finance.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func (s *Store) MarkInvoiceSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update invoices set status = $2, updated_at = now()
		where id = $1 and status = $3
	`, id, finance.InvoiceSent, finance.InvoiceDraft)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `select status from invoices where id = $1`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return finance.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: invoice is %s", finance.ErrConflict, current)
	}
	return nil
}

// RecordPayment applies the amount and derives the status in one
// conditional UPDATE, so the paid/partially_paid invariant holds under
// concurrent writers.
func (s *Store) RecordPayment(ctx context.Context, invoiceID string, p *finance.Payment) (finance.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return finance.Invoice{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		update invoices i
		set paid_amount = i.paid_amount + $2,
			status = case
				when i.paid_amount + $2 >= i.total_amount then 'paid'
				when i.paid_amount + $2 > 0 then 'partially_paid'
				else i.status
			end,
			updated_at = now()
		where i.id = $1
		returning `+invoiceColumns+`
	`, invoiceID, p.Amount)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return finance.Invoice{}, finance.ErrNotFound
	}
	if err != nil {
		return finance.Invoice{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into payments (id, invoice_id, amount, method, reference, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.InvoiceID, p.Amount, p.Method, nullIfEmpty(p.Reference), p.CreatedAt); err != nil {
		return finance.Invoice{}, err
	}

	if err := tx.Commit(); err != nil {
		return finance.Invoice{}, err
	}
	return inv, nil
}

// DeleteUnpaidInvoice removes an invoice only while nothing has been paid
// against it.
func (s *Store) DeleteUnpaidInvoice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from invoices
		where id = $1 and paid_amount = 0
	`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var paid int64
		err := s.db.QueryRowContext(ctx, `select paid_amount from invoices where id = $1`, id).Scan(&paid)
		if errors.Is(err, sql.ErrNoRows) {
			return finance.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: invoice has recorded payments", finance.ErrConflict)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, invoiceID string) ([]finance.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, invoice_id, amount, method, coalesce(reference,''), created_at
		from payments
		where invoice_id = $1
		order by created_at
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []finance.Payment
	for rows.Next() {
		var p finance.Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanInvoice(row rowScanner) (finance.Invoice, error) {
	var (
		inv   finance.Invoice
		dueAt sql.NullTime
	)
	if err := row.Scan(&inv.ID, &inv.Number, &inv.EntityID, &inv.DistributionID, &inv.Description,
		&inv.TotalAmount, &inv.PaidAmount, &inv.Status, &dueAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return finance.Invoice{}, err
	}
	if dueAt.Valid {
		t := dueAt.Time
		inv.DueAt = &t
	}
	return inv, nil
}
