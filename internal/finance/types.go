package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ads360.org/internal/rbac"
)

// Invoice statuses.
const (
	InvoiceDraft         = "draft"
	InvoiceSent          = "sent"
	InvoicePartiallyPaid = "partially_paid"
	InvoicePaid          = "paid"
	InvoiceOverdue       = "overdue"
)

// PaymentMethodTransfer is the method recorded for distribution payouts.
const PaymentMethodTransfer = "transfer"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// Invoice aggregates one logical charge to an entity. Amounts are int64
// minor units.
type Invoice struct {
	ID             string     `json:"id"`
	Number         string     `json:"number"`
	EntityID       string     `json:"entity_id"`
	DistributionID string     `json:"distribution_id,omitempty"`
	Description    string     `json:"description,omitempty"`
	TotalAmount    int64      `json:"total_amount"`
	PaidAmount     int64      `json:"paid_amount"`
	Status         string     `json:"status"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Payment records an amount applied against exactly one invoice.
type Payment struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists invoices and payments.
type Store interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id string, vis rbac.Visibility) (Invoice, error)
	ListInvoices(ctx context.Context, vis rbac.Visibility) ([]Invoice, error)
	MarkInvoiceSent(ctx context.Context, id string) error
	RecordPayment(ctx context.Context, invoiceID string, p *Payment) (Invoice, error)
	DeleteUnpaidInvoice(ctx context.Context, id string) error
	ListPayments(ctx context.Context, invoiceID string) ([]Payment, error)
}

// InvoiceNumber builds the payout invoice number for a distribution.
func InvoiceNumber(paidAt time.Time, distributionID string) string {
	return fmt.Sprintf("INV-%s-%s", paidAt.UTC().Format("20060102"), distributionID)
}

// StatusForAmounts derives the invoice status from its amounts. The
// fallback applies when nothing has been paid yet.
func StatusForAmounts(total, paid int64, fallback string) string {
	switch {
	case total > 0 && paid >= total:
		return InvoicePaid
	case paid > 0 && paid < total:
		return InvoicePartiallyPaid
	default:
		return fallback
	}
}
