package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ads360.org/internal/ids"
	"ads360.org/internal/notify"
	"ads360.org/internal/obs"
	"ads360.org/internal/rbac"
)

// Service covers manual invoicing outside the campaign payout flow.
type Service struct {
	store  Store
	events notify.Publisher
	now    func() time.Time
}

func NewService(store Store, events notify.Publisher) (*Service, error) {
	if store == nil {
		return nil, errors.New("finance: store is required")
	}
	if events == nil {
		events = notify.Nop{}
	}
	return &Service{store: store, events: events, now: time.Now}, nil
}

// CreateInvoiceParams carries the fields accepted for a manual invoice.
type CreateInvoiceParams struct {
	EntityID    string
	Description string
	TotalAmount int64
	DueAt       *time.Time
}

func (s *Service) CreateInvoice(ctx context.Context, params CreateInvoiceParams) (Invoice, error) {
	params.EntityID = strings.TrimSpace(params.EntityID)
	if params.EntityID == "" {
		return Invoice{}, fmt.Errorf("%w: entity_id is required", ErrInvalidInput)
	}
	if params.TotalAmount <= 0 {
		return Invoice{}, fmt.Errorf("%w: total_amount must be positive", ErrInvalidInput)
	}

	now := s.now().UTC()
	inv := Invoice{
		ID:          ids.New(),
		EntityID:    params.EntityID,
		Description: strings.TrimSpace(params.Description),
		TotalAmount: params.TotalAmount,
		Status:      InvoiceDraft,
		DueAt:       params.DueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	inv.Number = InvoiceNumber(now, inv.ID)
	if err := s.store.CreateInvoice(ctx, &inv); err != nil {
		return Invoice{}, err
	}
	obs.ObserveInvoiceIssued()
	_ = s.events.Publish(ctx, notify.Event{
		Type: notify.EventInvoiceIssued,
		Data: map[string]any{
			"invoice_id": inv.ID,
			"number":     inv.Number,
			"entity_id":  inv.EntityID,
			"amount":     inv.TotalAmount,
		},
	})
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string, vis rbac.Visibility) (Invoice, error) {
	if strings.TrimSpace(id) == "" {
		return Invoice{}, fmt.Errorf("%w: invoice id is required", ErrInvalidInput)
	}
	return s.store.GetInvoice(ctx, id, vis)
}

func (s *Service) ListInvoices(ctx context.Context, vis rbac.Visibility) ([]Invoice, error) {
	return s.store.ListInvoices(ctx, vis)
}

// SendInvoice moves a draft invoice to sent.
func (s *Service) SendInvoice(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: invoice id is required", ErrInvalidInput)
	}
	return s.store.MarkInvoiceSent(ctx, id)
}

// RecordPayment applies an amount against an invoice and returns the
// updated invoice. The store keeps status consistent with the amounts.
func (s *Service) RecordPayment(ctx context.Context, invoiceID string, amount int64, method, reference string) (Invoice, Payment, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return Invoice{}, Payment{}, fmt.Errorf("%w: invoice id is required", ErrInvalidInput)
	}
	if amount <= 0 {
		return Invoice{}, Payment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	method = strings.TrimSpace(strings.ToLower(method))
	if method == "" {
		method = PaymentMethodTransfer
	}

	payment := Payment{
		ID:        ids.New(),
		InvoiceID: invoiceID,
		Amount:    amount,
		Method:    method,
		Reference: strings.TrimSpace(reference),
		CreatedAt: s.now().UTC(),
	}
	inv, err := s.store.RecordPayment(ctx, invoiceID, &payment)
	if err != nil {
		return Invoice{}, Payment{}, err
	}
	return inv, payment, nil
}

// DeleteInvoice removes an invoice that has no recorded payments.
func (s *Service) DeleteInvoice(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: invoice id is required", ErrInvalidInput)
	}
	return s.store.DeleteUnpaidInvoice(ctx, id)
}

func (s *Service) ListPayments(ctx context.Context, invoiceID string) ([]Payment, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, fmt.Errorf("%w: invoice id is required", ErrInvalidInput)
	}
	return s.store.ListPayments(ctx, invoiceID)
}
