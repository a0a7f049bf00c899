package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"ads360.org/internal/audit"
	"ads360.org/internal/finance"
	"ads360.org/internal/rbac"
)

type createInvoiceRequest struct {
	EntityID    string `json:"entity_id"`
	Description string `json:"description"`
	TotalAmount int64  `json:"total_amount"`
	DueAt       string `json:"due_at,omitempty"`
}

type recordPaymentRequest struct {
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

func (a *API) handleInvoicesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := a.requirePermission(w, r, "finance", "view")
		if !ok {
			return
		}
		items, err := a.finance.ListInvoices(r.Context(), rbac.VisibilityFor(principal))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		if _, ok := a.requirePermission(w, r, "finance", "create"); !ok {
			return
		}
		var req createInvoiceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		var dueAt *time.Time
		if strings.TrimSpace(req.DueAt) != "" {
			t, err := time.Parse(time.RFC3339, req.DueAt)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "due_at must be RFC3339")
				return
			}
			dueAt = &t
		}
		inv, err := a.finance.CreateInvoice(r.Context(), finance.CreateInvoiceParams{
			EntityID:    req.EntityID,
			Description: req.Description,
			TotalAmount: req.TotalAmount,
			DueAt:       dueAt,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "finance.invoice.create", map[string]any{
			"invoice_id": inv.ID,
			"number":     inv.Number,
			"amount":     strconv.FormatInt(inv.TotalAmount, 10),
		})
		w.Header().Set("Location", "/v1/invoices/"+inv.ID)
		writeJSON(w, http.StatusCreated, inv)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleInvoiceResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/invoices/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	invoiceID := parts[0]

	switch {
	case len(parts) == 1:
		a.invoiceByID(w, r, invoiceID)
	case len(parts) == 2 && parts[1] == "send":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if _, ok := a.requirePermission(w, r, "finance", "edit"); !ok {
			return
		}
		if err := a.finance.SendInvoice(r.Context(), invoiceID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "finance.invoice.send", map[string]any{
			"invoice_id": invoiceID,
		})
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "payments":
		a.invoicePayments(w, r, invoiceID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) invoiceByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := a.requirePermission(w, r, "finance", "view")
		if !ok {
			return
		}
		inv, err := a.finance.GetInvoice(r.Context(), id, rbac.VisibilityFor(principal))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, inv)
	case http.MethodDelete:
		if _, ok := a.requirePermission(w, r, "finance", "delete"); !ok {
			return
		}
		if err := a.finance.DeleteInvoice(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "finance.invoice.delete", map[string]any{
			"invoice_id": id,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) invoicePayments(w http.ResponseWriter, r *http.Request, invoiceID string) {
	switch r.Method {
	case http.MethodGet:
		principal, ok := a.requirePermission(w, r, "finance", "view")
		if !ok {
			return
		}
		// Scoped principals may only inspect payments of their own invoices.
		if vis := rbac.VisibilityFor(principal); vis.PartnerEntityID != "" || vis.ClientEntityID != "" {
			if _, err := a.finance.GetInvoice(r.Context(), invoiceID, vis); err != nil {
				handleServiceError(w, r, err)
				return
			}
		}
		items, err := a.finance.ListPayments(r.Context(), invoiceID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		if _, ok := a.requirePermission(w, r, "finance", "edit"); !ok {
			return
		}
		var req recordPaymentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		inv, payment, err := a.finance.RecordPayment(r.Context(), invoiceID, req.Amount, req.Method, req.Reference)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "finance.payment.record", map[string]any{
			"invoice_id": invoiceID,
			"payment_id": payment.ID,
			"amount":     strconv.FormatInt(payment.Amount, 10),
		})
		writeJSON(w, http.StatusCreated, map[string]any{
			"invoice": inv,
			"payment": payment,
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
