package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/kazapay/infra/response"
	"github.com/mstgnz/kazapay/infra/validate"
	"github.com/mstgnz/kazapay/provider"
)

// InvoiceStatusView is what a customer returning from the wallet sees
type InvoiceStatusView struct {
	InvoiceID   string `json:"invoice_id"`
	Status      string `json:"status"`
	Outstanding string `json:"outstanding"`
	Currency    string `json:"currency,omitempty"`
	Message     string `json:"message"`
}

// StatusHandler serves the customer return flow
type StatusHandler struct {
	store   provider.InvoiceStore
	timeout time.Duration
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(store provider.InvoiceStore, timeout time.Duration) *StatusHandler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StatusHandler{store: store, timeout: timeout}
}

// InvoiceStatus handles GET /invoices/{invoiceID}/status and the
// /return/{invoiceID} redirect target. An unpaid invoice is reported as
// pending since the callback may still be on its way.
func (h *StatusHandler) InvoiceStatus(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceID")
	if err := validate.Validator().Var(invoiceID, "required,numeric,max=20"); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid invoice id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	invoice, err := h.store.LookupInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, provider.ErrInvoiceNotFound) {
			response.Error(w, http.StatusNotFound, "Invoice not found", nil)
			return
		}
		response.Error(w, http.StatusServiceUnavailable, "Invoice lookup failed", nil)
		return
	}

	response.Success(w, http.StatusOK, "Invoice status retrieved", NewInvoiceStatusView(invoice))
}

// NewInvoiceStatusView builds the view for an invoice
func NewInvoiceStatusView(invoice *provider.Invoice) InvoiceStatusView {
	view := InvoiceStatusView{
		InvoiceID:   invoice.ID,
		Outstanding: invoice.TotalDue.StringFixed(2),
		Currency:    invoice.Currency,
	}
	if invoice.Status == provider.InvoicePaid || invoice.TotalDue.Sign() <= 0 {
		view.Status = "paid"
		view.Message = provider.StatusMessage(provider.StatusFulfilled)
	} else {
		view.Status = "pending"
		view.Message = provider.StatusMessage(provider.StatusPending)
	}
	return view
}
