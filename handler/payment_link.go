package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/infra/logger"
	"github.com/mstgnz/kazapay/infra/response"
	"github.com/mstgnz/kazapay/provider"
	"github.com/mstgnz/kazapay/provider/kazawallet"
	"github.com/shopspring/decimal"
)

// WalletClient is the outbound part of the wallet API
type WalletClient interface {
	CreatePaymentLink(ctx context.Context, req kazawallet.PaymentLinkRequest) (string, error)
	CreateWithdrawal(ctx context.Context, req kazawallet.WithdrawalRequest) (string, error)
}

// PaymentLinkInput is the body of POST /v1/invoices/{invoiceID}/payment-link.
// Amount and currency default to the invoice's outstanding total.
type PaymentLinkInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	RedirectURL string `json:"redirect_url" validate:"required,url,max=2048"`
	Amount      string `json:"amount" validate:"omitempty,money"`
	Currency    string `json:"currency" validate:"omitempty,currency"`
}

// RefundInput is the body of POST /v1/refunds
type RefundInput struct {
	TransactionID string `json:"transaction_id" validate:"required,max=100,orderid"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Amount        string `json:"amount" validate:"required,money"`
	Currency      string `json:"currency" validate:"required,currency"`
}

// PaymentHandler creates payment links and refunds through the wallet API
type PaymentHandler struct {
	wallet   WalletClient
	store    provider.InvoiceStore
	cfg      config.GatewayConfig
	validate *validator.Validate
	now      func() time.Time
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(wallet WalletClient, store provider.InvoiceStore, cfg config.GatewayConfig, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		wallet:   wallet,
		store:    store,
		cfg:      cfg,
		validate: validate,
		now:      time.Now,
	}
}

// CreatePaymentLink handles POST /v1/invoices/{invoiceID}/payment-link
func (h *PaymentHandler) CreatePaymentLink(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if h.wallet == nil {
		response.Error(w, http.StatusServiceUnavailable, "Gateway not configured", nil)
		return
	}

	invoiceID := chi.URLParam(r, "invoiceID")
	if err := h.validate.Var(invoiceID, "required,numeric,max=20"); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid invoice id", nil)
		return
	}

	var req PaymentLinkInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	invoice, err := h.store.LookupInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, provider.ErrInvoiceNotFound) {
			response.Error(w, http.StatusNotFound, "Invoice not found", nil)
			return
		}
		response.Error(w, http.StatusServiceUnavailable, "Invoice lookup failed", nil)
		return
	}

	amount := invoice.TotalDue
	if req.Amount != "" {
		amount = decimal.RequireFromString(strings.TrimSpace(req.Amount))
	}
	currency := req.Currency
	if currency == "" {
		currency = invoice.Currency
	}
	if !kazawallet.IsSupportedCurrency(currency, h.cfg.Currencies) {
		response.Error(w, http.StatusBadRequest, "Unsupported currency", nil)
		return
	}
	if !amount.IsPositive() {
		response.Error(w, http.StatusConflict, "Invoice has nothing outstanding", nil)
		return
	}

	// The wallet echoes ref in the callback, where it must resolve to the invoice
	reference := kazawallet.GenerateReference(invoice.ID, h.now())
	paymentURL, err := h.wallet.CreatePaymentLink(ctx, kazawallet.PaymentLinkRequest{
		Amount:      amount,
		Currency:    currency,
		Email:       req.Email,
		Ref:         invoice.ID,
		RedirectURL: successURL(req.RedirectURL),
	})
	if err != nil {
		logger.Error("Payment link creation failed", err, logger.LogContext{
			Provider: h.cfg.Name,
			Fields:   map[string]any{"invoice_id": invoice.ID, "reference": reference},
		})
		response.Error(w, http.StatusBadGateway, "Unable to create payment link", nil)
		return
	}

	response.Success(w, http.StatusOK, "Payment link created", map[string]any{
		"payment_url": paymentURL,
		"ref":         invoice.ID,
		"reference":   reference,
		"amount":      kazawallet.FormatAmount(amount, currency),
		"currency":    currency,
	})
}

// RefundPayment handles POST /v1/refunds. The wallet has no refund call, the
// money goes back as a withdrawal to the customer.
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if h.wallet == nil {
		response.Error(w, http.StatusServiceUnavailable, "Gateway not configured", nil)
		return
	}

	var req RefundInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	withdrawalID, err := h.wallet.CreateWithdrawal(ctx, kazawallet.WithdrawalRequest{
		Email:    req.Email,
		Currency: req.Currency,
		Amount:   decimal.RequireFromString(strings.TrimSpace(req.Amount)),
		Note:     "Refund for transaction: " + req.TransactionID,
	})
	if err != nil {
		logger.Error("Refund withdrawal failed", err, logger.LogContext{
			Provider: h.cfg.Name,
			Fields:   map[string]any{"transaction_id": req.TransactionID},
		})
		response.Error(w, http.StatusBadGateway, "Refund declined", nil)
		return
	}

	response.Success(w, http.StatusOK, "Refund requested", map[string]any{
		"withdrawal_id":  withdrawalID,
		"transaction_id": req.TransactionID,
	})
}

// successURL marks the return url so the return page knows the customer came
// back from the wallet
func successURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("kazawallet", "success")
	u.RawQuery = q.Encode()
	return u.String()
}
