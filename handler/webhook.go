package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mstgnz/kazapay/infra/logger"
	"github.com/mstgnz/kazapay/infra/metrics"
	"github.com/mstgnz/kazapay/infra/middle"
	"github.com/mstgnz/kazapay/infra/response"
	"github.com/mstgnz/kazapay/provider"
)

const ackMessage = "Payment accepted for processing"

// WebhookHandler receives wallet payment callbacks
type WebhookHandler struct {
	service *provider.SettlementService
	limiter *middle.RateLimiter
}

// NewWebhookHandler creates a new webhook handler. A nil limiter gets an
// in-memory one sized from the gateway config.
func NewWebhookHandler(service *provider.SettlementService, limiter *middle.RateLimiter) *WebhookHandler {
	if limiter == nil {
		cfg := service.Config()
		limiter = middle.NewRateLimiter(nil, cfg.RateLimit, cfg.RateWindow)
	}
	return &WebhookHandler{
		service: service,
		limiter: limiter,
	}
}

// ServeHTTP runs one callback through guard, normalizer, admission and
// settlement, in that order, and answers in plain text.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cfg := h.service.Config()

	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := logger.WithRequest(cfg.Name, requestID).
		AddField("client", middle.ClientAddress(r, cfg.TrustProxyHeaders))

	body, err := h.guard(w, r)
	if err != nil {
		log.Warn("Callback rejected: " + err.Error())
		h.finish(w, nil, err, start)
		return
	}

	fields, err := provider.NormalizePayload(body)
	if err != nil {
		log.Warn("Callback rejected: " + err.Error())
		h.finish(w, nil, err, start)
		return
	}

	st := h.service.Begin(requestID)
	if err := h.service.Admit(r.Context(), st, fields); err != nil {
		h.finish(w, st, err, start)
		return
	}

	if !cfg.AckBeforeSettle {
		err := h.service.Dispatch(r.Context(), st)
		h.finish(w, st, err, start)
		return
	}

	// The acknowledgement goes out first, settlement is the second phase of
	// this same call and must survive the wallet hanging up.
	response.Text(w, http.StatusOK, ackMessage)
	if err := http.NewResponseController(w).Flush(); err != nil {
		log.Debug("Acknowledgement could not be flushed: " + err.Error())
	}

	ctx := context.WithoutCancel(r.Context())
	if err := h.service.Dispatch(ctx, st); err != nil && provider.StatusCode(err) >= http.StatusInternalServerError {
		h.service.RecordDeferredFailure(ctx, st, err)
	}
	metrics.RecordWebhook(outcomeLabel(st, st.Err), time.Since(start))
}

// guard enforces method, body size and the per-address rate limit
func (h *WebhookHandler) guard(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	cfg := h.service.Config()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		return nil, provider.ErrMethodNotAllowed
	}

	if r.ContentLength > cfg.MaxBodyBytes {
		return nil, provider.ErrBodyTooLarge
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, provider.ErrBodyTooLarge
		}
		return nil, provider.ErrMalformedPayload
	}
	if len(body) == 0 {
		return nil, provider.ErrEmptyBody
	}

	if !h.limiter.Allow(r.Context(), middle.ClientAddress(r, cfg.TrustProxyHeaders)) {
		metrics.RecordRateLimited()
		return nil, provider.ErrRateLimited
	}

	return body, nil
}

func (h *WebhookHandler) finish(w http.ResponseWriter, st *provider.Settlement, err error, start time.Time) {
	response.Text(w, provider.StatusCode(err), Message(st, err))
	metrics.RecordWebhook(outcomeLabel(st, err), time.Since(start))
}

// Message is the plain text body for a finished callback
func Message(st *provider.Settlement, err error) string {
	var fe *provider.FieldError
	switch {
	case err == nil && st != nil && st.State == provider.StateRecorded && st.Envelope != nil:
		return "Payment status: " + string(st.Envelope.Status)
	case err == nil:
		return "Payment processed successfully"
	case errors.Is(err, provider.ErrMethodNotAllowed):
		return "Method not allowed"
	case errors.Is(err, provider.ErrBodyTooLarge):
		return "Request body too large"
	case errors.Is(err, provider.ErrEmptyBody), errors.Is(err, provider.ErrEmptyPayload):
		return "Empty request"
	case errors.Is(err, provider.ErrMalformedPayload):
		return "Invalid request"
	case errors.Is(err, provider.ErrRateLimited):
		return "Too many requests"
	case errors.As(err, &fe):
		return "Invalid field: " + fe.Field
	case errors.Is(err, provider.ErrSignatureInvalid):
		return "Signature verification failed"
	case errors.Is(err, provider.ErrDuplicateTransaction):
		return "Duplicate transaction"
	case errors.Is(err, provider.ErrAmountMismatch):
		return "Payment amount mismatch"
	case errors.Is(err, provider.ErrCurrencyMismatch):
		return "Payment currency mismatch"
	case errors.Is(err, provider.ErrInvoiceNotFound):
		return "Invoice not found"
	case errors.Is(err, provider.ErrMissingCredentials):
		return "Gateway not configured"
	case errors.Is(err, provider.ErrHostUnavailable):
		return "Service temporarily unavailable"
	default:
		return "Internal server error"
	}
}

func outcomeLabel(st *provider.Settlement, err error) string {
	if err == nil && st != nil {
		return string(st.State)
	}
	return provider.Kind(err)
}
