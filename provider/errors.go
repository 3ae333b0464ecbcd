package provider

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mstgnz/kazapay/infra/config"
)

// Transport errors
var (
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrBodyTooLarge     = errors.New("request body too large")
	ErrEmptyBody        = errors.New("request body is empty")
	ErrRateLimited      = errors.New("too many requests")
)

// Payload and validation errors
var (
	ErrEmptyPayload     = errors.New("payload contains no fields")
	ErrMalformedPayload = errors.New("payload could not be decoded")
)

// Settlement errors
var (
	ErrSignatureInvalid     = errors.New("signature verification failed")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrAmountMismatch       = errors.New("payment amount mismatch")
	ErrCurrencyMismatch     = errors.New("payment currency mismatch")
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrHostUnavailable      = errors.New("host platform unavailable")
)

// ErrMissingCredentials is returned when the gateway has no api key or secret
var ErrMissingCredentials = config.ErrMissingCredentials

// FieldError names the callback field that failed validation
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
}

func fieldErr(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// StatusCode maps an error from the webhook pipeline to the HTTP status sent
// back to the wallet. Reconciliation failures are acknowledged with 200, a
// redelivery of the same callback cannot fix them.
func StatusCode(err error) int {
	var fe *FieldError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrBodyTooLarge), errors.Is(err, ErrEmptyBody),
		errors.Is(err, ErrEmptyPayload), errors.Is(err, ErrMalformedPayload),
		errors.Is(err, ErrInvoiceNotFound), errors.As(err, &fe):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, ErrAmountMismatch), errors.Is(err, ErrCurrencyMismatch):
		return http.StatusOK
	case errors.Is(err, ErrMissingCredentials), errors.Is(err, ErrHostUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a stable label for metrics and audit entries
func Kind(err error) string {
	var fe *FieldError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMethodNotAllowed), errors.Is(err, ErrBodyTooLarge),
		errors.Is(err, ErrEmptyBody), errors.Is(err, ErrRateLimited):
		return "transport"
	case errors.Is(err, ErrEmptyPayload), errors.Is(err, ErrMalformedPayload):
		return "payload"
	case errors.As(err, &fe):
		return "validation"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature"
	case errors.Is(err, ErrDuplicateTransaction):
		return "duplicate"
	case errors.Is(err, ErrAmountMismatch), errors.Is(err, ErrCurrencyMismatch),
		errors.Is(err, ErrInvoiceNotFound):
		return "reconciliation"
	case errors.Is(err, ErrMissingCredentials):
		return "configuration"
	case errors.Is(err, ErrHostUnavailable):
		return "host"
	default:
		return "internal"
	}
}
