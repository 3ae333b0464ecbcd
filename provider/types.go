package provider

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the status carried by a wallet callback
type PaymentStatus string

const (
	StatusFulfilled PaymentStatus = "fulfilled"
	StatusPending   PaymentStatus = "pending"
	StatusFailed    PaymentStatus = "failed"
	StatusCancelled PaymentStatus = "cancelled"
)

// Statuses lists every status a callback may carry
var Statuses = []PaymentStatus{StatusFulfilled, StatusPending, StatusFailed, StatusCancelled}

// Envelope is a callback after field validation. Every field is normalized.
type Envelope struct {
	OrderID   string          `json:"orderId"`
	Secret    string          `json:"-"`
	Amount    decimal.Decimal `json:"amount"`
	InvoiceID string          `json:"invoiceId"`
	Status    PaymentStatus   `json:"status"`
	Currency  string          `json:"currency"`
}

// OutcomeKind identifies how a callback ended
type OutcomeKind string

const (
	OutcomeAccepted       OutcomeKind = "accepted"
	OutcomeRejected       OutcomeKind = "rejected"
	OutcomeDuplicate      OutcomeKind = "duplicate"
	OutcomeStatusRecorded OutcomeKind = "status_recorded"
)

// Outcome is the result of processing one callback
type Outcome struct {
	Kind          OutcomeKind     `json:"kind"`
	InvoiceID     string          `json:"invoiceId,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        PaymentStatus   `json:"status,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// InvoiceStatus is the host side invoice state
type InvoiceStatus string

const (
	InvoiceUnpaid InvoiceStatus = "unpaid"
	InvoicePaid   InvoiceStatus = "paid"
)

// Invoice is what the host reports for an invoice id
type Invoice struct {
	ID        string          `json:"id"`
	TotalDue  decimal.Decimal `json:"totalDue"`
	Currency  string          `json:"currency,omitempty"`
	Status    InvoiceStatus   `json:"status"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// PaymentPosting instructs the host to apply a payment to an invoice
type PaymentPosting struct {
	InvoiceID     string          `json:"invoiceId"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Gateway       string          `json:"gateway"`
}
