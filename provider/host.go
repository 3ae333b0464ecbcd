package provider

import (
	"context"
	"errors"
	"time"
)

// InvoiceStore looks up invoices. Unknown ids return ErrInvoiceNotFound.
type InvoiceStore interface {
	LookupInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
}

// PaymentPoster applies a payment to an invoice
type PaymentPoster interface {
	PostPayment(ctx context.Context, posting PaymentPosting) error
}

// TransactionRegistry reports whether a transaction id was already settled
type TransactionRegistry interface {
	CheckDuplicateTransaction(ctx context.Context, transactionID string) (bool, error)
}

// AuditLogger records gateway activity on the host
type AuditLogger interface {
	AuditLog(ctx context.Context, gateway string, data map[string]any, description string) error
}

// Platform is the billing host the webhook settles against
type Platform interface {
	InvoiceStore
	PaymentPoster
	TransactionRegistry
	AuditLogger
}

// AtomicSettler is implemented by hosts that can claim a transaction id and
// post its payment in one transaction. When the claim already exists it must
// return ErrDuplicateTransaction and post nothing.
type AtomicSettler interface {
	ClaimAndPostPayment(ctx context.Context, posting PaymentPosting) error
}

// GatewayLogEntry is one audit entry as stored by a host
type GatewayLogEntry struct {
	Gateway     string
	Description string
	Data        map[string]any
	CreatedAt   time.Time
}

// GatewayLogReader is implemented by hosts that can list their audit log
type GatewayLogReader interface {
	RecentGatewayLog(ctx context.Context, limit int) ([]GatewayLogEntry, error)
}

// MultiAudit fans an audit entry out to several loggers. Every logger is
// called, the returned error joins all failures.
type MultiAudit []AuditLogger

func (m MultiAudit) AuditLog(ctx context.Context, gateway string, data map[string]any, description string) error {
	var errs []error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.AuditLog(ctx, gateway, data, description); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// auditedPlatform swaps the audit logger of a platform
type auditedPlatform struct {
	Platform
	audit AuditLogger
}

func (p auditedPlatform) AuditLog(ctx context.Context, gateway string, data map[string]any, description string) error {
	return p.audit.AuditLog(ctx, gateway, data, description)
}

// WithAudit returns platform with its own audit log plus the extra sinks.
// The returned value keeps ClaimAndPostPayment when the platform has it.
func WithAudit(platform Platform, extra ...AuditLogger) Platform {
	if len(extra) == 0 {
		return platform
	}
	audit := append(MultiAudit{platform}, extra...)
	if settler, ok := platform.(AtomicSettler); ok {
		return atomicAuditedPlatform{auditedPlatform{platform, audit}, settler}
	}
	return auditedPlatform{platform, audit}
}

type atomicAuditedPlatform struct {
	auditedPlatform
	settler AtomicSettler
}

func (p atomicAuditedPlatform) ClaimAndPostPayment(ctx context.Context, posting PaymentPosting) error {
	return p.settler.ClaimAndPostPayment(ctx, posting)
}
