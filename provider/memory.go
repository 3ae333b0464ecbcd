package provider

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// AuditEntry is one audit record kept by MemoryPlatform
type AuditEntry struct {
	Gateway     string
	Data        map[string]any
	Description string
	At          time.Time
}

// MemoryPlatform is an in-process host used for local runs and tests. It
// claims transaction ids atomically with posting.
type MemoryPlatform struct {
	mu       sync.Mutex
	invoices map[string]Invoice
	claimed  map[string]bool
	payments []PaymentPosting
	audits   []AuditEntry
}

// NewMemoryPlatform creates an empty platform
func NewMemoryPlatform() *MemoryPlatform {
	return &MemoryPlatform{
		invoices: make(map[string]Invoice),
		claimed:  make(map[string]bool),
	}
}

// AddInvoice stores or replaces an invoice
func (m *MemoryPlatform) AddInvoice(inv Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.Status == "" {
		inv.Status = InvoiceUnpaid
	}
	inv.UpdatedAt = time.Now().UTC()
	m.invoices[inv.ID] = inv
}

func (m *MemoryPlatform) LookupInvoice(_ context.Context, invoiceID string) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceID]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	return &inv, nil
}

func (m *MemoryPlatform) CheckDuplicateTransaction(_ context.Context, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimed[transactionID], nil
}

func (m *MemoryPlatform) PostPayment(_ context.Context, posting PaymentPosting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.post(posting)
}

func (m *MemoryPlatform) ClaimAndPostPayment(_ context.Context, posting PaymentPosting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed[posting.TransactionID] {
		return ErrDuplicateTransaction
	}
	return m.post(posting)
}

func (m *MemoryPlatform) post(posting PaymentPosting) error {
	inv, ok := m.invoices[posting.InvoiceID]
	if !ok {
		return ErrInvoiceNotFound
	}
	m.claimed[posting.TransactionID] = true
	m.payments = append(m.payments, posting)

	inv.TotalDue = inv.TotalDue.Sub(posting.Amount)
	if !inv.TotalDue.IsPositive() {
		inv.TotalDue = decimal.Zero
		inv.Status = InvoicePaid
	}
	inv.UpdatedAt = time.Now().UTC()
	m.invoices[inv.ID] = inv
	return nil
}

func (m *MemoryPlatform) AuditLog(_ context.Context, gateway string, data map[string]any, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, AuditEntry{
		Gateway:     gateway,
		Data:        maps.Clone(data),
		Description: description,
		At:          time.Now().UTC(),
	})
	return nil
}

// Payments returns the postings applied so far
func (m *MemoryPlatform) Payments() []PaymentPosting {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PaymentPosting(nil), m.payments...)
}

// Audits returns the audit entries written so far
func (m *MemoryPlatform) Audits() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audits...)
}

// RecentGatewayLog implements GatewayLogReader
func (m *MemoryPlatform) RecentGatewayLog(_ context.Context, limit int) ([]GatewayLogEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]GatewayLogEntry, 0, min(limit, len(m.audits)))
	for i := len(m.audits) - 1; i >= 0 && len(entries) < limit; i-- {
		a := m.audits[i]
		entries = append(entries, GatewayLogEntry{
			Gateway:     a.Gateway,
			Description: a.Description,
			Data:        maps.Clone(a.Data),
			CreatedAt:   a.At,
		})
	}
	return entries, nil
}

// Ping implements the health check contract, memory is always reachable
func (m *MemoryPlatform) Ping(context.Context) error {
	return nil
}
