package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mstgnz/kazapay/infra/conn"
	"github.com/mstgnz/kazapay/provider"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id TEXT PRIMARY KEY,
	total_due NUMERIC(16,2) NOT NULL,
	currency TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'unpaid',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payments (
	id BIGSERIAL PRIMARY KEY,
	transaction_id TEXT NOT NULL UNIQUE,
	invoice_id TEXT NOT NULL REFERENCES invoices(id),
	amount NUMERIC(16,2) NOT NULL,
	fee NUMERIC(16,2) NOT NULL DEFAULT 0,
	gateway TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id);

CREATE TABLE IF NOT EXISTS gateway_log (
	id BIGSERIAL PRIMARY KEY,
	gateway TEXT NOT NULL,
	description TEXT NOT NULL,
	data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rate_limits (
	key TEXT PRIMARY KEY,
	window_start TIMESTAMPTZ NOT NULL,
	count INTEGER NOT NULL
);
`

// Ledger is the billing host for multi replica deployments
type Ledger struct {
	db *conn.DB
}

// NewLedger creates a ledger on an open pool
func NewLedger(db *conn.DB) *Ledger {
	return &Ledger{db: db}
}

// Migrate creates the ledger tables
func (l *Ledger) Migrate(ctx context.Context) error {
	_, err := l.db.Exec(ctx, schema)
	return err
}

// CreateInvoice stores an invoice, replacing an existing one with the same id
func (l *Ledger) CreateInvoice(ctx context.Context, inv provider.Invoice) error {
	if inv.Status == "" {
		inv.Status = provider.InvoiceUnpaid
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO invoices (id, total_due, currency, status)
		VALUES ($1, CAST($2::text AS numeric), $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			total_due = EXCLUDED.total_due,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			updated_at = now()`,
		inv.ID, inv.TotalDue.String(), inv.Currency, string(inv.Status))
	return err
}

// LookupInvoice implements provider.InvoiceStore
func (l *Ledger) LookupInvoice(ctx context.Context, invoiceID string) (*provider.Invoice, error) {
	var (
		inv      provider.Invoice
		totalDue string
		status   string
	)
	err := l.db.QueryRow(ctx, `
		SELECT id, total_due::text, currency, status, updated_at
		FROM invoices WHERE id = $1
	`, invoiceID).Scan(&inv.ID, &totalDue, &inv.Currency, &status, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, provider.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if inv.TotalDue, err = decimal.NewFromString(totalDue); err != nil {
		return nil, fmt.Errorf("invoice %s has invalid total: %w", invoiceID, err)
	}
	inv.Status = provider.InvoiceStatus(status)
	return &inv, nil
}

// CheckDuplicateTransaction implements provider.TransactionRegistry
func (l *Ledger) CheckDuplicateTransaction(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := l.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM payments WHERE transaction_id = $1)`, transactionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}
	return exists, nil
}

// PostPayment implements provider.PaymentPoster through the claim path
func (l *Ledger) PostPayment(ctx context.Context, posting provider.PaymentPosting) error {
	return l.ClaimAndPostPayment(ctx, posting)
}

// ClaimAndPostPayment inserts the payment and reduces the invoice balance in
// one transaction. The unique transaction id turns a concurrent second claim
// into provider.ErrDuplicateTransaction.
func (l *Ledger) ClaimAndPostPayment(ctx context.Context, posting provider.PaymentPosting) error {
	return pgx.BeginFunc(ctx, l.db, func(tx pgx.Tx) error {
		var invoiceID string
		err := tx.QueryRow(ctx, `SELECT id FROM invoices WHERE id = $1 FOR UPDATE`, posting.InvoiceID).Scan(&invoiceID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return provider.ErrInvoiceNotFound
			}
			return fmt.Errorf("failed to lock invoice: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO payments (transaction_id, invoice_id, amount, fee, gateway)
			VALUES ($1, $2, CAST($3::text AS numeric), CAST($4::text AS numeric), $5)
			ON CONFLICT (transaction_id) DO NOTHING`,
			posting.TransactionID, posting.InvoiceID, posting.Amount.String(), posting.Fee.String(), posting.Gateway)
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return provider.ErrDuplicateTransaction
		}

		_, err = tx.Exec(ctx, `
			UPDATE invoices SET
				total_due = GREATEST(total_due - CAST($2::text AS numeric), 0),
				status = CASE WHEN total_due - CAST($2::text AS numeric) <= 0 THEN 'paid' ELSE 'unpaid' END,
				updated_at = now()
			WHERE id = $1`,
			posting.InvoiceID, posting.Amount.String())
		if err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
		return nil
	})
}

// AuditLog implements provider.AuditLogger
func (l *Ledger) AuditLog(ctx context.Context, gateway string, data map[string]any, description string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal gateway log: %w", err)
	}
	_, err = l.db.Exec(ctx,
		`INSERT INTO gateway_log (gateway, description, data) VALUES ($1, $2, $3::jsonb)`,
		gateway, description, string(payload))
	return err
}

// RecentGatewayLog implements provider.GatewayLogReader
func (l *Ledger) RecentGatewayLog(ctx context.Context, limit int) ([]provider.GatewayLogEntry, error) {
	rows, err := l.db.Query(ctx,
		`SELECT gateway, description, data::text, created_at FROM gateway_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []provider.GatewayLogEntry
	for rows.Next() {
		var (
			entry provider.GatewayLogEntry
			raw   string
		)
		if err := rows.Scan(&entry.Gateway, &entry.Description, &raw, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &entry.Data); err != nil {
			return nil, fmt.Errorf("decode gateway log: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Ping checks the pool
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.Ping(ctx)
}
