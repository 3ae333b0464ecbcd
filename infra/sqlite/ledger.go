package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/mstgnz/kazapay/infra/logger"
	"github.com/mstgnz/kazapay/provider"
	"github.com/shopspring/decimal"
)

const maxRetries = 4

// Ledger is a single node billing host backed by SQLite. Transaction ids are
// unique in the payments table, which doubles as the duplicate registry.
type Ledger struct {
	db   *sql.DB
	path string
}

// NewLedger opens (and migrates) the database at dbPath
func NewLedger(dbPath string) (*Ledger, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// WAL plus immediate transactions so concurrent writers queue on the lock
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_timeout=20000&_txlock=immediate&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	ledger := &Ledger{db: db, path: dbPath}
	if err := ledger.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite ledger initialized", logger.LogContext{Fields: map[string]any{"path": dbPath}})
	return ledger, nil
}

// Migrate creates the ledger tables
func (l *Ledger) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		total_due TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'unpaid',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id TEXT NOT NULL UNIQUE,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		amount TEXT NOT NULL,
		fee TEXT NOT NULL,
		gateway TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id);

	CREATE TABLE IF NOT EXISTS gateway_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		gateway TEXT NOT NULL,
		description TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := l.db.ExecContext(ctx, query)
	return err
}

// retryOperation executes a database operation with retry logic for SQLITE_BUSY errors
func (l *Ledger) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries {
			// 10ms, 20ms, 40ms, 80ms
			backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return strings.Contains(err.Error(), "database is locked")
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// CreateInvoice stores an invoice, replacing an existing one with the same id
func (l *Ledger) CreateInvoice(ctx context.Context, inv provider.Invoice) error {
	if inv.Status == "" {
		inv.Status = provider.InvoiceUnpaid
	}
	return l.retryOperation(ctx, func() error {
		_, err := l.db.ExecContext(ctx, `
			INSERT INTO invoices (id, total_due, currency, status) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				total_due = excluded.total_due,
				currency = excluded.currency,
				status = excluded.status,
				updated_at = CURRENT_TIMESTAMP`,
			inv.ID, inv.TotalDue.String(), inv.Currency, string(inv.Status))
		return err
	})
}

// LookupInvoice implements provider.InvoiceStore
func (l *Ledger) LookupInvoice(ctx context.Context, invoiceID string) (*provider.Invoice, error) {
	var (
		inv    provider.Invoice
		status string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, total_due, currency, status, updated_at FROM invoices WHERE id = ?`, invoiceID,
	).Scan(&inv.ID, &inv.TotalDue, &inv.Currency, &status, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, provider.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup invoice %s: %w", invoiceID, err)
	}
	inv.Status = provider.InvoiceStatus(status)
	return &inv, nil
}

// CheckDuplicateTransaction implements provider.TransactionRegistry
func (l *Ledger) CheckDuplicateTransaction(ctx context.Context, transactionID string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM payments WHERE transaction_id = ?)`, transactionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check transaction %s: %w", transactionID, err)
	}
	return exists, nil
}

// PostPayment implements provider.PaymentPoster. It shares the claim path, so a
// repeated transaction id is refused even through this method.
func (l *Ledger) PostPayment(ctx context.Context, posting provider.PaymentPosting) error {
	return l.ClaimAndPostPayment(ctx, posting)
}

// ClaimAndPostPayment records the payment and reduces the invoice balance in
// one transaction. A transaction id that already exists yields
// provider.ErrDuplicateTransaction.
func (l *Ledger) ClaimAndPostPayment(ctx context.Context, posting provider.PaymentPosting) error {
	return l.retryOperation(ctx, func() error {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var due decimal.Decimal
		err = tx.QueryRowContext(ctx, `SELECT total_due FROM invoices WHERE id = ?`, posting.InvoiceID).Scan(&due)
		if errors.Is(err, sql.ErrNoRows) {
			return provider.ErrInvoiceNotFound
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO payments (transaction_id, invoice_id, amount, fee, gateway) VALUES (?, ?, ?, ?, ?)`,
			posting.TransactionID, posting.InvoiceID, posting.Amount.String(), posting.Fee.String(), posting.Gateway)
		if isUniqueViolation(err) {
			return provider.ErrDuplicateTransaction
		}
		if err != nil {
			return err
		}

		remaining := due.Sub(posting.Amount)
		status := provider.InvoiceUnpaid
		if !remaining.IsPositive() {
			remaining = decimal.Zero
			status = provider.InvoicePaid
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE invoices SET total_due = ?, status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			remaining.String(), string(status), posting.InvoiceID)
		if err != nil {
			return err
		}

		return tx.Commit()
	})
}

// AuditLog implements provider.AuditLogger as the gateway log table
func (l *Ledger) AuditLog(ctx context.Context, gateway string, data map[string]any, description string) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal gateway log: %w", err)
	}
	return l.retryOperation(ctx, func() error {
		_, err := l.db.ExecContext(ctx,
			`INSERT INTO gateway_log (gateway, description, data) VALUES (?, ?, ?)`,
			gateway, description, string(payload))
		return err
	})
}

// RecentGatewayLog implements provider.GatewayLogReader
func (l *Ledger) RecentGatewayLog(ctx context.Context, limit int) ([]provider.GatewayLogEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT gateway, description, data, created_at FROM gateway_log ORDER BY id DESC LIMIT ?`, limit)
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

// Ping checks the database connection
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close closes the database connection
func (l *Ledger) Close() error {
	return l.db.Close()
}
