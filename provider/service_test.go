package provider_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/provider"
	"github.com/mstgnz/kazapay/provider/kazawallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-api-key"
	testSecret = "test-api-secret"
)

func testConfig() config.GatewayConfig {
	cfg := config.DefaultGatewayConfig()
	cfg.APIKey = testKey
	cfg.APISecret = testSecret
	cfg.HostTimeout = time.Second
	return cfg
}

func signedFields(orderID, amount, ref, status string) map[string]string {
	return map[string]string{
		"order_id": orderID,
		"secret":   kazawallet.Sign(decimal.RequireFromString(amount).StringFixed(2), orderID, testKey, testSecret),
		"amount":   amount,
		"ref":      ref,
		"status":   status,
		"currency": "USD",
	}
}

func newService(t *testing.T, platform provider.Platform) *provider.SettlementService {
	t.Helper()
	return provider.NewSettlementService(testConfig(), platform, kazawallet.NewSigner(testKey, testSecret))
}

func TestProcess_SettlesFulfilledPayment(t *testing.T) {
	host := provider.NewMemoryPlatform()
	host.AddInvoice(provider.Invoice{ID: "4521", TotalDue: decimal.RequireFromString("25.00"), Currency: "USD"})
	svc := newService(t, host)

	st, err := svc.Process(context.Background(), "req-1", signedFields("abc123", "25.00", "4521", "fulfilled"))
	require.NoError(t, err)

	assert.Equal(t, provider.StateSettled, st.State)
	assert.Equal(t, provider.OutcomeAccepted, st.Outcome.Kind)
	assert.Equal(t, "abc123", st.Outcome.TransactionID)

	payments := host.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, "4521", payments[0].InvoiceID)
	assert.Equal(t, "abc123", payments[0].TransactionID)
	assert.True(t, payments[0].Amount.Equal(decimal.RequireFromString("25")))
	assert.True(t, payments[0].Fee.IsZero())
	assert.Equal(t, "kazawallet", payments[0].Gateway)

	audits := host.Audits()
	require.NotEmpty(t, audits)
	assert.Equal(t, "Successful", audits[len(audits)-1].Description)
	assert.Equal(t, "req-1", audits[len(audits)-1].Data["request_id"])
}

func TestProcess_IntegerAmountSignsLikeFixed(t *testing.T) {
	host := provider.NewMemoryPlatform()
	host.AddInvoice(provider.Invoice{ID: "1", TotalDue: decimal.NewFromInt(10)})
	svc := newService(t, host)

	fields := signedFields("ord-10", "10.00", "1", "fulfilled")
	fields["amount"] = "10"

	st, err := svc.Process(context.Background(), "req", fields)
	require.NoError(t, err)
	assert.Equal(t, provider.StateSettled, st.State)
}

func TestProcess_BadSignature(t *testing.T) {
	host := provider.NewMemoryPlatform()
	host.AddInvoice(provider.Invoice{ID: "4521", TotalDue: decimal.RequireFromString("25.00")})
	svc := newService(t, host)

	fields := signedFields("abc123", "25.00", "4521", "fulfilled")
	secret := []byte(fields["secret"])
	if secret[0] == 'A' {
		secret[0] = 'B'
	} else {
		secret[0] = 'A'
	}
	fields["secret"] = string(secret)

	st, err := svc.Process(context.Background(), "req", fields)
	assert.ErrorIs(t, err, provider.ErrSignatureInvalid)
	assert.Equal(t, provider.StateRejected, st.State)
	assert.Empty(t, host.Payments())

	dup, _ := host.CheckDuplicateTransaction(context.Background(), "abc123")
	assert.False(t, dup, "a rejected signature must not consume the transaction id")

	audits := host.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "Signature Verification Failed", audits[0].Description)
	assert.NotEmpty(t, audits[0].Data["expected"])
	assert.Equal(t, string(secret), audits[0].Data["received"])
	assert.Equal(t, "abc123", audits[0].Data["order_id"])
	assert.Equal(t, "4521", audits[0].Data["invoice_id"])
}

func TestProcess_Duplicate(t *testing.T) {
	host := provider.NewMemoryPlatform()
	host.AddInvoice(provider.Invoice{ID: "4521", TotalDue: decimal.RequireFromString("50.00")})
	svc := newService(t, host)
	fields := signedFields("abc123", "25.00", "4521", "fulfilled")

	_, err := svc.Process(context.Background(), "req-1", fields)
	require.ErrorIs(t, err, provider.ErrAmountMismatch)

	host.AddInvoice(provider.Invoice{ID: "4521", TotalDue: decimal.RequireFromString("25.00")})
	_, err = svc.Process(context.Background(), "req-2", fields)
	require.NoError(t, err)

	st, err := svc.Process(context.Background(), "req-3", fields)
	assert.ErrorIs(t, err, provider.ErrDuplicateTransaction)
	assert.Equal(t, provider.OutcomeDuplicate, st.Outcome.Kind)
	assert.Len(t, host.Payments(), 1)
}

func TestProcess_NonFulfilledStatusIsRecorded(t *testing.T) {
	for _, status := range []string{"pending", "failed", "cancelled"} {
		t.Run(status, func(t *testing.T) {
			host := provider.NewMemoryPlatform()
			svc := newService(t, host)

			st, err := svc.Process(context.Background(), "req", signedFields("ord-"+status, "5.00", "99", status))
			require.NoError(t, err)

			assert.Equal(t, provider.StateRecorded, st.State)
			assert.Equal(t, provider.OutcomeStatusRecorded, st.Outcome.Kind)
			assert.Equal(t, provider.PaymentStatus(status), st.Outcome.Status)
			assert.Empty(t, host.Payments())

			audits := host.Audits()
			require.Len(t, audits, 1)
			assert.Equal(t, provider.StatusMessage(provider.PaymentStatus(status)), audits[0].Description)
		})
	}
}

func TestProcess_AmountMismatchWithholdsPayment(t *testing.T) {
	host := provider.NewMemoryPlatform()
	host.AddInvoice(provider.Invoice{ID: "4521", TotalDue: decimal.RequireFromString("100.00")})
	svc := newService(t, host)

	st, err := svc.Process(context.Background(), "req", signedFields("abc", "100.02", "4521", "fulfilled"))
	assert.ErrorIs(t, err, provider.ErrAmountMismatch)
	assert.Equal(t, provider.StateRejected, st.State)
	assert.Empty(t, host.Payments())

	audits := host.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "100.00", audits[0].Data["expected_amount"])
	assert.Equal(t, "100.02", audits[0].Data["received_amount"])
}

func TestProcess_CurrencyMismatch(t *testing.T) {
	host := provider.NewMemoryPlatform()
	host.AddInvoice(provider.Invoice{ID: "1", TotalDue: decimal.NewFromInt(5), Currency: "EUR"})
	svc := newService(t, host)

	_, err := svc.Process(context.Background(), "req", signedFields("abc", "5.00", "1", "fulfilled"))
	assert.ErrorIs(t, err, provider.ErrCurrencyMismatch)
	assert.Empty(t, host.Payments())
}

func TestProcess_ZeroTotalAccepted(t *testing.T) {
	host := provider.NewMemoryPlatform()
	host.AddInvoice(provider.Invoice{ID: "1", TotalDue: decimal.Zero, Status: provider.InvoicePaid})
	svc := newService(t, host)

	st, err := svc.Process(context.Background(), "req", signedFields("late-delivery", "12.34", "1", "fulfilled"))
	require.NoError(t, err)
	assert.Equal(t, provider.StateSettled, st.State)
}

func TestProcess_UnknownInvoice(t *testing.T) {
	svc := newService(t, provider.NewMemoryPlatform())

	_, err := svc.Process(context.Background(), "req", signedFields("abc", "5.00", "404", "fulfilled"))
	assert.ErrorIs(t, err, provider.ErrInvoiceNotFound)
}

func TestProcess_MissingCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.APISecret = ""
	svc := provider.NewSettlementService(cfg, provider.NewMemoryPlatform(), kazawallet.NewSigner(cfg.APIKey, cfg.APISecret))

	_, err := svc.Process(context.Background(), "req", signedFields("abc", "5.00", "1", "fulfilled"))
	assert.ErrorIs(t, err, provider.ErrMissingCredentials)
	assert.Equal(t, 503, provider.StatusCode(err))
}

func TestProcess_InvalidFieldStopsBeforeSignature(t *testing.T) {
	host := provider.NewMemoryPlatform()
	svc := newService(t, host)

	fields := signedFields("abc", "5.00", "1", "fulfilled")
	fields["status"] = "done"

	st, err := svc.Process(context.Background(), "req", fields)
	var fe *provider.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "status", fe.Field)
	assert.Nil(t, st.Envelope)
	assert.Empty(t, host.Audits())
}

// plainPlatform hides ClaimAndPostPayment so the check-then-post path runs
type plainPlatform struct {
	provider.Platform
}

type failingHost struct {
	*provider.MemoryPlatform
	lookupErr error
	checkErr  error
	postErr   error
	auditErr  error
	block     time.Duration
}

func (f *failingHost) LookupInvoice(ctx context.Context, id string) (*provider.Invoice, error) {
	if f.block > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.block):
		}
	}
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.MemoryPlatform.LookupInvoice(ctx, id)
}

func (f *failingHost) CheckDuplicateTransaction(ctx context.Context, id string) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.MemoryPlatform.CheckDuplicateTransaction(ctx, id)
}

func (f *failingHost) PostPayment(ctx context.Context, p provider.PaymentPosting) error {
	if f.postErr != nil {
		return f.postErr
	}
	return f.MemoryPlatform.PostPayment(ctx, p)
}

func (f *failingHost) AuditLog(ctx context.Context, gateway string, data map[string]any, description string) error {
	if f.auditErr != nil {
		return f.auditErr
	}
	return f.MemoryPlatform.AuditLog(ctx, gateway, data, description)
}

func TestProcess_HostFailures(t *testing.T) {
	tests := []struct {
		name string
		host *failingHost
	}{
		{"duplicate check fails", &failingHost{checkErr: errors.New("db down")}},
		{"invoice lookup fails", &failingHost{lookupErr: errors.New("db down")}},
		{"invoice lookup times out", &failingHost{block: 5 * time.Second}},
		{"posting fails", &failingHost{postErr: errors.New("db down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.host.MemoryPlatform = provider.NewMemoryPlatform()
			tt.host.AddInvoice(provider.Invoice{ID: "1", TotalDue: decimal.NewFromInt(5)})

			cfg := testConfig()
			cfg.HostTimeout = 50 * time.Millisecond
			svc := provider.NewSettlementService(cfg, plainPlatform{tt.host}, kazawallet.NewSigner(testKey, testSecret))

			_, err := svc.Process(context.Background(), "req", signedFields("abc", "5.00", "1", "fulfilled"))
			assert.ErrorIs(t, err, provider.ErrHostUnavailable)
			assert.Equal(t, 503, provider.StatusCode(err))
			assert.Empty(t, tt.host.Payments())
		})
	}
}

func TestProcess_AuditFailureDoesNotBlockSettlement(t *testing.T) {
	host := &failingHost{MemoryPlatform: provider.NewMemoryPlatform(), auditErr: errors.New("audit down")}
	host.AddInvoice(provider.Invoice{ID: "1", TotalDue: decimal.NewFromInt(5)})
	svc := newService(t, plainPlatform{host})

	st, err := svc.Process(context.Background(), "req", signedFields("abc", "5.00", "1", "fulfilled"))
	require.NoError(t, err)
	assert.Equal(t, provider.StateSettled, st.State)
	assert.Len(t, host.Payments(), 1)
}

func TestProcess_ConcurrentDeliveriesSettleOnce(t *testing.T) {
	host := provider.NewMemoryPlatform()
	host.AddInvoice(provider.Invoice{ID: "1", TotalDue: decimal.NewFromInt(5)})
	svc := newService(t, host)
	fields := signedFields("race", "5.00", "1", "fulfilled")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Process(context.Background(), "req", fields)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var settled, duplicates int
	for err := range errs {
		switch {
		case err == nil:
			settled++
		case errors.Is(err, provider.ErrDuplicateTransaction):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, settled)
	assert.Equal(t, 7, duplicates)
	assert.Len(t, host.Payments(), 1)
}

func TestAdmitThenDispatch(t *testing.T) {
	host := provider.NewMemoryPlatform()
	host.AddInvoice(provider.Invoice{ID: "1", TotalDue: decimal.NewFromInt(5)})
	svc := newService(t, host)

	st := svc.Begin("req")
	assert.Equal(t, provider.StateReceived, st.State)

	err := svc.Dispatch(context.Background(), st)
	assert.Error(t, err, "dispatch before admit is refused")
	assert.Empty(t, host.Payments())

	require.NoError(t, svc.Admit(context.Background(), st, signedFields("abc", "5.00", "1", "fulfilled")))
	assert.Equal(t, provider.StateDuplicateChecked, st.State)
	assert.Empty(t, host.Payments(), "admit never posts")

	require.NoError(t, svc.Dispatch(context.Background(), st))
	assert.True(t, st.State.Terminal())
	assert.Error(t, svc.Dispatch(context.Background(), st), "a settled callback cannot be dispatched twice")
	assert.Len(t, host.Payments(), 1)
}

func TestReconcile(t *testing.T) {
	tol := decimal.RequireFromString("0.01")
	d := decimal.RequireFromString

	assert.NoError(t, provider.Reconcile(d("100.00"), d("100.00"), tol))
	assert.NoError(t, provider.Reconcile(d("100.005"), d("100.00"), tol))
	assert.NoError(t, provider.Reconcile(d("99.99"), d("100.00"), tol))
	assert.ErrorIs(t, provider.Reconcile(d("100.02"), d("100.00"), tol), provider.ErrAmountMismatch)
	assert.ErrorIs(t, provider.Reconcile(d("50.00"), d("100.00"), tol), provider.ErrAmountMismatch)
	assert.NoError(t, provider.Reconcile(d("50.00"), decimal.Zero, tol))
}

func TestStatusMessage(t *testing.T) {
	assert.Equal(t, "Payment completed successfully", provider.StatusMessage(provider.StatusFulfilled))
	assert.Equal(t, "Payment is being processed", provider.StatusMessage(provider.StatusPending))
	assert.Equal(t, "Unknown payment status", provider.StatusMessage("timed_out"))
}
