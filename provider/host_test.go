package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAudit struct {
	entries []string
	err     error
}

func (r *recordingAudit) AuditLog(_ context.Context, _ string, _ map[string]any, description string) error {
	r.entries = append(r.entries, description)
	return r.err
}

func TestMultiAudit(t *testing.T) {
	ok := &recordingAudit{}
	failing := &recordingAudit{err: errors.New("sink down")}

	err := MultiAudit{failing, nil, ok}.AuditLog(context.Background(), "kazawallet", map[string]any{}, "Successful")

	assert.ErrorContains(t, err, "sink down")
	assert.Equal(t, []string{"Successful"}, ok.entries, "a failing sink must not stop the others")
	assert.Equal(t, []string{"Successful"}, failing.entries)
}

func TestWithAudit_KeepsAtomicSettler(t *testing.T) {
	host := NewMemoryPlatform()
	host.AddInvoice(Invoice{ID: "1", TotalDue: decimal.NewFromInt(10)})
	extra := &recordingAudit{}

	platform := WithAudit(host, extra)

	settler, ok := platform.(AtomicSettler)
	require.True(t, ok)

	posting := PaymentPosting{InvoiceID: "1", TransactionID: "tx", Amount: decimal.NewFromInt(10)}
	require.NoError(t, settler.ClaimAndPostPayment(context.Background(), posting))
	assert.ErrorIs(t, settler.ClaimAndPostPayment(context.Background(), posting), ErrDuplicateTransaction)

	require.NoError(t, platform.AuditLog(context.Background(), "kazawallet", map[string]any{"a": 1}, "Successful"))
	assert.Len(t, host.Audits(), 1)
	assert.Equal(t, []string{"Successful"}, extra.entries)
}

func TestWithAudit_NoExtras(t *testing.T) {
	host := NewMemoryPlatform()
	assert.Same(t, host, WithAudit(host))
}

func TestMemoryPlatform_PostMarksPaid(t *testing.T) {
	host := NewMemoryPlatform()
	host.AddInvoice(Invoice{ID: "7", TotalDue: decimal.RequireFromString("25.00")})
	ctx := context.Background()

	dup, err := host.CheckDuplicateTransaction(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, host.PostPayment(ctx, PaymentPosting{InvoiceID: "7", TransactionID: "abc", Amount: decimal.RequireFromString("25.00")}))

	inv, err := host.LookupInvoice(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, inv.Status)
	assert.True(t, inv.TotalDue.IsZero())

	dup, _ = host.CheckDuplicateTransaction(ctx, "abc")
	assert.True(t, dup)

	_, err = host.LookupInvoice(ctx, "8")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestMemoryPlatform_RecentGatewayLog(t *testing.T) {
	host := NewMemoryPlatform()
	ctx := context.Background()

	for _, d := range []string{"first", "second", "third"} {
		require.NoError(t, host.AuditLog(ctx, "kazawallet", map[string]any{"order_id": d}, d))
	}

	entries, err := host.RecentGatewayLog(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Description)
	assert.Equal(t, "second", entries[1].Description)
	assert.Equal(t, "kazawallet", entries[0].Gateway)

	entries[0].Data["order_id"] = "changed"
	again, _ := host.RecentGatewayLog(ctx, 1)
	assert.Equal(t, "third", again[0].Data["order_id"])

	none, err := host.RecentGatewayLog(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
