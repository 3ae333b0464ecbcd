package kazawallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	cfg := config.DefaultGatewayConfig()
	cfg.APIKey = "key"
	cfg.APISecret = "secret"
	cfg.BaseURL = server.URL

	client, err := NewClient(cfg, server.Client())
	require.NoError(t, err)
	return client
}

func TestCreatePaymentLink(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wallet/createPaymentLink", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "secret", r.Header.Get("x-api-secret"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "25.00", body["amount"])
		assert.Equal(t, "USD", body["currency"])
		assert.Equal(t, "buyer@example.com", body["email"])
		assert.Equal(t, "4521", body["ref"])
		assert.Equal(t, "https://billing.example.com/return/4521", body["redirectUrl"])

		_, _ = w.Write([]byte(`{"success":true,"payment_url":"https://pay.example.com/abc"}`))
	})

	url, err := client.CreatePaymentLink(context.Background(), PaymentLinkRequest{
		Amount:      decimal.RequireFromString("25"),
		Currency:    "usd",
		Email:       "buyer@example.com",
		Ref:         "4521",
		RedirectURL: "https://billing.example.com/return/4521",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/abc", url)
}

func TestCreatePaymentLink_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{"unsuccessful", http.StatusOK, `{"success":false,"message":"invalid amount"}`, ErrRequestFailed},
		{"missing url", http.StatusOK, `{"success":true}`, ErrMissingResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.CreatePaymentLink(context.Background(), PaymentLinkRequest{Amount: decimal.NewFromInt(1), Currency: "USD"})
			assert.ErrorIs(t, err, tt.target)
		})
	}

	t.Run("http error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.CreatePaymentLink(context.Background(), PaymentLinkRequest{Amount: decimal.NewFromInt(1), Currency: "USD"})
		var httpErr *provider.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	})
}

func TestCreateWithdrawal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wallet/createWithdrawalRequest", r.URL.Path)

		var body withdrawalPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1500", body.Amount)
		assert.Equal(t, "JPY", body.Currency)
		assert.Equal(t, DefaultPaymentMethod, body.PaymentMethod)
		assert.Equal(t, "Refund for transaction: abc123", body.Note)
		assert.Equal(t, "Jane Doe", body.Fields["name"])

		_, _ = w.Write([]byte(`{"success":true,"withdrawal_id":987}`))
	})

	id, err := client.CreateWithdrawal(context.Background(), WithdrawalRequest{
		Email:    "buyer@example.com",
		Currency: "JPY",
		Amount:   decimal.RequireFromString("1500"),
		Note:     "Refund for transaction: abc123",
		Fields:   map[string]string{"name": "Jane Doe"},
	})
	require.NoError(t, err)
	assert.Equal(t, "987", id)
}

func TestNewClient_Validation(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	_, err := NewClient(cfg, nil)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)

	cfg.APIKey, cfg.APISecret = "k", "s"
	cfg.BaseURL = "http://outdoor.kasroad.com"
	_, err = NewClient(cfg, nil)
	assert.ErrorIs(t, err, provider.ErrInsecureEndpoint)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "25.00", FormatAmount(decimal.RequireFromString("25"), "USD"))
	assert.Equal(t, "25.50", FormatAmount(decimal.RequireFromString("25.5"), "eur"))
	assert.Equal(t, "1500", FormatAmount(decimal.RequireFromString("1500"), "jpy"))
	assert.Equal(t, "1501", FormatAmount(decimal.RequireFromString("1500.6"), "KRW"))
}

func TestGenerateReference(t *testing.T) {
	now := time.Unix(1700000000, 0)
	assert.Equal(t, "WHMCS-4521-1700000000", GenerateReference("4521", now))
}

func TestIsSupportedCurrency(t *testing.T) {
	assert.True(t, IsSupportedCurrency(" usd", config.DefaultCurrencies))
	assert.False(t, IsSupportedCurrency("SYP", config.DefaultCurrencies))
}
