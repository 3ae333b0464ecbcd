package provider

import (
	"errors"
	"testing"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFields() map[string]string {
	return map[string]string{
		"order_id": "abc123",
		"secret":   "c2lnbmF0dXJl",
		"amount":   "25.00",
		"ref":      "4521",
		"status":   "fulfilled",
		"currency": "USD",
	}
}

func TestFieldValidator_Valid(t *testing.T) {
	v := NewFieldValidator(config.DefaultGatewayConfig())

	env, err := v.Validate(validFields())
	require.NoError(t, err)

	assert.Equal(t, "abc123", env.OrderID)
	assert.Equal(t, "c2lnbmF0dXJl", env.Secret)
	assert.True(t, env.Amount.Equal(decimal.RequireFromString("25")))
	assert.Equal(t, "4521", env.InvoiceID)
	assert.Equal(t, StatusFulfilled, env.Status)
	assert.Equal(t, "USD", env.Currency)
}

func TestFieldValidator_Normalization(t *testing.T) {
	v := NewFieldValidator(config.DefaultGatewayConfig())

	fields := validFields()
	delete(fields, "order_id")
	fields["id"] = " abc-12_3!<> "
	fields["secret"] = "  c2lnbmF0dXJl\n"
	fields["ref"] = "#45-21"
	fields["status"] = "FULFILLED "
	fields["currency"] = " usd."

	env, err := v.Validate(fields)
	require.NoError(t, err)

	assert.Equal(t, "abc-12_3", env.OrderID)
	assert.Equal(t, "c2lnbmF0dXJl", env.Secret)
	assert.Equal(t, "4521", env.InvoiceID)
	assert.Equal(t, StatusFulfilled, env.Status)
	assert.Equal(t, "USD", env.Currency)
}

func TestFieldValidator_Rejections(t *testing.T) {
	long := func(n int, c string) string {
		s := ""
		for i := 0; i < n; i++ {
			s += c
		}
		return s
	}

	tests := []struct {
		name  string
		field string
		value string
		drop  bool
	}{
		{"missing order id", "order_id", "", true},
		{"order id only symbols", "order_id", "!!!", false},
		{"order id too long", "order_id", long(101, "a"), false},
		{"missing secret", "secret", "", true},
		{"blank secret", "secret", "   ", false},
		{"secret too long", "secret", long(501, "s"), false},
		{"amount not a number", "amount", "ten", false},
		{"amount zero", "amount", "0", false},
		{"amount negative", "amount", "-1", false},
		{"amount above ceiling", "amount", "1000000", false},
		{"amount three decimals", "amount", "10.001", false},
		{"ref without digits", "ref", "abc", false},
		{"ref too long", "ref", long(21, "9"), false},
		{"unknown status", "status", "done", false},
		{"timed out is not accepted", "status", "timed_out", false},
		{"currency too short", "currency", "US", false},
		{"currency too long", "currency", "USDT", false},
		{"missing currency", "currency", "", true},
	}

	v := NewFieldValidator(config.DefaultGatewayConfig())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := validFields()
			if tt.drop {
				delete(fields, tt.field)
			} else {
				fields[tt.field] = tt.value
			}

			env, err := v.Validate(fields)
			assert.Nil(t, env)

			var fe *FieldError
			require.True(t, errors.As(err, &fe), "expected *FieldError, got %v", err)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestFieldValidator_CurrencyAllowList(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	cfg.EnforceCurrencyAllowList = true
	cfg.Currencies = []string{"USD", "EUR"}
	v := NewFieldValidator(cfg)

	fields := validFields()
	fields["currency"] = "eur"
	_, err := v.Validate(fields)
	assert.NoError(t, err)

	fields["currency"] = "SYP"
	_, err = v.Validate(fields)
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "currency", fe.Field)

	lenient := NewFieldValidator(config.DefaultGatewayConfig())
	_, err = lenient.Validate(fields)
	assert.NoError(t, err, "allow-list is only applied when enforced")
}

func TestParseAmount(t *testing.T) {
	max := decimal.RequireFromString("999999.99")

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"10", "10.00", true},
		{"10.00", "10.00", true},
		{" 25.5 ", "25.50", true},
		{"999999.99", "999999.99", true},
		{"10.001", "", false},
		{"1e400", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw, max)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "abc123", NormalizeOrderID("abc 123"))
	assert.Equal(t, "a-b_c--", NormalizeOrderID("a-b_c;--"))
	assert.Equal(t, "4521", NormalizeDigits("INV-4521"))
	assert.Equal(t, PaymentStatus("fulfilled"), NormalizeStatus(" Ful-filled\t"))
	assert.Equal(t, "EUR", NormalizeCurrency("e.u.r"))
}
