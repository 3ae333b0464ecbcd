package kazawallet

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"testing"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_MatchesConstruction(t *testing.T) {
	digest := sha256.Sum256([]byte("25.00:::abc123:::key"))
	mac := hmac.New(sha512.New, []byte("secret"))
	mac.Write(digest[:])
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	got := Sign("25.00", "abc123", "key", "secret")
	assert.Equal(t, want, got)

	raw, err := base64.StdEncoding.DecodeString(got)
	require.NoError(t, err)
	assert.Len(t, raw, 64)
}

func TestExpectedSignature_Deterministic(t *testing.T) {
	s := NewSigner("key", "secret")
	amount := decimal.RequireFromString("25.00")

	first, err := s.ExpectedSignature(amount, "abc123")
	require.NoError(t, err)
	second, err := s.ExpectedSignature(amount, "abc123")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	variants := []struct {
		name   string
		signer *Signer
		amount string
		order  string
	}{
		{"amount", s, "25.01", "abc123"},
		{"order id", s, "25.00", "abc124"},
		{"api key", NewSigner("key2", "secret"), "25.00", "abc123"},
		{"api secret", NewSigner("key", "secret2"), "25.00", "abc123"},
	}
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			other, err := v.signer.ExpectedSignature(decimal.RequireFromString(v.amount), v.order)
			require.NoError(t, err)
			assert.NotEqual(t, first, other)
		})
	}
}

func TestExpectedSignature_CanonicalAmount(t *testing.T) {
	s := NewSigner("key", "secret")

	a, _ := s.ExpectedSignature(decimal.RequireFromString("10"), "o")
	b, _ := s.ExpectedSignature(decimal.RequireFromString("10.00"), "o")
	c, _ := s.ExpectedSignature(decimal.RequireFromString("10.0"), "o")

	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
	assert.Equal(t, "10.00", CanonicalAmount(decimal.RequireFromString("10")))
}

func TestExpectedSignature_MissingCredentials(t *testing.T) {
	_, err := NewSigner("", "secret").ExpectedSignature(decimal.NewFromInt(1), "o")
	assert.ErrorIs(t, err, config.ErrMissingCredentials)

	_, err = NewSigner("key", "").ExpectedSignature(decimal.NewFromInt(1), "o")
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}
