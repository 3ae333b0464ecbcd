package kazawallet

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/shopspring/decimal"
)

const separator = ":::"

// Signer computes callback signatures for one api key pair
type Signer struct {
	apiKey    string
	apiSecret string
}

// NewSigner creates a signer for the given credentials
func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{apiKey: apiKey, apiSecret: apiSecret}
}

// ExpectedSignature returns base64(HMAC-SHA512(apiSecret, SHA256(amount:::orderID:::apiKey))).
// The amount is always rendered with two decimals so 10 and 10.00 sign alike.
func (s *Signer) ExpectedSignature(amount decimal.Decimal, orderID string) (string, error) {
	if s.apiKey == "" || s.apiSecret == "" {
		return "", config.ErrMissingCredentials
	}
	return Sign(CanonicalAmount(amount), orderID, s.apiKey, s.apiSecret), nil
}

// CanonicalAmount renders amount the way it is signed
func CanonicalAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// Sign computes the signature over already canonical inputs
func Sign(amount, orderID, apiKey, apiSecret string) string {
	digest := sha256.Sum256([]byte(amount + separator + orderID + separator + apiKey))

	mac := hmac.New(sha512.New, []byte(apiSecret))
	mac.Write(digest[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
