package provider

import (
	"crypto/subtle"
	"fmt"

	"github.com/shopspring/decimal"
)

// SignatureComputer derives the signature the wallet should have sent
type SignatureComputer interface {
	ExpectedSignature(amount decimal.Decimal, orderID string) (string, error)
}

// VerifySignature recomputes the signature for env and compares it with the
// received secret in constant time. expected is returned for audit entries and
// must never reach the caller's response. A computation failure fails closed.
func VerifySignature(signer SignatureComputer, env *Envelope) (expected string, err error) {
	if signer == nil {
		return "", fmt.Errorf("signature: %w", ErrMissingCredentials)
	}
	expected, err = signer.ExpectedSignature(env.Amount, env.OrderID)
	if err != nil {
		return "", fmt.Errorf("signature: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(env.Secret)) != 1 {
		return expected, ErrSignatureInvalid
	}
	return expected, nil
}
