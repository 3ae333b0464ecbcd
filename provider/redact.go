package provider

import "strings"

// Redacted replaces sensitive values in audit data leaving the host
const Redacted = "***REDACTED***"

// sensitiveKeys hold credentials or signatures. A logged expected signature
// is valid for the amount and order id it was computed over.
var sensitiveKeys = map[string]struct{}{
	"apikey":        {},
	"api_key":       {},
	"apisecret":     {},
	"api_secret":    {},
	"secret":        {},
	"expected":      {},
	"received":      {},
	"signature":     {},
	"password":      {},
	"token":         {},
	"authorization": {},
	"x-api-key":     {},
	"x-api-secret":  {},
}

// RedactAuditData returns a copy of data with sensitive values redacted. Keys
// match case-insensitively and nested maps are walked.
func RedactAuditData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
			out[k] = Redacted
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[k] = RedactAuditData(nested)
		case map[string]string:
			m := make(map[string]any, len(nested))
			for nk, nv := range nested {
				m[nk] = nv
			}
			out[k] = RedactAuditData(m)
		default:
			out[k] = v
		}
	}
	return out
}
