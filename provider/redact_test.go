package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactAuditData(t *testing.T) {
	in := map[string]any{
		"order_id":        "ORD-1",
		"secret":          "c2lnbmF0dXJl",
		"apiKey":          "key",
		"Expected":        "VALID-SIGNATURE",
		"expected_amount": "100.00",
		"headers":         map[string]any{"x-api-secret": "s3cr3t", "accept": "json"},
		"fields":          map[string]string{"secret": "s", "ref": "4521"},
	}

	out := RedactAuditData(in)
	assert.Equal(t, "ORD-1", out["order_id"])
	assert.Equal(t, Redacted, out["secret"])
	assert.Equal(t, Redacted, out["apiKey"])
	assert.Equal(t, Redacted, out["Expected"])
	assert.Equal(t, "100.00", out["expected_amount"])
	assert.Equal(t, map[string]any{"x-api-secret": Redacted, "accept": "json"}, out["headers"])
	assert.Equal(t, map[string]any{"secret": Redacted, "ref": "4521"}, out["fields"])
	assert.Equal(t, "c2lnbmF0dXJl", in["secret"], "input must not be modified")
	assert.Nil(t, RedactAuditData(nil))
}
