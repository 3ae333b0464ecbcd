package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var formPolicy = bluemonday.StrictPolicy()

// NormalizePayload turns a callback body into field name -> value. The body is
// decoded as a JSON object first and as form data when that fails. Form values
// are stripped of markup and control characters, entries left empty are
// dropped. An empty result is ErrEmptyPayload.
func NormalizePayload(body []byte) (map[string]string, error) {
	if fields, ok := decodeJSONObject(body); ok {
		if len(fields) == 0 {
			return nil, ErrEmptyPayload
		}
		return fields, nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	fields := make(map[string]string, len(values))
	for key, vals := range values {
		key = strings.TrimSpace(key)
		if key == "" || len(vals) == 0 {
			continue
		}
		if v := sanitizeFormValue(vals[0]); v != "" {
			fields[key] = v
		}
	}

	if len(fields) == 0 {
		return nil, ErrEmptyPayload
	}
	return fields, nil
}

// decodeJSONObject reports ok only for a single well formed JSON object.
// Scalars and nested values inside the object are flattened to strings,
// nested objects and arrays are ignored.
func decodeJSONObject(body []byte) (map[string]string, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		case bool:
			fields[key] = strconv.FormatBool(v)
		}
	}
	return fields, true
}

func sanitizeFormValue(v string) string {
	v = formPolicy.Sanitize(v)
	v = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, v)
	return strings.TrimSpace(v)
}
