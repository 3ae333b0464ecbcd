package provider

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/infra/validate"
	"github.com/shopspring/decimal"
)

// Callback field names on the wire
const (
	FieldOrderID  = "order_id"
	FieldID       = "id"
	FieldSecret   = "secret"
	FieldAmount   = "amount"
	FieldRef      = "ref"
	FieldStatus   = "status"
	FieldCurrency = "currency"
)

// FieldValidator checks the six callback fields and builds an Envelope
type FieldValidator struct {
	validate    *validator.Validate
	maxAmount   decimal.Decimal
	currencyTag string
}

// NewFieldValidator creates a validator from the gateway limits
func NewFieldValidator(cfg config.GatewayConfig) *FieldValidator {
	tag := "required,len=3,alpha"
	if cfg.EnforceCurrencyAllowList && len(cfg.Currencies) > 0 {
		tag += ",oneof=" + strings.Join(cfg.Currencies, " ")
	}
	return &FieldValidator{
		validate:    validate.Validator(),
		maxAmount:   cfg.MaxAmount,
		currencyTag: tag,
	}
}

// Validate returns the envelope or a *FieldError for the first bad field.
// No partially valid envelope is ever returned.
func (v *FieldValidator) Validate(fields map[string]string) (*Envelope, error) {
	rawOrderID, ok := fields[FieldOrderID]
	if !ok || rawOrderID == "" {
		rawOrderID, ok = fields[FieldID]
	}
	if !ok {
		return nil, fieldErr(FieldOrderID, "missing")
	}
	orderID := NormalizeOrderID(rawOrderID)
	if err := v.check(FieldOrderID, orderID, "required,max=100,orderid"); err != nil {
		return nil, err
	}

	rawSecret, ok := fields[FieldSecret]
	if !ok {
		return nil, fieldErr(FieldSecret, "missing")
	}
	secret := strings.TrimSpace(rawSecret)
	if err := v.check(FieldSecret, secret, "required,max=500"); err != nil {
		return nil, err
	}

	rawAmount, ok := fields[FieldAmount]
	if !ok {
		return nil, fieldErr(FieldAmount, "missing")
	}
	amount, err := ParseAmount(rawAmount, v.maxAmount)
	if err != nil {
		return nil, err
	}

	rawRef, ok := fields[FieldRef]
	if !ok {
		return nil, fieldErr(FieldRef, "missing")
	}
	ref := NormalizeDigits(rawRef)
	if err := v.check(FieldRef, ref, "required,max=20,numeric"); err != nil {
		return nil, err
	}

	rawStatus, ok := fields[FieldStatus]
	if !ok {
		return nil, fieldErr(FieldStatus, "missing")
	}
	status := NormalizeStatus(rawStatus)
	if err := v.check(FieldStatus, string(status), "required,oneof=fulfilled pending failed cancelled"); err != nil {
		return nil, err
	}

	rawCurrency, ok := fields[FieldCurrency]
	if !ok {
		return nil, fieldErr(FieldCurrency, "missing")
	}
	currency := NormalizeCurrency(rawCurrency)
	if err := v.check(FieldCurrency, currency, v.currencyTag); err != nil {
		return nil, err
	}

	return &Envelope{
		OrderID:   orderID,
		Secret:    secret,
		Amount:    amount,
		InvoiceID: ref,
		Status:    status,
		Currency:  currency,
	}, nil
}

func (v *FieldValidator) check(field, value, tag string) error {
	err := v.validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldErr(field, reasonFor(verrs[0]))
	}
	return fieldErr(field, err.Error())
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "empty"
	case "max":
		return "longer than " + fe.Param()
	case "len":
		return "must be " + fe.Param() + " characters"
	case "oneof":
		return "not an accepted value"
	default:
		return "malformed"
	}
}

// ParseAmount parses a positive amount with at most two decimals, no larger
// than max. Extra precision is rejected, never truncated.
func ParseAmount(raw string, max decimal.Decimal) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fieldErr(FieldAmount, "empty")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fieldErr(FieldAmount, "not a number")
	}
	if !amount.IsPositive() {
		return decimal.Zero, fieldErr(FieldAmount, "must be positive")
	}
	if amount.GreaterThan(max) {
		return decimal.Zero, fieldErr(FieldAmount, "exceeds maximum "+max.StringFixed(2))
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, fieldErr(FieldAmount, "more than two decimal places")
	}
	return amount, nil
}

// NormalizeOrderID keeps letters, digits, hyphen and underscore
func NormalizeOrderID(s string) string {
	return strings.Map(func(r rune) rune {
		if isASCIILetter(r) || isASCIIDigit(r) || r == '-' || r == '_' {
			return r
		}
		return -1
	}, s)
}

// NormalizeDigits keeps ASCII digits only
func NormalizeDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if isASCIIDigit(r) {
			return r
		}
		return -1
	}, s)
}

// NormalizeStatus lower cases the status and drops everything but letters
func NormalizeStatus(s string) PaymentStatus {
	return PaymentStatus(strings.ToLower(lettersOnly(s)))
}

// NormalizeCurrency upper cases the code and drops everything but letters
func NormalizeCurrency(s string) string {
	return strings.ToUpper(lettersOnly(s))
}

func lettersOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if isASCIILetter(r) {
			return r
		}
		return -1
	}, s)
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
