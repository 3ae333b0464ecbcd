package validate

import (
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	orderIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

	instance *validator.Validate
	once     sync.Once
)

// Validator returns the shared validator with the custom tags registered
func Validator() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		CustomValidate(instance)
	})
	return instance
}

// CustomValidate registers the custom tags:
//
//	orderid  letters, digits, hyphen and underscore only
//	currency three upper case letters
//	money    decimal string, positive, at most two fractional digits
func CustomValidate(v *validator.Validate) {
	_ = v.RegisterValidation("orderid", func(fl validator.FieldLevel) bool {
		return orderIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return currencyPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		return IsMoney(fl.Field().String())
	})
}

// IsMoney reports whether s is a positive amount with at most two decimals
func IsMoney(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return d.IsPositive() && d.Equal(d.Round(2))
}
