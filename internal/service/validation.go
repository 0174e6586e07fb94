package service

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"banking-ledger/internal/domain"
	"banking-ledger/internal/errors"
)

var maxAmount = decimal.NewFromInt(10_000_000_000)

// Exponent bounds for incoming amounts. Anything outside them is either above
// maxAmount or finer than any minor unit, and comparing it would first
// rescale it to a huge coefficient.
const (
	maxAmountExponent = 10
	minAmountExponent = -18
)

// ValidationHelper wraps the struct validator shared by every service.
type ValidationHelper struct {
	validator *validator.Validate
}

func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return domain.IsSupportedCurrency(domain.NormalizeCurrency(fl.Field().String()))
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct returns nil or an ErrValidation listing each failed field.
func (vh *ValidationHelper) ValidateStruct(s any) error {
	err := vh.validator.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.ErrValidation.WithDetails(err.Error())
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	sort.Strings(msgs)
	return errors.ErrValidation.WithDetails(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "currency":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), strings.Join(domain.SupportedCurrencies(), ", "))
	default:
		return fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag())
	}
}

// validateAmount checks a money amount against the currency it will be
// booked in.
func validateAmount(amount decimal.Decimal, currency string) error {
	if err := checkAmountScale(amount); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return errors.ErrInvalidAmount
	}
	if amount.GreaterThan(maxAmount) {
		return errors.ErrInvalidAmount.WithDetails("amount exceeds the maximum of " + maxAmount.String())
	}
	if !domain.FitsMinorUnit(amount, currency) {
		return errors.ErrInvalidAmount.WithDetails(fmt.Sprintf("%s amounts allow at most %d decimal places", currency, domain.MinorUnits(currency)))
	}
	return nil
}

// checkAmountScale rejects amounts by exponent alone, before anything formats
// or compares them.
func checkAmountScale(amount decimal.Decimal) error {
	if exp := amount.Exponent(); exp > maxAmountExponent || exp < minAmountExponent {
		return errors.ErrInvalidAmount.WithDetails("amount is out of range")
	}
	return nil
}
