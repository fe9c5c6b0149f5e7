package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// requiredVouchers lists voucher fields that may not be left blank.
var requiredVouchers = map[string]bool{
	FieldKey(ChargeFreight, AttrVoucher): true,
}

// Codes of rejected raw inputs. Schema failures use the validator tag.
const (
	CodeMin          = "min"
	CodeNumeric      = "numeric"
	CodeDatetime     = "datetime"
	CodeReadOnly     = "read_only"
	CodeUnknownField = "unknown_field"
	CodeInvalid      = "invalid"
)

// FieldError is a per-field validation failure shown inline next to a field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FieldRule returns the validator rule of a flattened field key.
func FieldRule(key string) (string, error) {
	switch key {
	case FieldBIRPercentage, FieldNetRevenuePercentage, FieldGrossIncome:
		return "min=0", nil
	}

	_, attr, ok := ParseFieldKey(key)
	if !ok {
		return "", ErrUnknownField
	}
	switch attr {
	case AttrAmount:
		return "min=0", nil
	case AttrCheckDate:
		return "omitempty,datetime=2006-01-02", nil
	case AttrVoucher:
		if requiredVouchers[key] {
			return "required,max=64", nil
		}
		return "omitempty,max=64", nil
	case AttrPayee:
		return "omitempty,max=128", nil
	default:
		return "", ErrUnknownField
	}
}

// ValidateValue checks one field value against its rule.
func ValidateValue(key string, value any) *FieldError {
	rule, err := FieldRule(key)
	if err != nil {
		return &FieldError{Field: key, Code: CodeUnknownField, Message: "unknown field"}
	}

	err = validate.Var(value, rule)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &FieldError{
			Field:   key,
			Code:    fe.Tag(),
			Message: ruleMessage(fe.Tag(), fe.Param()),
		}
	}
	return &FieldError{Field: key, Code: CodeInvalid, Message: err.Error()}
}

func ruleMessage(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param + " characters"
	case "datetime":
		return "must be a date formatted YYYY-MM-DD"
	default:
		return "invalid value"
	}
}

// InputError converts a rejected raw input into an inline field error.
func InputError(key string, err error) FieldError {
	code := CodeInvalid
	message := "invalid value"
	switch {
	case errors.Is(err, ErrNegativeAmount):
		code, message = CodeMin, "must be at least 0"
	case errors.Is(err, ErrInvalidAmount):
		code, message = CodeNumeric, "must be a number"
	case errors.Is(err, ErrInvalidDate):
		code, message = CodeDatetime, "must be a date formatted YYYY-MM-DD"
	case errors.Is(err, ErrReadOnlyField):
		code, message = CodeReadOnly, "is read-only"
	case errors.Is(err, ErrUnknownField):
		code, message = CodeUnknownField, "unknown field"
	}
	return FieldError{Field: key, Code: code, Message: message}
}
