package domain

import (
	"fmt"
	"strings"
)

// FieldSet is the full editable state of one AP record.
type FieldSet struct {
	Charges              Charges
	BIRPercentage        Amount
	NetRevenuePercentage Amount
	GrossIncome          Amount
}

// Clone returns a deep copy.
func (f FieldSet) Clone() FieldSet {
	out := f
	out.Charges = f.Charges.Clone()
	return out
}

// Line returns the line item of a charge, empty when absent.
func (f FieldSet) Line(name ChargeName) ChargeLineItem {
	if f.Charges == nil {
		return ChargeLineItem{}
	}
	return f.Charges[name]
}

// Value returns the value of a flattened key in the shape its rule expects:
// float64 for amounts and percentages, string for text fields.
func (f FieldSet) Value(key string) (any, error) {
	switch key {
	case FieldBIRPercentage:
		return f.BIRPercentage.Float(), nil
	case FieldNetRevenuePercentage:
		return f.NetRevenuePercentage.Float(), nil
	case FieldGrossIncome:
		return f.GrossIncome.Float(), nil
	}

	charge, attr, ok := ParseFieldKey(key)
	if !ok {
		return nil, ErrUnknownField
	}
	item := f.Line(charge)
	switch attr {
	case AttrAmount:
		return item.Amount.Float(), nil
	case AttrCheckDate:
		return StringValue(item.CheckDate), nil
	case AttrVoucher:
		return StringValue(item.Voucher), nil
	default:
		return StringValue(item.Payee), nil
	}
}

// Set applies a raw input to a charge field or percentage. Amounts go through
// the strict normalizer; on error the field is left unchanged. Gross income
// is not settable here because its editability depends on the derivation mode.
func (f *FieldSet) Set(key string, raw any) error {
	switch key {
	case FieldBIRPercentage, FieldNetRevenuePercentage:
		amount, err := ParseAmount(raw)
		if err != nil {
			return err
		}
		if key == FieldBIRPercentage {
			f.BIRPercentage = amount
		} else {
			f.NetRevenuePercentage = amount
		}
		return nil
	case FieldGrossIncome:
		return ErrInvalidField
	}

	charge, attr, ok := ParseFieldKey(key)
	if !ok {
		return ErrUnknownField
	}
	if f.Charges == nil {
		f.Charges = make(Charges, len(WizardCharges))
	}
	item := f.Charges[charge]

	switch attr {
	case AttrAmount:
		amount, err := ParseAmount(raw)
		if err != nil {
			return err
		}
		item.Amount = amount
	case AttrCheckDate:
		text, err := rawText(raw)
		if err != nil {
			return err
		}
		date, err := NormalizeDate(text)
		if err != nil {
			return err
		}
		item.CheckDate = date
	case AttrVoucher:
		text, err := rawText(raw)
		if err != nil {
			return err
		}
		item.Voucher = NullableString(text)
	case AttrPayee:
		if charge.PayeeReadOnly() {
			return ErrReadOnlyField
		}
		text, err := rawText(raw)
		if err != nil {
			return err
		}
		item.Payee = NullableString(text)
	}

	f.Charges[charge] = item
	return nil
}

func rawText(raw any) (*string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	case *string:
		return v, nil
	case fmt.Stringer:
		s := v.String()
		return &s, nil
	default:
		return nil, ErrInvalidField
	}
}

// Validate checks the given keys against the field schema and returns every
// failure in key order.
func (f FieldSet) Validate(keys ...string) []FieldError {
	var out []FieldError
	for _, key := range keys {
		value, err := f.Value(key)
		if err != nil {
			out = append(out, InputError(key, err))
			continue
		}
		if fe := ValidateValue(key, value); fe != nil {
			out = append(out, *fe)
		}
	}
	return out
}

// Payload flattens the field set for the persistence boundary: Empty amounts
// become 0, blank strings become nil and dates are normalized.
func (f FieldSet) Payload() (UpdatePayload, error) {
	payload := UpdatePayload{
		Lines:                make(map[ChargeName]FlushedLine, len(WizardCharges)),
		BIRPercentage:        f.BIRPercentage.FlushPercent(),
		NetRevenuePercentage: f.NetRevenuePercentage.FlushPercent(),
		GrossIncome:          f.GrossIncome.Flush(),
	}
	for _, name := range WizardCharges {
		item := f.Line(name)
		date, err := NormalizeDate(item.CheckDate)
		if err != nil {
			return UpdatePayload{}, fmt.Errorf("%s: %w", FieldKey(name, AttrCheckDate), err)
		}
		payload.Lines[name] = FlushedLine{
			Amount:    item.Amount.Flush(),
			CheckDate: date,
			Voucher:   NullableString(item.Voucher),
			Payee:     NullableString(item.Payee),
		}
	}
	return payload, nil
}

// KeyList joins keys for log fields.
func KeyList(errs []FieldError) string {
	keys := make([]string, 0, len(errs))
	for _, fe := range errs {
		keys = append(keys, fe.Field)
	}
	return strings.Join(keys, ",")
}

// Flatten renders the editable state keyed by FieldKey. Empty amounts encode
// as null so that clients show a placeholder instead of 0.00.
func (f FieldSet) Flatten() map[string]any {
	out := make(map[string]any, len(WizardCharges)*4+3)
	for _, name := range WizardCharges {
		item := f.Line(name)
		out[FieldKey(name, AttrAmount)] = item.Amount
		out[FieldKey(name, AttrCheckDate)] = item.CheckDate
		out[FieldKey(name, AttrVoucher)] = item.Voucher
		out[FieldKey(name, AttrPayee)] = item.Payee
	}
	out[FieldBIRPercentage] = f.BIRPercentage
	out[FieldNetRevenuePercentage] = f.NetRevenuePercentage
	out[FieldGrossIncome] = f.GrossIncome
	return out
}
