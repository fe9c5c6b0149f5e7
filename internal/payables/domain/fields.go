package domain

import (
	"strings"
	"time"
)

// FieldAttr is the per-charge attribute part of a flattened field key.
type FieldAttr string

const (
	AttrAmount    FieldAttr = "amount"
	AttrCheckDate FieldAttr = "check_date"
	AttrVoucher   FieldAttr = "voucher"
	AttrPayee     FieldAttr = "payee"
)

var chargeAttrs = []FieldAttr{AttrAmount, AttrCheckDate, AttrVoucher, AttrPayee}

// Record-level field keys.
const (
	FieldBIRPercentage        = "bir_percentage"
	FieldNetRevenuePercentage = "net_revenue_percentage"
	FieldGrossIncome          = "gross_income"
)

// DateLayout is the wire format of check dates.
const DateLayout = "2006-01-02"

// FieldKey builds the flattened key, e.g. "freight_voucher".
func FieldKey(charge ChargeName, attr FieldAttr) string {
	return string(charge) + "_" + string(attr)
}

// ParseFieldKey splits a flattened charge key. ok is false for record-level
// keys and unknown names.
func ParseFieldKey(key string) (ChargeName, FieldAttr, bool) {
	key = strings.TrimSpace(key)
	for _, attr := range chargeAttrs {
		suffix := "_" + string(attr)
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		charge := ChargeName(strings.TrimSuffix(key, suffix))
		if charge.IsWizardCharge() {
			return charge, attr, true
		}
	}
	return "", "", false
}

// AllFieldKeys lists every flattened key of the wizard in canonical order.
func AllFieldKeys() []string {
	keys := make([]string, 0, len(WizardCharges)*len(chargeAttrs)+3)
	for _, charge := range WizardCharges {
		for _, attr := range chargeAttrs {
			keys = append(keys, FieldKey(charge, attr))
		}
	}
	return append(keys, FieldBIRPercentage, FieldNetRevenuePercentage, FieldGrossIncome)
}

// NormalizeDate accepts YYYY-MM-DD or RFC3339 input and returns YYYY-MM-DD,
// or nil for empty input.
func NormalizeDate(raw *string) (*string, error) {
	value := NullableString(raw)
	if value == nil {
		return nil, nil
	}
	if t, err := time.Parse(DateLayout, *value); err == nil {
		out := t.Format(DateLayout)
		return &out, nil
	}
	if t, err := time.Parse(time.RFC3339, *value); err == nil {
		out := t.UTC().Format(DateLayout)
		return &out, nil
	}
	return nil, ErrInvalidDate
}
