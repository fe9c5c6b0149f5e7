package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlushedLine is one charge as sent to the persistence collaborator.
type FlushedLine struct {
	Amount    float64
	CheckDate *string
	Voucher   *string
	Payee     *string
}

// UpdatePayload is the flattened 13x4 field set plus the record-level figures.
// On the wire it is a flat JSON object keyed by FieldKey.
type UpdatePayload struct {
	Lines                map[ChargeName]FlushedLine
	BIRPercentage        float64
	NetRevenuePercentage float64
	GrossIncome          float64
}

// Flatten renders the payload as flat key/value pairs.
func (p UpdatePayload) Flatten() map[string]any {
	out := make(map[string]any, len(WizardCharges)*4+3)
	for _, name := range WizardCharges {
		line := p.Lines[name]
		out[FieldKey(name, AttrAmount)] = line.Amount
		out[FieldKey(name, AttrCheckDate)] = line.CheckDate
		out[FieldKey(name, AttrVoucher)] = line.Voucher
		out[FieldKey(name, AttrPayee)] = line.Payee
	}
	out[FieldBIRPercentage] = p.BIRPercentage
	out[FieldNetRevenuePercentage] = p.NetRevenuePercentage
	out[FieldGrossIncome] = p.GrossIncome
	return out
}

func (p UpdatePayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Flatten())
}

// UnmarshalJSON reads a flat payload. Unknown keys and invalid values are
// rejected; absent keys keep their zero value.
func (p *UpdatePayload) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	fields := FieldSet{Charges: make(Charges, len(WizardCharges))}
	for key, value := range raw {
		var err error
		switch {
		case key == FieldGrossIncome:
			var amount Amount
			amount, err = ParseAmount(value)
			fields.GrossIncome = amount
		case isPayeeKey(key):
			// payees may be sent for read-only charges; the service re-derives them
			err = setPayee(&fields, key, value)
		default:
			err = fields.Set(key, value)
		}
		if err != nil {
			return &PayloadFieldError{Field: key, Err: err}
		}
	}

	decoded, err := fields.Payload()
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// FieldSet converts the flushed payload back into editable state.
func (p UpdatePayload) FieldSet() FieldSet {
	charges := make(Charges, len(WizardCharges))
	for _, name := range WizardCharges {
		line := p.Lines[name]
		charges[name] = ChargeLineItem{
			Amount:    AmountOf(line.Amount),
			CheckDate: line.CheckDate,
			Voucher:   line.Voucher,
			Payee:     line.Payee,
		}
	}
	return FieldSet{
		Charges:              charges,
		BIRPercentage:        AmountOf(p.BIRPercentage),
		NetRevenuePercentage: AmountOf(p.NetRevenuePercentage),
		GrossIncome:          AmountOf(p.GrossIncome),
	}
}

// PayloadFieldError reports the key that made a payload undecodable.
type PayloadFieldError struct {
	Field string
	Err   error
}

func (e *PayloadFieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *PayloadFieldError) Unwrap() error { return e.Err }

func isPayeeKey(key string) bool {
	_, attr, ok := ParseFieldKey(key)
	return ok && attr == AttrPayee
}

func setPayee(fields *FieldSet, key string, value any) error {
	charge, _, _ := ParseFieldKey(key)
	text, err := rawText(value)
	if err != nil {
		return err
	}
	item := fields.Charges[charge]
	item.Payee = NullableString(text)
	fields.Charges[charge] = item
	return nil
}
