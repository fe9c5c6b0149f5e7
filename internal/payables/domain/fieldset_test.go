package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldKeys(t *testing.T) {
	keys := AllFieldKeys()
	assert.Len(t, keys, 13*4+3)
	assert.Equal(t, "freight_amount", keys[0])
	assert.Equal(t, FieldGrossIncome, keys[len(keys)-1])

	charge, attr, ok := ParseFieldKey("trucking_origin_check_date")
	require.True(t, ok)
	assert.Equal(t, ChargeTruckingOrigin, charge)
	assert.Equal(t, AttrCheckDate, attr)

	_, _, ok = ParseFieldKey("denr_amount")
	assert.False(t, ok)
	_, _, ok = ParseFieldKey(FieldBIRPercentage)
	assert.False(t, ok)
}

func TestChargeCatalogue(t *testing.T) {
	assert.Len(t, WizardCharges, 13)
	assert.Len(t, LedgerCharges, 14)
	assert.False(t, ChargeDENR.IsWizardCharge())
	assert.Equal(t, "Arrastre (Destination)", ChargeArrastreDest.Label())
	assert.Equal(t, "DENR", ChargeDENR.Label())

	total := 0
	for _, category := range Categories {
		total += len(ChargesIn(category))
	}
	assert.Equal(t, 13, total)
}

func TestFieldSetSet(t *testing.T) {
	var f FieldSet

	require.NoError(t, f.Set("storage_amount", "1,200"))
	require.NoError(t, f.Set("storage_check_date", "2026-01-10T09:00:00Z"))
	require.NoError(t, f.Set("storage_voucher", "  V-9 "))
	require.NoError(t, f.Set("storage_payee", "Depot"))
	require.NoError(t, f.Set(FieldBIRPercentage, 12))

	line := f.Line(ChargeStorage)
	assert.Equal(t, 1200.0, line.Amount.Float())
	assert.Equal(t, "2026-01-10", StringValue(line.CheckDate))
	assert.Equal(t, "V-9", StringValue(line.Voucher))
	assert.Equal(t, "Depot", StringValue(line.Payee))
	assert.Equal(t, 12.0, f.BIRPercentage.Float())

	assert.ErrorIs(t, f.Set("storage_amount", "-1"), ErrNegativeAmount)
	assert.Equal(t, 1200.0, f.Line(ChargeStorage).Amount.Float())
	assert.ErrorIs(t, f.Set("storage_check_date", "10/01/2026"), ErrInvalidDate)
	assert.ErrorIs(t, f.Set("freight_payee", "Someone"), ErrReadOnlyField)
	assert.ErrorIs(t, f.Set("denr_amount", "1"), ErrUnknownField)
	assert.ErrorIs(t, f.Set(FieldGrossIncome, "1"), ErrInvalidField)
}

func TestFieldSetValidate(t *testing.T) {
	var f FieldSet
	errs := f.Validate("freight_amount", "freight_voucher", "storage_voucher")
	require.Len(t, errs, 1)
	assert.Equal(t, "freight_voucher", errs[0].Field)
	assert.Equal(t, "required", errs[0].Code)

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, f.Set("storage_voucher", string(long)))
	errs = f.Validate("storage_voucher", "unknown")
	require.Len(t, errs, 2)
	assert.Equal(t, "max", errs[0].Code)
	assert.Equal(t, CodeUnknownField, errs[1].Code)
}

func TestFieldSetCloneIsDeep(t *testing.T) {
	var f FieldSet
	require.NoError(t, f.Set("rebates_voucher", "R-1"))
	clone := f.Clone()
	require.NoError(t, clone.Set("rebates_voucher", "R-2"))
	assert.Equal(t, "R-1", StringValue(f.Line(ChargeRebates).Voucher))
}

func TestPayloadRoundTrip(t *testing.T) {
	var f FieldSet
	require.NoError(t, f.Set("freight_amount", "1000.005"))
	require.NoError(t, f.Set("freight_voucher", "V-1"))
	require.NoError(t, f.Set("labor_dest_voucher", "   "))
	require.NoError(t, f.Set(FieldNetRevenuePercentage, "10"))
	f.GrossIncome = AmountOf(1232)

	payload, err := f.Payload()
	require.NoError(t, err)
	assert.Len(t, payload.Lines, 13)
	assert.Equal(t, 1000.01, payload.Lines[ChargeFreight].Amount)
	assert.Equal(t, 0.0, payload.Lines[ChargeCrainage].Amount)
	assert.Nil(t, payload.Lines[ChargeLaborDest].Voucher)

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Len(t, flat, 13*4+3)
	assert.NotContains(t, flat, "denr_amount")

	var decoded UpdatePayload
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, payload, decoded)

	back := decoded.FieldSet()
	assert.Equal(t, 1232.0, back.GrossIncome.Float())
	assert.True(t, back.Line(ChargeCrainage).Amount.IsEmpty())
}

func TestPayloadKeepsFractionalRates(t *testing.T) {
	var f FieldSet
	require.NoError(t, f.Set(FieldBIRPercentage, "12.345"))
	require.NoError(t, f.Set(FieldNetRevenuePercentage, "0.0125"))

	payload, err := f.Payload()
	require.NoError(t, err)
	assert.Equal(t, 12.345, payload.BIRPercentage)
	assert.Equal(t, 0.0125, payload.NetRevenuePercentage)

	back := payload.FieldSet()
	assert.Equal(t, 12.345, back.BIRPercentage.Float())
	assert.Equal(t, 0.0125, back.NetRevenuePercentage.Float())
}

func TestPayloadRejectsBadInput(t *testing.T) {
	var p UpdatePayload

	err := json.Unmarshal([]byte(`{"denr_amount": 5}`), &p)
	var fieldErr *PayloadFieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "denr_amount", fieldErr.Field)
	assert.ErrorIs(t, err, ErrUnknownField)

	err = json.Unmarshal([]byte(`{"storage_amount": -1}`), &p)
	assert.ErrorIs(t, err, ErrNegativeAmount)

	require.NoError(t, json.Unmarshal([]byte(`{"freight_payee": "ignored", "gross_income": "1,500"}`), &p))
	assert.Equal(t, "ignored", StringValue(p.Lines[ChargeFreight].Payee))
	assert.Equal(t, 1500.0, p.GrossIncome)
}

func TestToRecordDerivesPayees(t *testing.T) {
	amount := 500.0
	rec := &APRecord{
		ShippingLine: strPtr("Oceanic Lines"),
		Trucker:      strPtr("Northbound Haulers"),
		Lines: []ChargeLine{
			{Charge: ChargeFreight, Amount: &amount, Payee: strPtr("stale")},
			{Charge: ChargeDENR, Amount: &amount},
		},
	}
	out := rec.ToRecord()
	assert.Equal(t, 500.0, out.Fields.Line(ChargeFreight).Amount.Float())
	assert.Equal(t, "Oceanic Lines", StringValue(out.Fields.Line(ChargeFreight).Payee))
	assert.Equal(t, "Northbound Haulers", StringValue(out.Fields.Line(ChargeTruckingDest).Payee))
	assert.True(t, out.Fields.Line(ChargeCrainage).Amount.IsEmpty())
	_, hasDENR := out.Fields.Charges[ChargeDENR]
	assert.False(t, hasDENR)
}

func strPtr(v string) *string { return &v }
