package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// APRecord is the persisted accounts-payable record of one booking.
// Derived totals are stored for listing only and recomputed on every write.
type APRecord struct {
	ID    snowflake.ID `gorm:"primaryKey"`
	OrgID snowflake.ID `gorm:"column:org_id;not null;index;uniqueIndex:ux_ap_records_org_seq,priority:1"`

	Reference    string  `gorm:"type:text;not null"`
	ReferenceSeq int64   `gorm:"column:reference_seq;not null;uniqueIndex:ux_ap_records_org_seq,priority:2"`
	BookingNo    string  `gorm:"column:booking_no;type:text;not null;index"`
	ShippingLine *string `gorm:"column:shipping_line;type:text"`
	Trucker      *string `gorm:"type:text"`

	BIRPercentage        float64 `gorm:"column:bir_percentage;type:numeric(7,4);not null;default:0"`
	NetRevenuePercentage float64 `gorm:"column:net_revenue_percentage;type:numeric(7,4);not null;default:0"`
	GrossIncome          float64 `gorm:"column:gross_income;type:numeric(18,2);not null;default:0"`
	TotalExpenses        float64 `gorm:"column:total_expenses;type:numeric(18,2);not null;default:0"`
	TotalPayables        float64 `gorm:"column:total_payables;type:numeric(18,2);not null;default:0"`

	Lines []ChargeLine `gorm:"foreignKey:RecordID;references:ID"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (APRecord) TableName() string { return "ap_records" }

// ChargeLine is one persisted charge of an AP record. A nil amount means the
// charge was never filled in.
type ChargeLine struct {
	RecordID  snowflake.ID `gorm:"column:record_id;primaryKey"`
	Charge    ChargeName   `gorm:"type:text;primaryKey"`
	Amount    *float64     `gorm:"type:numeric(18,2)"`
	CheckDate *string      `gorm:"column:check_date;type:text"`
	Voucher   *string      `gorm:"type:text"`
	Payee     *string      `gorm:"type:text"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ChargeLine) TableName() string { return "ap_charge_lines" }

// Record is the fetched view of an AP record handed to the wizard.
type Record struct {
	ID           snowflake.ID
	OrgID        snowflake.ID
	Reference    string
	BookingNo    string
	ShippingLine *string
	Trucker      *string
	Fields       FieldSet
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ToRecord converts the persisted row to its wizard view. Absent amounts stay
// Empty and read-only payees are derived from the record.
func (r *APRecord) ToRecord() *Record {
	charges := make(Charges, len(WizardCharges))
	for _, line := range r.Lines {
		if !line.Charge.IsWizardCharge() {
			continue
		}
		item := ChargeLineItem{
			CheckDate: NullableString(line.CheckDate),
			Voucher:   NullableString(line.Voucher),
			Payee:     NullableString(line.Payee),
		}
		if line.Amount != nil {
			item.Amount = AmountOf(*line.Amount)
		}
		charges[line.Charge] = item
	}
	for _, name := range WizardCharges {
		item := charges[name]
		if payee := r.DerivedPayee(name); payee != nil {
			item.Payee = payee
		}
		charges[name] = item
	}

	return &Record{
		ID:           r.ID,
		OrgID:        r.OrgID,
		Reference:    r.Reference,
		BookingNo:    r.BookingNo,
		ShippingLine: r.ShippingLine,
		Trucker:      r.Trucker,
		Fields: FieldSet{
			Charges:              charges,
			BIRPercentage:        AmountOf(r.BIRPercentage),
			NetRevenuePercentage: AmountOf(r.NetRevenuePercentage),
			GrossIncome:          AmountOf(r.GrossIncome),
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// DerivedPayee returns the payee implied by the record for read-only charges.
func (r *APRecord) DerivedPayee(name ChargeName) *string {
	switch name {
	case ChargeFreight:
		return NullableString(r.ShippingLine)
	case ChargeTruckingOrigin, ChargeTruckingDest:
		return NullableString(r.Trucker)
	default:
		return nil
	}
}

// UpdateResult is the outcome reported by the persistence collaborator.
type UpdateResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
