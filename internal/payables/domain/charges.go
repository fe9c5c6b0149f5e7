package domain

import (
	"strings"
)

// ChargeName identifies one of the fixed AP charge line items.
// These names are persisted and used as payload keys; do not rename.
type ChargeName string

const (
	ChargeFreight        ChargeName = "freight"
	ChargeTruckingOrigin ChargeName = "trucking_origin"
	ChargeTruckingDest   ChargeName = "trucking_dest"
	ChargeCrainage       ChargeName = "crainage"
	ChargeArrastreOrigin ChargeName = "arrastre_origin"
	ChargeArrastreDest   ChargeName = "arrastre_dest"
	ChargeWharfageOrigin ChargeName = "wharfage_origin"
	ChargeWharfageDest   ChargeName = "wharfage_dest"
	ChargeLaborOrigin    ChargeName = "labor_origin"
	ChargeLaborDest      ChargeName = "labor_dest"
	ChargeRebates        ChargeName = "rebates"
	ChargeStorage        ChargeName = "storage"
	ChargeFacilitation   ChargeName = "facilitation"

	// ChargeDENR is only part of the ledger aggregation, never the wizard.
	ChargeDENR ChargeName = "denr"
)

// WizardCharges is the canonical iteration order of the 13 wizard charges.
var WizardCharges = []ChargeName{
	ChargeFreight,
	ChargeTruckingOrigin,
	ChargeTruckingDest,
	ChargeCrainage,
	ChargeArrastreOrigin,
	ChargeArrastreDest,
	ChargeWharfageOrigin,
	ChargeWharfageDest,
	ChargeLaborOrigin,
	ChargeLaborDest,
	ChargeRebates,
	ChargeStorage,
	ChargeFacilitation,
}

// LedgerCharges extends WizardCharges with DENR.
var LedgerCharges = append(append([]ChargeName{}, WizardCharges...), ChargeDENR)

// Category groups charges for subtotals and the review sheet.
type Category string

const (
	CategoryFreight       Category = "freight"
	CategoryTrucking      Category = "trucking"
	CategoryPortCharges   Category = "port_charges"
	CategoryMiscellaneous Category = "miscellaneous"
)

// Categories lists categories in review order.
var Categories = []Category{
	CategoryFreight,
	CategoryTrucking,
	CategoryPortCharges,
	CategoryMiscellaneous,
}

func (c Category) Title() string {
	switch c {
	case CategoryFreight:
		return "Freight"
	case CategoryTrucking:
		return "Trucking"
	case CategoryPortCharges:
		return "Port Charges"
	case CategoryMiscellaneous:
		return "Miscellaneous"
	default:
		return string(c)
	}
}

// Category returns the review category of the charge.
func (c ChargeName) Category() Category {
	switch c {
	case ChargeFreight:
		return CategoryFreight
	case ChargeTruckingOrigin, ChargeTruckingDest:
		return CategoryTrucking
	case ChargeCrainage,
		ChargeArrastreOrigin, ChargeArrastreDest,
		ChargeWharfageOrigin, ChargeWharfageDest,
		ChargeLaborOrigin, ChargeLaborDest:
		return CategoryPortCharges
	default:
		return CategoryMiscellaneous
	}
}

// Label is the human-readable name shown on the review sheet.
func (c ChargeName) Label() string {
	base, side := string(c), ""
	switch {
	case strings.HasSuffix(base, "_origin"):
		base, side = strings.TrimSuffix(base, "_origin"), " (Origin)"
	case strings.HasSuffix(base, "_dest"):
		base, side = strings.TrimSuffix(base, "_dest"), " (Destination)"
	}
	if c == ChargeDENR {
		return "DENR"
	}
	return strings.ToUpper(base[:1]) + base[1:] + side
}

// PayeeReadOnly reports whether the payee is derived from the record rather
// than typed: freight is paid to the shipping line, trucking to the trucker.
func (c ChargeName) PayeeReadOnly() bool {
	switch c {
	case ChargeFreight, ChargeTruckingOrigin, ChargeTruckingDest:
		return true
	default:
		return false
	}
}

// IsWizardCharge reports whether c is one of the 13 wizard charges.
func (c ChargeName) IsWizardCharge() bool {
	for _, name := range WizardCharges {
		if name == c {
			return true
		}
	}
	return false
}

// ChargesIn returns the wizard charges of a category in canonical order.
func ChargesIn(category Category) []ChargeName {
	out := make([]ChargeName, 0, 7)
	for _, name := range WizardCharges {
		if name.Category() == category {
			out = append(out, name)
		}
	}
	return out
}

// ChargeLineItem is one charge as edited in the wizard.
type ChargeLineItem struct {
	Amount    Amount  `json:"amount"`
	CheckDate *string `json:"check_date"`
	Voucher   *string `json:"voucher"`
	Payee     *string `json:"payee"`
}

// Charges maps charge names to line items. Missing keys read as empty items.
type Charges map[ChargeName]ChargeLineItem

// Clone returns a deep copy.
func (c Charges) Clone() Charges {
	out := make(Charges, len(c))
	for name, item := range c {
		out[name] = ChargeLineItem{
			Amount:    item.Amount,
			CheckDate: cloneString(item.CheckDate),
			Voucher:   cloneString(item.Voucher),
			Payee:     cloneString(item.Payee),
		}
	}
	return out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

// NullableString trims v and maps empty strings to nil.
func NullableString(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// StringValue dereferences v, "" when nil.
func StringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
