package calc

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/smallbiznis/freightdesk/internal/payables/domain"
)

var ErrGrossIncomeReadOnly = errors.New("gross_income_read_only")

// Mode tells whether gross income is typed by the user or derived.
type Mode string

const (
	ModeManual Mode = "MANUAL"
	ModeAuto   Mode = "AUTO"
)

// ExitPolicy decides what gross income becomes when the net revenue
// percentage is cleared and the field turns editable again.
type ExitPolicy string

const (
	// ExitDiscard resets gross income to Empty. This is the long-standing
	// behaviour of the AP form.
	ExitDiscard ExitPolicy = "discard"
	// ExitRestore brings back the manual value that AUTO mode overwrote.
	ExitRestore ExitPolicy = "restore"
)

// ParseExitPolicy maps configuration text to a policy, defaulting to discard.
func ParseExitPolicy(raw string) ExitPolicy {
	if ExitPolicy(strings.ToLower(strings.TrimSpace(raw))) == ExitRestore {
		return ExitRestore
	}
	return ExitDiscard
}

// GrossIncome is either Manual(value) or Auto(derived). The zero value is
// Manual(Empty).
type GrossIncome struct {
	mode    Mode
	manual  domain.Amount
	derived float64
	// shadow is the manual value overwritten when AUTO was entered.
	shadow domain.Amount
}

// Manual returns a user-typed gross income.
func Manual(v domain.Amount) GrossIncome {
	return GrossIncome{mode: ModeManual, manual: v}
}

// Auto returns a derived gross income.
func Auto(v float64) GrossIncome {
	return GrossIncome{mode: ModeAuto, derived: v}
}

func (g GrossIncome) Mode() Mode {
	if g.mode == ModeAuto {
		return ModeAuto
	}
	return ModeManual
}

// Editable reports whether the user may type the value.
func (g GrossIncome) Editable() bool { return g.Mode() == ModeManual }

// Value returns the numeric gross income, 0 when Empty.
func (g GrossIncome) Value() float64 {
	if g.Mode() == ModeAuto {
		return g.derived
	}
	return g.manual.Float()
}

// Amount returns the value in canonical form.
func (g GrossIncome) Amount() domain.Amount {
	if g.Mode() == ModeAuto {
		return domain.AmountOf(g.derived)
	}
	return g.manual
}

// SetManual records a typed value. It fails while the value is derived.
func (g GrossIncome) SetManual(v domain.Amount) (GrossIncome, error) {
	if g.Mode() == ModeAuto {
		return g, ErrGrossIncomeReadOnly
	}
	return Manual(v), nil
}

func (g GrossIncome) toAuto(v float64) GrossIncome {
	shadow := g.shadow
	if g.Mode() == ModeManual {
		shadow = g.manual
	}
	return GrossIncome{mode: ModeAuto, derived: v, shadow: shadow}
}

func (g GrossIncome) toManual(policy ExitPolicy) GrossIncome {
	if g.Mode() == ModeManual {
		return g
	}
	if policy == ExitRestore {
		return Manual(g.shadow)
	}
	return Manual(domain.Empty())
}

func (g GrossIncome) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mode     Mode          `json:"mode"`
		Value    domain.Amount `json:"value"`
		Editable bool          `json:"editable"`
	}{
		Mode:     g.Mode(),
		Value:    g.Amount(),
		Editable: g.Editable(),
	})
}

// Inputs are the values the derivation reads.
type Inputs struct {
	TotalExpenses        float64
	BIRPercentage        domain.Amount
	NetRevenuePercentage domain.Amount
	GrossIncome          GrossIncome
	Policy               ExitPolicy
}

// Figures are the derived AP totals. Values keep full float precision;
// rounding is left to formatting and persistence.
type Figures struct {
	TotalExpenses        float64     `json:"total_expenses"`
	BIRPercentage        float64     `json:"bir_percentage"`
	BIRAmount            float64     `json:"bir_amount"`
	TotalPayables        float64     `json:"total_payables"`
	NetRevenuePercentage float64     `json:"net_revenue_percentage"`
	NetRevenueAmount     float64     `json:"net_revenue_amount"`
	GrossIncome          float64     `json:"gross_income"`
	GrossIncomeEditable  bool        `json:"gross_income_editable"`
	Mode                 Mode        `json:"mode"`
	Gross                GrossIncome `json:"-"`
}

// Derive computes payables and gross income. It is total over its inputs and
// idempotent: feeding Figures.Gross back in with unchanged inputs reproduces
// the same figures.
func Derive(in Inputs) Figures {
	totalExpenses := nonNegative(in.TotalExpenses)
	birPercentage := in.BIRPercentage.Float()
	netRevenuePercentage := in.NetRevenuePercentage.Float()

	birAmount := totalExpenses * (birPercentage / 100)
	totalPayables := totalExpenses + birAmount

	out := Figures{
		TotalExpenses:        totalExpenses,
		BIRPercentage:        birPercentage,
		BIRAmount:            birAmount,
		TotalPayables:        totalPayables,
		NetRevenuePercentage: netRevenuePercentage,
	}

	if netRevenuePercentage > 0 {
		out.NetRevenueAmount = totalPayables * (netRevenuePercentage / 100)
		out.Gross = in.GrossIncome.toAuto(totalPayables + out.NetRevenueAmount)
	} else {
		out.Gross = in.GrossIncome.toManual(in.Policy)
	}

	out.Mode = out.Gross.Mode()
	out.GrossIncome = out.Gross.Value()
	out.GrossIncomeEditable = out.Gross.Editable()
	return out
}

// DeriveFields aggregates and derives straight from a field set, treating the
// stored gross income as the last manual value.
func DeriveFields(fields domain.FieldSet, policy ExitPolicy) Figures {
	return Derive(Inputs{
		TotalExpenses:        Aggregate(fields.Charges),
		BIRPercentage:        fields.BIRPercentage,
		NetRevenuePercentage: fields.NetRevenuePercentage,
		GrossIncome:          Manual(fields.GrossIncome),
		Policy:               policy,
	})
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
