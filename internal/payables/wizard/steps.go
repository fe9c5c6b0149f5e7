package wizard

import "github.com/smallbiznis/freightdesk/internal/payables/domain"

// Step is a wizard page, 1 through 5.
type Step int

const (
	StepFreight Step = iota + 1
	StepTrucking
	StepPortCharges
	StepMiscellaneous
	StepReview
)

const (
	FirstStep = StepFreight
	LastStep  = StepReview
)

// Steps lists every step in navigation order.
var Steps = []Step{StepFreight, StepTrucking, StepPortCharges, StepMiscellaneous, StepReview}

var stepRequired = map[Step][]string{
	StepFreight: {
		domain.FieldKey(domain.ChargeFreight, domain.AttrAmount),
		domain.FieldKey(domain.ChargeFreight, domain.AttrVoucher),
	},
	StepTrucking: {
		domain.FieldKey(domain.ChargeTruckingOrigin, domain.AttrAmount),
		domain.FieldKey(domain.ChargeTruckingDest, domain.AttrAmount),
	},
	StepPortCharges: {
		domain.FieldKey(domain.ChargeCrainage, domain.AttrAmount),
		domain.FieldKey(domain.ChargeArrastreOrigin, domain.AttrAmount),
		domain.FieldKey(domain.ChargeArrastreDest, domain.AttrAmount),
		domain.FieldKey(domain.ChargeWharfageOrigin, domain.AttrAmount),
		domain.FieldKey(domain.ChargeWharfageDest, domain.AttrAmount),
		domain.FieldKey(domain.ChargeLaborOrigin, domain.AttrAmount),
		domain.FieldKey(domain.ChargeLaborDest, domain.AttrAmount),
	},
	StepMiscellaneous: {
		domain.FieldKey(domain.ChargeRebates, domain.AttrAmount),
		domain.FieldKey(domain.ChargeStorage, domain.AttrAmount),
		domain.FieldKey(domain.ChargeFacilitation, domain.AttrAmount),
	},
}

func (s Step) Valid() bool { return s >= FirstStep && s <= LastStep }

func (s Step) Title() string {
	switch s {
	case StepFreight:
		return "Freight"
	case StepTrucking:
		return "Trucking"
	case StepPortCharges:
		return "Port Charges"
	case StepMiscellaneous:
		return "Miscellaneous"
	case StepReview:
		return "Review"
	default:
		return ""
	}
}

// RequiredFields returns the field keys validated before leaving the step.
func (s Step) RequiredFields() []string {
	return append([]string(nil), stepRequired[s]...)
}

// StepOf returns the step a field key is edited on. Record-level fields live
// on the review step.
func StepOf(key string) Step {
	charge, _, ok := domain.ParseFieldKey(key)
	if !ok {
		return StepReview
	}
	switch charge.Category() {
	case domain.CategoryFreight:
		return StepFreight
	case domain.CategoryTrucking:
		return StepTrucking
	case domain.CategoryPortCharges:
		return StepPortCharges
	default:
		return StepMiscellaneous
	}
}
