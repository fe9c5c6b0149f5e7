package calc

import (
	"github.com/smallbiznis/freightdesk/internal/payables/domain"
)

// Aggregate returns total_expenses: the sum of the 13 wizard charge amounts.
// Missing and Empty amounts contribute 0.
func Aggregate(charges domain.Charges) float64 {
	return sum(domain.WizardCharges, charges)
}

// AggregateLedger sums the ledger charge set, which also carries DENR.
func AggregateLedger(charges domain.Charges) float64 {
	return sum(domain.LedgerCharges, charges)
}

// Subtotals returns the per-category sums of the wizard charges.
func Subtotals(charges domain.Charges) map[domain.Category]float64 {
	out := make(map[domain.Category]float64, len(domain.Categories))
	for _, category := range domain.Categories {
		out[category] = sum(domain.ChargesIn(category), charges)
	}
	return out
}

func sum(keys []domain.ChargeName, charges domain.Charges) float64 {
	var total float64
	for _, name := range keys {
		total += charges[name].Amount.Float()
	}
	return total
}
