package calc

import (
	"math/rand"
	"testing"

	"github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/stretchr/testify/assert"
)

func chargesOf(amounts map[domain.ChargeName]float64) domain.Charges {
	out := make(domain.Charges, len(amounts))
	for name, v := range amounts {
		out[name] = domain.ChargeLineItem{Amount: domain.AmountOf(v)}
	}
	return out
}

func TestAggregateSumsAllWizardCharges(t *testing.T) {
	amounts := make(map[domain.ChargeName]float64, len(domain.WizardCharges))
	for i, name := range domain.WizardCharges {
		amounts[name] = float64(i + 1)
	}

	// 1 + 2 + ... + 13
	assert.Equal(t, 91.0, Aggregate(chargesOf(amounts)))
}

func TestAggregateTreatsMissingAndEmptyAsZero(t *testing.T) {
	charges := domain.Charges{
		domain.ChargeFreight:  {Amount: domain.AmountOf(1000)},
		domain.ChargeStorage:  {Amount: domain.Empty()},
		domain.ChargeCrainage: {Amount: domain.Normalize("0")},
	}

	assert.Equal(t, 1000.0, Aggregate(charges))
	assert.Equal(t, 0.0, Aggregate(nil))
}

func TestAggregateExcludesDENRFromWizardTotal(t *testing.T) {
	charges := chargesOf(map[domain.ChargeName]float64{
		domain.ChargeFreight: 500,
		domain.ChargeDENR:    250,
	})

	assert.Equal(t, 500.0, Aggregate(charges))
	assert.Equal(t, 750.0, AggregateLedger(charges))
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		amounts := make(map[domain.ChargeName]float64, len(domain.WizardCharges))
		for _, name := range domain.WizardCharges {
			// whole cents keep the comparison meaningful
			amounts[name] = float64(rng.Intn(10_000_000)) / 100
		}
		charges := chargesOf(amounts)
		expected := Aggregate(charges)

		order := append([]domain.ChargeName{}, domain.WizardCharges...)
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var shuffled float64
		for _, name := range order {
			shuffled += amounts[name]
		}
		assert.InDelta(t, expected, shuffled, 1e-6)
	}
}

func TestSubtotalsGroupByCategory(t *testing.T) {
	charges := chargesOf(map[domain.ChargeName]float64{
		domain.ChargeFreight:        1000,
		domain.ChargeTruckingOrigin: 200,
		domain.ChargeTruckingDest:   300,
		domain.ChargeArrastreOrigin: 40,
		domain.ChargeLaborDest:      60,
		domain.ChargeRebates:        5,
		domain.ChargeFacilitation:   15,
	})

	subtotals := Subtotals(charges)
	assert.Equal(t, 1000.0, subtotals[domain.CategoryFreight])
	assert.Equal(t, 500.0, subtotals[domain.CategoryTrucking])
	assert.Equal(t, 100.0, subtotals[domain.CategoryPortCharges])
	assert.Equal(t, 20.0, subtotals[domain.CategoryMiscellaneous])

	var total float64
	for _, v := range subtotals {
		total += v
	}
	assert.Equal(t, Aggregate(charges), total)
}
