package format

import (
	"testing"
	"time"

	"github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReference(t *testing.T) {
	createdAt := time.Date(2026, 3, 7, 23, 30, 0, 0, time.UTC)

	ref, err := Reference(DefaultReferenceTemplate, createdAt, 42)
	require.NoError(t, err)
	assert.Equal(t, "AP-20260307-000042", ref)

	ref, err = Reference("AP/{YY}/{SEQ}", createdAt, 7)
	require.NoError(t, err)
	assert.Equal(t, "AP/26/7", ref)
}

func TestReferenceUsesUTC(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)
	createdAt := time.Date(2026, 3, 8, 2, 0, 0, 0, manila)

	ref, err := Reference(DefaultReferenceTemplate, createdAt, 1)
	require.NoError(t, err)
	assert.Equal(t, "AP-20260307-000001", ref)
}

func TestReferenceRejectsBadInput(t *testing.T) {
	_, err := Reference("", time.Now(), 1)
	assert.Error(t, err)

	_, err = Reference(DefaultReferenceTemplate, time.Now(), 0)
	assert.Error(t, err)

	_, err = Reference("AP-{BRANCH}-{SEQ4}", time.Now(), 1)
	assert.Error(t, err)

	assert.Error(t, ValidateTemplate("AP-{SEQX}"))
	assert.NoError(t, ValidateTemplate(DefaultReferenceTemplate))
}

func TestMoney(t *testing.T) {
	cases := []struct {
		value float64
		want  string
	}{
		{0, "PHP 0.00"},
		{1232, "PHP 1,232.00"},
		{1120.005, "PHP 1,120.01"},
		{999.994, "PHP 999.99"},
		{1234567.5, "PHP 1,234,567.50"},
		{100, "PHP 100.00"},
		{-1234.5, "PHP -1,234.50"},
		{-0.5, "PHP -0.50"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Money(tc.value, ""), "value %v", tc.value)
	}
	assert.Equal(t, "USD 12.30", Money(12.3, " usd "))
}

func TestAmountPlaceholder(t *testing.T) {
	assert.Equal(t, Placeholder, Amount(domain.Empty(), "PHP"))
	assert.Equal(t, "PHP 1,000.00", Amount(domain.AmountOf(1000), "PHP"))
}

func TestPercentAndText(t *testing.T) {
	assert.Equal(t, "12%", Percent(12))
	assert.Equal(t, "7.5%", Percent(7.5))
	assert.Equal(t, "0%", Percent(0))

	blank := "  "
	name := "Oceanic Lines"
	assert.Equal(t, Placeholder, Text(nil))
	assert.Equal(t, Placeholder, Text(&blank))
	assert.Equal(t, name, Text(&name))
}
