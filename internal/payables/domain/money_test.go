package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	s := func(v string) *string { return &v }

	cases := []struct {
		name  string
		raw   any
		empty bool
		want  float64
	}{
		{name: "nil", raw: nil, empty: true},
		{name: "blank", raw: "  ", empty: true},
		{name: "zero string", raw: "0", empty: true},
		{name: "zero", raw: 0.0, empty: true},
		{name: "negative", raw: "-5", empty: true},
		{name: "garbage", raw: "abc", empty: true},
		{name: "nan", raw: math.NaN(), empty: true},
		{name: "nil pointer", raw: (*string)(nil), empty: true},
		{name: "string", raw: "12.5", want: 12.5},
		{name: "thousands", raw: "1,234.50", want: 1234.5},
		{name: "int", raw: 7, want: 7},
		{name: "json number", raw: json.Number("3.25"), want: 3.25},
		{name: "decimal", raw: decimal.RequireFromString("99.99"), want: 99.99},
		{name: "string pointer", raw: s("42"), want: 42},
		{name: "full precision", raw: "0.125", want: 0.125},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.raw)
			assert.Equal(t, tc.empty, got.IsEmpty())
			if !tc.empty {
				assert.Equal(t, tc.want, got.Float())
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, raw := range []any{"12.5", "", "-1", 3.0} {
		once := Normalize(raw)
		assert.Equal(t, once, Normalize(once))
	}
}

func TestParseAmountErrors(t *testing.T) {
	_, err := ParseAmount("-1")
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = ParseAmount("1.2.3")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseAmount(true)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	got, err := ParseAmount("")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestAmountFlushAndJSON(t *testing.T) {
	assert.Equal(t, 0.0, Empty().Flush())
	assert.Equal(t, 10.13, AmountOf(10.125).Flush())

	out, err := json.Marshal(struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}{A: Empty(), B: AmountOf(1.5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":null,"b":1.5}`, string(out))

	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"2,500"`), &a))
	assert.Equal(t, 2500.0, a.Float())
	require.NoError(t, json.Unmarshal([]byte(`null`), &a))
	assert.True(t, a.IsEmpty())
	assert.Error(t, json.Unmarshal([]byte(`-3`), &a))
}

func TestFlushPercentKeepsFourPlaces(t *testing.T) {
	assert.Equal(t, 0.0, Empty().FlushPercent())
	assert.Equal(t, 12.345, AmountOf(12.345).FlushPercent())
	assert.Equal(t, 7.1235, AmountOf(7.12345).FlushPercent())
	assert.Equal(t, 12.35, AmountOf(12.345).Flush())
}

func TestRoundCurrency(t *testing.T) {
	assert.Equal(t, 1.01, RoundCurrency(1.005))
	assert.Equal(t, 2.5, RoundCurrency(2.499999))
	assert.Equal(t, 0.0, RoundCurrency(0))
}
