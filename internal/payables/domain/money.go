package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is the canonical form of a monetary or percentage input.
// The zero value is Empty, which is distinct from a parsed value.
type Amount struct {
	value float64
	set   bool
}

// Empty returns the placeholder amount.
func Empty() Amount { return Amount{} }

// AmountOf returns v as an Amount. Zero, negative and non-finite values
// collapse to Empty.
func AmountOf(v float64) Amount {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return Amount{}
	}
	return Amount{value: v, set: true}
}

// IsEmpty reports whether the amount holds no value.
func (a Amount) IsEmpty() bool { return !a.set }

// Float returns the numeric value, 0 when Empty.
func (a Amount) Float() float64 {
	if !a.set {
		return 0
	}
	return a.value
}

// Flush returns the value sent to the persistence boundary: Empty becomes 0
// and the value is rounded to 2 places.
func (a Amount) Flush() float64 {
	return RoundCurrency(a.Float())
}

// FlushPercent is Flush for rates: Empty becomes 0 and the value keeps the
// 4 places of the rate columns.
func (a Amount) FlushPercent() float64 {
	return RoundPercent(a.Float())
}

func (a Amount) String() string {
	if !a.set {
		return ""
	}
	return strconv.FormatFloat(a.value, 'f', -1, 64)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(a.value, 'f', -1, 64)), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}

	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Normalize maps a raw input to its canonical Amount. "", nil, 0 and "0" map
// to Empty; invalid or negative input is rejected to Empty as well.
func Normalize(raw any) Amount {
	amount, err := ParseAmount(raw)
	if err != nil {
		return Amount{}
	}
	return amount
}

// ParseAmount is the strict variant of Normalize used by the field input
// layer. It reports why an input was rejected.
func ParseAmount(raw any) (Amount, error) {
	switch v := raw.(type) {
	case nil:
		return Amount{}, nil
	case Amount:
		return v, nil
	case *Amount:
		if v == nil {
			return Amount{}, nil
		}
		return *v, nil
	case float64:
		return fromFloat(v)
	case *float64:
		if v == nil {
			return Amount{}, nil
		}
		return fromFloat(*v)
	case float32:
		return fromFloat(float64(v))
	case int:
		return fromFloat(float64(v))
	case int32:
		return fromFloat(float64(v))
	case int64:
		return fromFloat(float64(v))
	case json.Number:
		return parseAmountString(v.String())
	case decimal.Decimal:
		f, _ := v.Float64()
		return fromFloat(f)
	case string:
		return parseAmountString(v)
	case *string:
		if v == nil {
			return Amount{}, nil
		}
		return parseAmountString(*v)
	default:
		return Amount{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, raw)
	}
}

func parseAmountString(raw string) (Amount, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Amount{}, nil
	}
	// thousands separators come from formatted inputs
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "_", "")

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	return fromFloat(f)
}

func fromFloat(f float64) (Amount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Amount{}, ErrInvalidAmount
	}
	if f < 0 {
		return Amount{}, ErrNegativeAmount
	}
	return AmountOf(f), nil
}

// RoundCurrency rounds v to 2 decimal places, half away from zero.
// Rounding happens only at display and persistence boundaries.
func RoundCurrency(v float64) float64 {
	rounded, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return rounded
}

// RoundPercent rounds a rate to 4 decimal places, half away from zero.
func RoundPercent(v float64) float64 {
	rounded, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return rounded
}
