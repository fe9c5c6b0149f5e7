package format

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/freightdesk/internal/payables/domain"
)

const DefaultCurrency = "PHP"

// Placeholder is rendered for Empty amounts and missing text.
const Placeholder = "-"

// Money renders v rounded to 2 places with thousands separators, prefixed by
// the currency code, e.g. "PHP 1,232.00".
func Money(v float64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return currency + " " + Number(v)
}

// Amount renders a canonical amount, using the placeholder for Empty.
func Amount(a domain.Amount, currency string) string {
	if a.IsEmpty() {
		return Placeholder
	}
	return Money(a.Float(), currency)
}

// Number renders v with 2 decimals and thousands separators.
func Number(v float64) string {
	fixed := decimal.NewFromFloat(v).Round(2).StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + fixed
	}
	return sign + humanize.Comma(n) + "." + frac
}

// Percent renders a rate without trailing zeros, e.g. "12%" or "7.5%".
func Percent(v float64) string {
	return decimal.NewFromFloat(v).Round(4).String() + "%"
}

// Text dereferences an optional value, using the placeholder for nil.
func Text(v *string) string {
	if s := domain.StringValue(domain.NullableString(v)); s != "" {
		return s
	}
	return Placeholder
}
