package review

import (
	"github.com/smallbiznis/freightdesk/internal/payables/calc"
	"github.com/smallbiznis/freightdesk/internal/payables/domain"
	"github.com/smallbiznis/freightdesk/internal/payables/format"
)

// Input is everything the review sheet is built from.
type Input struct {
	Reference    string
	BookingNo    string
	ShippingLine *string
	Trucker      *string
	Fields       domain.FieldSet
	// Gross is the live gross income state of a wizard. When nil the stored
	// gross income is taken as the last manual value.
	Gross    *calc.GrossIncome
	Policy   calc.ExitPolicy
	Currency string
}

type Line struct {
	Charge     domain.ChargeName `json:"charge"`
	Label      string            `json:"label"`
	Payee      string            `json:"payee"`
	CheckDate  string            `json:"check_date"`
	Voucher    string            `json:"voucher"`
	Amount     domain.Amount     `json:"amount"`
	AmountText string            `json:"amount_text"`
}

type Section struct {
	Category     domain.Category `json:"category"`
	Title        string          `json:"title"`
	Lines        []Line          `json:"lines"`
	Subtotal     float64         `json:"subtotal"`
	SubtotalText string          `json:"subtotal_text"`
}

// TotalRow is one line of the figures block.
type TotalRow struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

type Summary struct {
	Reference    string       `json:"reference"`
	BookingNo    string       `json:"booking_no"`
	ShippingLine string       `json:"shipping_line"`
	Trucker      string       `json:"trucker"`
	Currency     string       `json:"currency"`
	Sections     []Section    `json:"sections"`
	Totals       []TotalRow   `json:"totals"`
	Figures      calc.Figures `json:"figures"`
}

// Project groups the 13 charges into the four review sections and attaches
// freshly derived figures. It never caches: every call re-derives.
func Project(in Input) Summary {
	currency := in.Currency
	if currency == "" {
		currency = format.DefaultCurrency
	}

	gross := calc.Manual(in.Fields.GrossIncome)
	if in.Gross != nil {
		gross = *in.Gross
	}
	figures := calc.Derive(calc.Inputs{
		TotalExpenses:        calc.Aggregate(in.Fields.Charges),
		BIRPercentage:        in.Fields.BIRPercentage,
		NetRevenuePercentage: in.Fields.NetRevenuePercentage,
		GrossIncome:          gross,
		Policy:               in.Policy,
	})
	subtotals := calc.Subtotals(in.Fields.Charges)

	sections := make([]Section, 0, len(domain.Categories))
	for _, category := range domain.Categories {
		charges := domain.ChargesIn(category)
		section := Section{
			Category:     category,
			Title:        category.Title(),
			Lines:        make([]Line, 0, len(charges)),
			Subtotal:     subtotals[category],
			SubtotalText: format.Money(subtotals[category], currency),
		}
		for _, name := range charges {
			item := in.Fields.Line(name)
			section.Lines = append(section.Lines, Line{
				Charge:     name,
				Label:      name.Label(),
				Payee:      format.Text(item.Payee),
				CheckDate:  format.Text(item.CheckDate),
				Voucher:    format.Text(item.Voucher),
				Amount:     item.Amount,
				AmountText: format.Amount(item.Amount, currency),
			})
		}
		sections = append(sections, section)
	}

	return Summary{
		Reference:    in.Reference,
		BookingNo:    in.BookingNo,
		ShippingLine: format.Text(in.ShippingLine),
		Trucker:      format.Text(in.Trucker),
		Currency:     currency,
		Sections:     sections,
		Totals:       totals(figures, currency),
		Figures:      figures,
	}
}

func totals(f calc.Figures, currency string) []TotalRow {
	grossLabel := "Gross Income"
	if f.Mode == calc.ModeAuto {
		grossLabel = "Gross Income (auto)"
	}
	return []TotalRow{
		{Key: "total_expenses", Label: "Total Expenses", Value: f.TotalExpenses, Text: format.Money(f.TotalExpenses, currency)},
		{Key: "bir_amount", Label: "BIR (" + format.Percent(f.BIRPercentage) + ")", Value: f.BIRAmount, Text: format.Money(f.BIRAmount, currency)},
		{Key: "total_payables", Label: "Total Payables", Value: f.TotalPayables, Text: format.Money(f.TotalPayables, currency)},
		{Key: "net_revenue_amount", Label: "Net Revenue (" + format.Percent(f.NetRevenuePercentage) + ")", Value: f.NetRevenueAmount, Text: format.Money(f.NetRevenueAmount, currency)},
		{Key: "gross_income", Label: grossLabel, Value: f.GrossIncome, Text: format.Money(f.GrossIncome, currency)},
	}
}
