package review

import (
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFRenderer struct{}

func (PDFRenderer) ContentType() string { return "application/pdf" }

func (PDFRenderer) Extension() string { return FormatPDF }

func (PDFRenderer) Render(s Summary) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Accounts Payable Review", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(18,
		col.New(6).Add(
			text.New("Reference: "+s.Reference, props.Text{Top: 0}),
			text.New("Booking no.: "+s.BookingNo, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Shipping line: "+s.ShippingLine, props.Text{Top: 0}),
			text.New("Trucker: "+s.Trucker, props.Text{Top: 5}),
		),
	)

	for _, section := range s.Sections {
		m.AddRow(10,
			text.NewCol(12, section.Title, props.Text{Size: 12, Style: fontstyle.Bold, Top: 3}),
		)
		m.AddRow(7,
			text.NewCol(4, "Charge", props.Text{Style: fontstyle.Bold, Size: 8}),
			text.NewCol(3, "Payee", props.Text{Style: fontstyle.Bold, Size: 8}),
			text.NewCol(2, "Check date", props.Text{Style: fontstyle.Bold, Size: 8}),
			text.NewCol(1, "Voucher", props.Text{Style: fontstyle.Bold, Size: 8}),
			text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 8, Align: align.Right}),
		)
		for _, line := range section.Lines {
			m.AddRow(6,
				text.NewCol(4, line.Label, props.Text{Size: 8}),
				text.NewCol(3, line.Payee, props.Text{Size: 8}),
				text.NewCol(2, line.CheckDate, props.Text{Size: 8}),
				text.NewCol(1, line.Voucher, props.Text{Size: 8}),
				text.NewCol(2, line.AmountText, props.Text{Size: 8, Align: align.Right}),
			)
		}
		m.AddRow(7,
			col.New(8),
			text.NewCol(2, "Subtotal", props.Text{Size: 8, Style: fontstyle.Bold}),
			text.NewCol(2, section.SubtotalText, props.Text{Size: 8, Style: fontstyle.Bold, Align: align.Right}),
		)
	}

	m.AddRow(6, col.New(12))
	for _, row := range s.Totals {
		style := fontstyle.Normal
		if row.Key == "gross_income" {
			style = fontstyle.Bold
		}
		m.AddRow(7,
			col.New(6),
			text.NewCol(3, row.Label, props.Text{Size: 9, Style: style}),
			text.NewCol(3, row.Text, props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
