package review

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "summary"
	linesSheet   = "lines"
)

type XLSXRenderer struct{}

func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (XLSXRenderer) Extension() string { return FormatXLSX }

// Render writes the figures to a summary sheet and every charge line to a
// lines sheet. Amounts are stored as numbers so the workbook stays summable.
func (XLSXRenderer) Render(s Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(linesSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Accounts Payable Review")
	_ = f.SetCellValue(summarySheet, "A3", "Reference")
	_ = f.SetCellValue(summarySheet, "B3", s.Reference)
	_ = f.SetCellValue(summarySheet, "A4", "Booking no.")
	_ = f.SetCellValue(summarySheet, "B4", s.BookingNo)
	_ = f.SetCellValue(summarySheet, "A5", "Shipping line")
	_ = f.SetCellValue(summarySheet, "B5", s.ShippingLine)
	_ = f.SetCellValue(summarySheet, "A6", "Trucker")
	_ = f.SetCellValue(summarySheet, "B6", s.Trucker)
	_ = f.SetCellValue(summarySheet, "A7", "Currency")
	_ = f.SetCellValue(summarySheet, "B7", s.Currency)

	row := 9
	for _, section := range s.Sections {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), section.Title)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), section.Subtotal)
		row++
	}
	row++
	for _, total := range s.Totals {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), total.Label)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), total.Value)
		row++
	}

	_ = f.SetCellValue(linesSheet, "A1", "Section")
	_ = f.SetCellValue(linesSheet, "B1", "Charge")
	_ = f.SetCellValue(linesSheet, "C1", "Payee")
	_ = f.SetCellValue(linesSheet, "D1", "Check date")
	_ = f.SetCellValue(linesSheet, "E1", "Voucher")
	_ = f.SetCellValue(linesSheet, "F1", "Amount")
	row = 2
	for _, section := range s.Sections {
		for _, line := range section.Lines {
			_ = f.SetCellValue(linesSheet, fmt.Sprintf("A%d", row), section.Title)
			_ = f.SetCellValue(linesSheet, fmt.Sprintf("B%d", row), line.Label)
			_ = f.SetCellValue(linesSheet, fmt.Sprintf("C%d", row), line.Payee)
			_ = f.SetCellValue(linesSheet, fmt.Sprintf("D%d", row), line.CheckDate)
			_ = f.SetCellValue(linesSheet, fmt.Sprintf("E%d", row), line.Voucher)
			if !line.Amount.IsEmpty() {
				_ = f.SetCellValue(linesSheet, fmt.Sprintf("F%d", row), line.Amount.Float())
			}
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
