package review

import (
	"bytes"
	"html/template"
)

const reviewHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>AP Review {{.Reference}}</title>
  <style>
    :root {
      --font: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      padding: 40px;
      font-family: var(--font);
      color: #1a1f36;
      background: #f7f9fc;
    }
    .card {
      background: #ffffff;
      max-width: 860px;
      margin: 0 auto;
      padding: 48px;
      box-shadow: 0 2px 5px rgba(0,0,0,0.04);
      border-radius: 4px;
    }
    h1 { margin: 0 0 24px; font-size: 24px; }
    h2 { margin: 32px 0 8px; font-size: 16px; }
    .meta-grid { display: flex; justify-content: space-between; margin-bottom: 16px; }
    .label {
      font-size: 11px;
      text-transform: uppercase;
      color: #8792a2;
      margin-bottom: 6px;
      font-weight: 600;
    }
    .value { font-size: 14px; }
    table { width: 100%; border-collapse: collapse; }
    th {
      text-align: left;
      text-transform: uppercase;
      font-size: 11px;
      color: #8792a2;
      border-bottom: 1px solid #e3e8ee;
      padding: 8px 0;
    }
    td { padding: 10px 0; border-bottom: 1px solid #e3e8ee; font-size: 14px; }
    .td-right { text-align: right; }
    .subtotal td { font-weight: 600; border-bottom: none; }
    .totals { display: flex; flex-direction: column; align-items: flex-end; margin-top: 32px; }
    .total-row { display: flex; justify-content: space-between; width: 320px; padding: 6px 0; font-size: 14px; }
    .total-label { color: #697386; }
    .total-final { border-top: 1px solid #e3e8ee; margin-top: 8px; padding-top: 8px; font-weight: 700; }
  </style>
</head>
<body>
  <div class="card">
    <h1>Accounts Payable Review</h1>
    <div class="meta-grid">
      <div><div class="label">Reference</div><div class="value">{{.Reference}}</div></div>
      <div><div class="label">Booking no.</div><div class="value">{{.BookingNo}}</div></div>
      <div><div class="label">Shipping line</div><div class="value">{{.ShippingLine}}</div></div>
      <div><div class="label">Trucker</div><div class="value">{{.Trucker}}</div></div>
    </div>

    {{range .Sections}}
    <h2>{{.Title}}</h2>
    <table>
      <thead>
        <tr>
          <th style="width: 28%;">Charge</th>
          <th>Payee</th>
          <th>Check date</th>
          <th>Voucher</th>
          <th class="td-right">Amount</th>
        </tr>
      </thead>
      <tbody>
        {{range .Lines}}
        <tr>
          <td>{{.Label}}</td>
          <td>{{.Payee}}</td>
          <td>{{.CheckDate}}</td>
          <td>{{.Voucher}}</td>
          <td class="td-right">{{.AmountText}}</td>
        </tr>
        {{end}}
        <tr class="subtotal">
          <td colspan="4">Subtotal</td>
          <td class="td-right">{{.SubtotalText}}</td>
        </tr>
      </tbody>
    </table>
    {{end}}

    <div class="totals">
      {{range $i, $row := .Totals}}
      <div class="total-row{{if eq $row.Key "gross_income"}} total-final{{end}}">
        <span class="total-label">{{$row.Label}}</span>
        <span>{{$row.Text}}</span>
      </div>
      {{end}}
    </div>
  </div>
</body>
</html>
`

type HTMLRenderer struct {
	tpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		tpl: template.Must(template.New("review").Parse(reviewHTMLTemplate)),
	}
}

func (r *HTMLRenderer) Render(s Summary) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }

func (r *HTMLRenderer) Extension() string { return FormatHTML }
