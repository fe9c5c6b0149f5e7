package review

import (
	"errors"
	"strings"

	"github.com/gosimple/slug"
)

var ErrUnsupportedFormat = errors.New("unsupported_format")

const (
	FormatJSON = "json"
	FormatHTML = "html"
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// Renderer turns a review summary into a downloadable document.
type Renderer interface {
	Render(s Summary) ([]byte, error)
	ContentType() string
	Extension() string
}

// RendererFor returns the document renderer of an export format.
func RendererFor(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatHTML:
		return NewHTMLRenderer(), nil
	case FormatPDF:
		return PDFRenderer{}, nil
	case FormatXLSX:
		return XLSXRenderer{}, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// Filename builds a download name such as "ap-review-ap-20260110-000001-bk-7781.pdf".
func Filename(s Summary, r Renderer) string {
	base := slug.Make(strings.Join([]string{"ap review", s.Reference, s.BookingNo}, " "))
	if base == "" {
		base = "ap-review"
	}
	return base + "." + r.Extension()
}
