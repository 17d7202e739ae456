package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders tables into a landscape PDF document. Week grids are
// wide, so landscape is the default orientation.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with a title line and the table body. The
// first column is treated as a row label and gets a narrower width.
func (e *PDFExporter) Render(data Table, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 9, title, "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	usable := 277.0
	labelWidth := 22.0
	colWidth := usable / float64(len(data.Headers))
	if len(data.Headers) > 1 {
		colWidth = (usable - labelWidth) / float64(len(data.Headers)-1)
	}
	width := func(i int) float64 {
		if i == 0 && len(data.Headers) > 1 {
			return labelWidth
		}
		return colWidth
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(235, 235, 235)
	for i, header := range data.Headers {
		pdf.CellFormat(width(i), 8, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			align := ""
			if i == 0 {
				align = "C"
			}
			pdf.CellFormat(width(i), 7, row[header], "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
