// Package export renders product listings into downloadable artifacts and
// stores them where clients can fetch them.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/eshaffer321/marketplace-backend/internal/domain/catalog"
)

// Columns is the header row shared by every format.
var Columns = []string{"ID", "SKU", "Name", "Status", "Price", "Stock", "Category ID", "Tags", "Variants"}

// Renderer turns a product list into file bytes.
type Renderer interface {
	Render(products []*catalog.Product) ([]byte, error)
	ContentType() string
	Extension() string
}

// RendererFor returns the renderer for a format name (csv, xlsx, pdf).
func RendererFor(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "csv":
		return CSVRenderer{}, nil
	case "xlsx":
		return XLSXRenderer{}, nil
	case "pdf":
		return PDFRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func row(p *catalog.Product) []string {
	category := ""
	if p.CategoryID != nil {
		category = strconv.FormatInt(*p.CategoryID, 10)
	}
	return []string{
		strconv.FormatInt(p.ID, 10),
		p.SKU,
		p.Name,
		string(p.Status),
		p.Price.StringFixed(2),
		strconv.Itoa(p.Stock),
		category,
		strings.Join(p.Tags, ";"),
		strconv.Itoa(len(p.Variants)),
	}
}

// CSVRenderer writes RFC 4180 CSV.
type CSVRenderer struct{}

func (CSVRenderer) ContentType() string { return "text/csv" }
func (CSVRenderer) Extension() string   { return "csv" }

func (CSVRenderer) Render(products []*catalog.Product) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, p := range products {
		if err := w.Write(row(p)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// XLSXRenderer writes a single-sheet Excel workbook.
type XLSXRenderer struct{}

// SheetName is the worksheet holding exported products.
const SheetName = "Products"

func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (XLSXRenderer) Extension() string { return "xlsx" }

func (XLSXRenderer) Render(products []*catalog.Product) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}

	for i, col := range Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(SheetName, cell, col); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(SheetName, cell, cell, headerStyle); err != nil {
			return nil, err
		}
		colName, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(SheetName, colName, colName, 18)
	}

	for r, p := range products {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		values := row(p)
		cells := make([]interface{}, len(values))
		for i, v := range values {
			cells[i] = v
		}
		// Numeric columns stay numeric so spreadsheets can sum them
		cells[0] = p.ID
		cells[4] = p.Price.InexactFloat64()
		cells[5] = p.Stock
		if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDFRenderer writes a landscape A4 table.
type PDFRenderer struct{}

func (PDFRenderer) ContentType() string { return "application/pdf" }
func (PDFRenderer) Extension() string   { return "pdf" }

// column widths in mm, summing to the printable width of landscape A4
var pdfWidths = []float64{18, 32, 62, 22, 22, 18, 24, 52, 20}

func (PDFRenderer) Render(products []*catalog.Product) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Product export", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("Product export (%d items)", len(products))), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 6, "Generated "+time.Now().UTC().Format(time.RFC1123), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(68, 114, 196)
		pdf.SetTextColor(255, 255, 255)
		for i, col := range Columns {
			pdf.CellFormat(pdfWidths[i], 7, col, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(0, 0, 0)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, p := range products {
		if pdf.GetY()+6 > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		for i, v := range row(p) {
			align := "L"
			if i == 0 || i == 4 || i == 5 {
				align = "R"
			}
			pdf.CellFormat(pdfWidths[i], 6, truncate(tr(v), pdfWidths[i]), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// truncate keeps a cell on one line, assuming about 1.7mm per character at 8pt
func truncate(s string, width float64) string {
	limit := int(width / 1.7)
	if len(s) <= limit || limit < 4 {
		return s
	}
	return s[:limit-3] + "..."
}
