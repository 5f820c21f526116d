package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Section is one titled block of rich text in a rendered document.
type Section struct {
	Heading    string
	BodyHTML   string
	Signatures []string
	ReadOnly   bool
}

// Document is the input for PDF rendering.
type Document struct {
	Title    string
	Subtitle string
	Sections []Section
}

// PDFExporter renders staged documents into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

var blockBreaks = strings.NewReplacer(
	"</p>", "<br>",
	"</div>", "<br>",
	"</li>", "<br>",
	"<br/>", "<br>",
	"<br />", "<br>",
	"&nbsp;", " ",
)

// Render creates a PDF with one section per stage, each followed by its signers.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("pdf requires at least one section")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.MultiCell(0, 8, tr(strings.ToUpper(doc.Title)), "", "C", false)
	}
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 6, tr(doc.Subtitle), "", "C", false)
	}
	pdf.Ln(4)

	html := pdf.HTMLBasicNew()
	for i, section := range doc.Sections {
		if i > 0 {
			pdf.Ln(6)
		}
		pdf.SetFont("Arial", "B", 12)
		heading := section.Heading
		if heading == "" {
			heading = fmt.Sprintf("Etapa %d", i+1)
		}
		pdf.CellFormat(0, 8, tr(heading), "B", 1, "L", false, 0, "")
		pdf.Ln(2)

		pdf.SetFont("Arial", "", 10)
		html.Write(5, tr(blockBreaks.Replace(section.BodyHTML)))
		pdf.Ln(8)

		for _, signer := range section.Signatures {
			pdf.SetFont("Arial", "I", 9)
			pdf.CellFormat(0, 5, tr("____________________________"), "", 1, "C", false, 0, "")
			pdf.CellFormat(0, 5, tr(signer), "", 1, "C", false, 0, "")
			pdf.Ln(2)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
