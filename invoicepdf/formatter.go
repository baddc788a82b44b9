// Package invoicepdf renders invoice statements as PDF documents. Register a
// Formatter with the engine to serve the "pdf" format.
package invoicepdf

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/Nityam-7/TELSTAR/invoice"
	"github.com/Nityam-7/TELSTAR/plugin"
)

const (
	// FormatPDF is the format name the formatter registers under.
	FormatPDF = "pdf"
	// ContentTypePDF is the MIME type of rendered documents.
	ContentTypePDF = "application/pdf"
)

var _ plugin.InvoiceFormatter = (*Formatter)(nil)

var (
	colorPrimary   = [3]int{30, 58, 95}
	colorTextDark  = [3]int{44, 62, 80}
	colorTextMuted = [3]int{127, 140, 141}
	colorPaid      = [3]int{46, 204, 113}
	colorPending   = [3]int{241, 196, 15}
	colorTableAlt  = [3]int{241, 245, 249}
)

// Formatter is a plugin.InvoiceFormatter producing A4 PDF statements.
type Formatter struct {
	issuer string
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithIssuer sets the company name printed in the header.
func WithIssuer(name string) Option {
	return func(f *Formatter) { f.issuer = name }
}

// New creates a PDF formatter.
func New(opts ...Option) *Formatter {
	f := &Formatter{issuer: "TELSTAR"}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements plugin.Plugin.
func (f *Formatter) Name() string { return "invoice-pdf" }

// Format implements plugin.InvoiceFormatter.
func (f *Formatter) Format() string { return FormatPDF }

// ContentType implements plugin.InvoiceFormatter.
func (f *Formatter) ContentType() string { return ContentTypePDF }

// Render implements plugin.InvoiceFormatter.
func (f *Formatter) Render(_ context.Context, st *invoice.Statement, w io.Writer) error {
	if st == nil || st.Invoice == nil {
		return fmt.Errorf("invoicepdf: empty statement")
	}
	inv := st.Invoice

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetTitle(fmt.Sprintf("Invoice %d", inv.Number), true)
	pdf.SetCreator(f.issuer, true)
	pdf.AddPage()

	pageWidth, _ := pdf.GetPageSize()
	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(20)
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 10, f.issuer, "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 6, fmt.Sprintf("Invoice #%d", inv.Number), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, inv.ID.String(), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	f.writeParty(pdf, st)
	pdf.Ln(4)
	f.writeLines(pdf, st)
	pdf.Ln(6)
	f.writeStatus(pdf, inv)

	if pdf.Err() {
		return fmt.Errorf("invoicepdf: %w", pdf.Error())
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("invoicepdf: output: %w", err)
	}
	return nil
}

// writeParty prints the customer block. Names may be UTF-8; core fonts are
// cp1252, so text goes through the translator.
func (f *Formatter) writeParty(pdf *fpdf.Fpdf, st *invoice.Statement) {
	inv := st.Invoice
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	rows := [][2]string{
		{"Billed to", st.CustomerName},
		{"Email", st.CustomerEmail},
		{"Plan", fmt.Sprintf("%s (%s)", st.PlanName, inv.PlanType)},
		{"Period", formatDate(inv.PeriodStart) + " - " + formatDate(inv.PeriodEnd)},
		{"Issued", formatDate(inv.IssuedAt)},
	}

	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	for _, r := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(35, 6, r[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(r[1]), "", 1, "L", false, 0, "")
	}
}

func (f *Formatter) writeLines(pdf *fpdf.Fpdf, st *invoice.Statement) {
	inv := st.Invoice
	widths := []float64{70, 30, 35, 35}

	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 10)
	for i, h := range []string{"Description", "Units", "Rate", "Amount"} {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 8, h, "", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(widths[0], 8, st.PlanName+" usage", "", 0, "L", true, 0, "")
	pdf.CellFormat(widths[1], 8, inv.Units.String(), "", 0, "R", true, 0, "")
	pdf.CellFormat(widths[2], 8, inv.RatePerUnit.FormatMajor(), "", 0, "R", true, 0, "")
	pdf.CellFormat(widths[3], 8, inv.Amount.FormatMajor(), "", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(widths[0]+widths[1]+widths[2], 9, "Total ("+inv.Amount.Currency+")", "T", 0, "R", false, 0, "")
	pdf.CellFormat(widths[3], 9, inv.Amount.FormatMajor(), "T", 1, "R", false, 0, "")
}

func (f *Formatter) writeStatus(pdf *fpdf.Fpdf, inv *invoice.Invoice) {
	color, label := colorPending, "PENDING"
	if inv.IsPaid() {
		color, label = colorPaid, "PAID"
		if inv.PaidAt != nil {
			label += " " + formatDate(*inv.PaidAt)
		}
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(color[0], color[1], color[2])
	pdf.CellFormat(0, 8, label, "", 1, "L", false, 0, "")
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
