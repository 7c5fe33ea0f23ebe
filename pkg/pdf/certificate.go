// Package pdf renders certificates of attendance.
package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

// Renderer draws an A4 landscape certificate.
type Renderer struct {
	issuer string
}

// NewRenderer returns a renderer that signs certificates with issuer.
func NewRenderer(issuer string) *Renderer {
	if issuer == "" {
		issuer = "EventFlow"
	}
	return &Renderer{issuer: issuer}
}

// Render returns the PDF bytes of a certificate for one attendee.
func (r *Renderer) Render(attendeeName, eventTitle string, eventDate time.Time, certificateNumber string) ([]byte, error) {
	doc := fpdf.New("L", "mm", "A4", "")
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")
	w, h := doc.GetPageSize()

	doc.SetFillColor(243, 244, 246)
	doc.Rect(0, 0, w, h, "F")
	doc.SetDrawColor(37, 99, 235)
	doc.SetLineWidth(1.5)
	doc.Rect(10, 10, w-20, h-20, "D")

	center := func(y float64, style string, size float64, text string) {
		doc.SetFont("Helvetica", style, size)
		doc.SetXY(20, y)
		doc.CellFormat(w-40, size/2, tr(text), "", 0, "C", false, 0, "")
	}

	doc.SetTextColor(30, 64, 175)
	center(30, "B", 32, "Certificate of Attendance")
	doc.SetDrawColor(59, 130, 246)
	doc.SetLineWidth(0.6)
	doc.Line(40, 52, w-40, 52)

	doc.SetTextColor(0, 0, 0)
	center(65, "I", 18, "This certifies that")
	doc.SetTextColor(30, 64, 175)
	center(82, "B", 34, attendeeName)
	doc.SetTextColor(0, 0, 0)
	center(108, "I", 18, "has attended the event")
	center(122, "B", 26, eventTitle)
	center(142, "", 16, "on "+eventDate.Format("January 02, 2006"))

	doc.SetFont("Helvetica", "", 10)
	doc.SetTextColor(75, 85, 99)
	doc.SetXY(25, h-35)
	doc.CellFormat(120, 6, tr("Certificate No: "+certificateNumber), "", 0, "L", false, 0, "")
	doc.SetFont("Helvetica", "B", 14)
	doc.SetTextColor(59, 130, 246)
	doc.SetXY(w-145, h-35)
	doc.CellFormat(120, 6, tr(r.issuer), "", 0, "R", false, 0, "")

	doc.SetTextColor(156, 163, 175)
	center(h-24, "", 9, "This certificate is issued by "+r.issuer+".")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
