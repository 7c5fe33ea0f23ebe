package pdf

import (
	"bytes"
	"testing"
	"time"
)

func TestRenderProducesPDF(t *testing.T) {
	out, err := NewRenderer("").Render("Zoë Ñúñez", "Go Meetup", time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC), "CERT-20260314-0a1b2c3")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output does not start with the PDF header")
	}
	if len(out) < 500 {
		t.Fatalf("suspiciously small PDF: %d bytes", len(out))
	}
}
