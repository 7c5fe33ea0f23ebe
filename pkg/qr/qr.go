// Package qr renders the scannable check-in links printed on tickets.
package qr

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

// Encoder produces PNG QR codes.
type Encoder struct {
	size  int
	level qrcode.RecoveryLevel
}

// NewEncoder returns an encoder producing size×size images; size <= 0 uses DefaultSize.
func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Encoder{size: size, level: qrcode.Medium}
}

// Encode returns the PNG bytes of a QR code holding content.
func (e *Encoder) Encode(content string) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr: empty content")
	}
	png, err := qrcode.Encode(content, e.level, e.size)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	return png, nil
}

// ScanURL is the staff scan link for a registration: {base}/staff/scan/{id}.
func ScanURL(baseURL string, registrationID uuid.UUID) string {
	return strings.TrimRight(baseURL, "/") + "/staff/scan/" + url.PathEscape(registrationID.String())
}
