package certificates

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NumberLength is the fixed length of a certificate number.
const NumberLength = 20

// NewNumber mints CERT-{yyyymmdd}-{hex}, truncated to NumberLength characters.
// The hex part comes from a random UUID. The unique index rejects collisions
// and the service retries with a new number.
func NewNumber(now time.Time) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	n := "CERT-" + now.Format("20060102") + "-" + hex
	return n[:NumberLength]
}
