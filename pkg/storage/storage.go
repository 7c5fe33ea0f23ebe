// Package storage keeps rendered certificates and uploaded templates.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// FolderCertificates is the prefix for rendered certificate PDFs.
	FolderCertificates = "certificates"
	// FolderTemplates is the prefix for uploaded certificate templates.
	FolderTemplates = "uploads/certificate-templates"
	// MaxTemplateSize is the largest accepted template upload (10MB).
	MaxTemplateSize = 10 * 1024 * 1024
	// ContentTypePDF is the MIME type of every stored document.
	ContentTypePDF = "application/pdf"
)

// ErrNotExist is returned by Read when the key has no object.
var ErrNotExist = errors.New("storage: object does not exist")

// FileStore saves, reads and deletes objects by key.
type FileStore interface {
	Save(ctx context.Context, key, contentType string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// CertificateKey returns the key of a rendered certificate: certificates/cert-{number}.pdf.
func CertificateKey(certificateNumber string) string {
	return path.Join(FolderCertificates, "cert-"+certificateNumber+".pdf")
}

// TemplateKey returns a fresh key for an event's template upload.
func TemplateKey(eventID uuid.UUID) string {
	return path.Join(FolderTemplates, fmt.Sprintf("event-%s-%s.pdf", eventID, uuid.New()))
}

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return strings.HasPrefix(string(data[:min(len(data), 5)]), "%PDF-")
}

// cleanKey rejects keys that would escape the storage root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("storage: empty key")
	}
	return k, nil
}

// Open returns the FileStore for driver: "s3" uses s3cfg, anything else the
// local directory root.
func Open(ctx context.Context, driver, root string, s3cfg S3Config, logger *zap.Logger) (FileStore, error) {
	if driver == "s3" {
		return NewS3(ctx, s3cfg, logger)
	}
	return NewLocal(root)
}
