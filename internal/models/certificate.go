package models

import (
	"time"

	"github.com/google/uuid"
)

// Certificate is the proof-of-attendance record for one (event, user) pair.
type Certificate struct {
	ID                uuid.UUID  `json:"id"`
	EventID           uuid.UUID  `json:"event_id"`
	UserID            *uuid.UUID `json:"user_id,omitempty"`
	CertificateNumber string     `json:"certificate_number"`
	IssuedAt          time.Time  `json:"issued_at"`
	FilePath          *string    `json:"file_path,omitempty"`
	IsTemplateBased   bool       `json:"is_template_based"`
	IsApproved        bool       `json:"is_approved"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	SentToEmail       *string    `json:"sent_to_email,omitempty"`
}

// CertificateStatus is the lifecycle stage of a certificate row.
type CertificateStatus string

const (
	CertificatePending  CertificateStatus = "pending"
	CertificateApproved CertificateStatus = "approved"
	CertificateSent     CertificateStatus = "sent"
)

// Status derives the lifecycle stage from the row's fields.
func (c *Certificate) Status() CertificateStatus {
	switch {
	case c.SentAt != nil:
		return CertificateSent
	case c.IsApproved:
		return CertificateApproved
	default:
		return CertificatePending
	}
}

// CertificateDetail is a certificate joined with the attendee and event it belongs to.
type CertificateDetail struct {
	Certificate
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	EventTitle    string    `json:"event_title"`
	EventStartsAt time.Time `json:"event_start_date"`
}

// CertificateTemplate is the uploaded PDF used for manual sending (at most one per event).
type CertificateTemplate struct {
	ID         uuid.UUID  `json:"id"`
	EventID    uuid.UUID  `json:"event_id"`
	FileName   string     `json:"file_name"`
	FilePath   string     `json:"file_path"`
	UploadedAt time.Time  `json:"uploaded_at"`
	UploadedBy *uuid.UUID `json:"uploaded_by,omitempty"`
}
