package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions written by the services.
const (
	AuditCheckIn             = "check_in"
	AuditCheckOut            = "check_out"
	AuditToggleCheckIn       = "toggle_check_in"
	AuditRegister            = "register"
	AuditUnregister          = "unregister"
	AuditCertificateGenerate = "certificate_generate"
	AuditCertificateApprove  = "certificate_approve"
	AuditCertificateRevoke   = "certificate_revoke"
	AuditCertificateSend     = "certificate_send"
	AuditTemplateUpload      = "certificate_template_upload"
	AuditTemplateDelete      = "certificate_template_delete"
)

// AuditLog is an append-only record of a system action.
type AuditLog struct {
	ID          uuid.UUID  `json:"id"`
	Action      string     `json:"action"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	UserEmail   string     `json:"user_email,omitempty"`
	UserRole    string     `json:"user_role,omitempty"`
	Description string     `json:"description,omitempty"`
	IPAddress   string     `json:"ip_address,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}
