package reports

import (
	"time"

	"github.com/google/uuid"

	"github.com/eventflow/backend/internal/attendance"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/pagination"
)

// RegistrationFilter narrows registration and attendance lists. CheckedIn
// matches anyone who has arrived, including those already checked out; State
// matches one attendance state exactly.
type RegistrationFilter struct {
	Search    string
	EventID   *uuid.UUID
	CheckedIn *bool
	State     *attendance.State
	pagination.Request
}

// statePredicates mirror attendance.StateOf in SQL.
var statePredicates = map[attendance.State]string{
	attendance.NotArrived: "r.checked_out_at IS NULL AND NOT (r.is_checked_in AND r.checked_in_at IS NOT NULL)",
	attendance.CheckedIn:  "r.checked_out_at IS NULL AND r.is_checked_in AND r.checked_in_at IS NOT NULL",
	attendance.CheckedOut: "r.checked_out_at IS NOT NULL",
}

// attendanceOrder lists not-yet-arrived registrations first.
const attendanceOrder = ` ORDER BY (r.checked_in_at IS NOT NULL) ASC, r.registered_at DESC, r.id DESC`

func (f RegistrationFilter) where() *pagination.Where {
	w := &pagination.Where{}
	w.Search(f.Search, "u.full_name", "u.email", "e.title", "r.ticket_type")
	if f.EventID != nil {
		w.Add("r.event_id = %s", *f.EventID)
	}
	if f.CheckedIn != nil {
		if *f.CheckedIn {
			w.Add("r.checked_in_at IS NOT NULL")
		} else {
			w.Add("r.checked_in_at IS NULL")
		}
	}
	if f.State != nil {
		w.Add("(" + statePredicates[*f.State] + ")")
	}
	return w
}

// CertificateFilter narrows certificate lists.
type CertificateFilter struct {
	Search   string
	EventID  *uuid.UUID
	Approved *bool
	pagination.Request
}

func (f CertificateFilter) where() *pagination.Where {
	w := &pagination.Where{}
	w.Search(f.Search, "u.full_name", "u.email", "e.title", "c.certificate_number")
	if f.EventID != nil {
		w.Add("c.event_id = %s", *f.EventID)
	}
	if f.Approved != nil {
		w.Add("c.is_approved = %s", *f.Approved)
	}
	return w
}

// RegistrationRow is a registration list entry with its derived attendance state.
type RegistrationRow struct {
	models.RegistrationDetail
	State attendance.State `json:"state"`
}

// CertificateRow is a certificate list entry with its derived status.
type CertificateRow struct {
	models.CertificateDetail
	Status models.CertificateStatus `json:"status"`
}

// ParticipantRow is an attended registration with its certificate progress.
type ParticipantRow struct {
	models.RegistrationDetail
	HasCertificate    bool       `json:"has_certificate"`
	CertificateID     *uuid.UUID `json:"certificate_id,omitempty"`
	CertificateSentAt *time.Time `json:"certificate_sent_at,omitempty"`
}

// ParticipantSummary is a participant's own overview.
type ParticipantSummary struct {
	TotalRegistrations int `json:"total_registrations"`
	Attended           int `json:"attended"`
	Upcoming           int `json:"upcoming"`
	Past               int `json:"past"`
	Certificates       int `json:"certificates"`
}
