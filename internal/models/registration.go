package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTicketType is assigned to self-service registrations.
const DefaultTicketType = "General"

// Registration is one user's claim to a seat at an event (unique per event+user).
type Registration struct {
	ID           uuid.UUID  `json:"id"`
	EventID      uuid.UUID  `json:"event_id"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	TicketType   string     `json:"ticket_type"`
	IsCheckedIn  bool       `json:"is_checked_in"`
	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`
}

// Attended reports whether the registration was ever checked in and not reset.
func (r *Registration) Attended() bool {
	return r.CheckedInAt != nil
}

// Attendance is the audit trail of who checked a registration in and out.
type Attendance struct {
	ID             uuid.UUID  `json:"id"`
	RegistrationID uuid.UUID  `json:"registration_id"`
	CheckedInAt    *time.Time `json:"checked_in_at,omitempty"`
	CheckedInBy    *uuid.UUID `json:"checked_in_by,omitempty"`
	CheckedOutAt   *time.Time `json:"checked_out_at,omitempty"`
	CheckedOutBy   *uuid.UUID `json:"checked_out_by,omitempty"`
}

// RegistrationDetail is a registration joined with its attendee and event.
type RegistrationDetail struct {
	Registration
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	EventTitle    string    `json:"event_title"`
	EventStartsAt time.Time `json:"event_start_date"`
	EventLocation string    `json:"event_location,omitempty"`
}
