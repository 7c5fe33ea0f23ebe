// Package attendance owns the check-in/check-out lifecycle of a registration.
package attendance

import "github.com/eventflow/backend/internal/models"

// State is where a registration sits in the attendance lifecycle.
type State int

const (
	NotArrived State = iota
	CheckedIn
	CheckedOut
)

// String returns the snake_case name used in API responses.
func (s State) String() string {
	switch s {
	case CheckedIn:
		return "checked_in"
	case CheckedOut:
		return "checked_out"
	default:
		return "not_arrived"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState is the inverse of String.
func ParseState(s string) (State, bool) {
	switch s {
	case "not_arrived":
		return NotArrived, true
	case "checked_in":
		return CheckedIn, true
	case "checked_out":
		return CheckedOut, true
	}
	return NotArrived, false
}

// StateOf derives the state from a registration's fields.
func StateOf(r *models.Registration) State {
	switch {
	case r.CheckedOutAt != nil:
		return CheckedOut
	case r.IsCheckedIn && r.CheckedInAt != nil:
		return CheckedIn
	default:
		return NotArrived
	}
}

// Action is the transition a scan performed.
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	ActionReset    Action = "reset"
)
