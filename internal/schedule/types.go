// Package schedule models the daily scheduling board: the per-cell
// capacity/state rules and the therapist-by-hour index the board is
// rendered from.
package schedule

import "time"

// SessionType classifies an appointment's intensity.
type SessionType string

const (
	// SessionStandard is a regular treatment session.
	SessionStandard SessionType = "STANDARD"
	// SessionExtraCare consumes the therapist's full attention for the
	// slot, halving the cell's nominal capacity.
	SessionExtraCare SessionType = "EXTRA_CARE"
)

// AppointmentStatus mirrors the backend's appointment lifecycle.
type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "BOOKED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusNoShow    AppointmentStatus = "NO_SHOW"
	StatusCompleted AppointmentStatus = "COMPLETED"
)

// Therapist is a bookable staff member. Immutable for the scheduling
// session; sourced from the backend.
type Therapist struct {
	ID             string
	Name           string
	Specialization string
}

// Appointment is the scheduler's view of one booked session.
// PreferredTherapistID records a soft preference distinct from the
// assigned therapist; it never constrains placement.
type Appointment struct {
	ID                   string
	Date                 time.Time
	Hour                 int
	TherapistID          string
	PatientID            string
	Session              SessionType
	PreferredTherapistID string
	Status               AppointmentStatus
	Note                 string
}

// Occupies reports whether the appointment consumes capacity in its
// cell. Cancelled sessions free the slot; no-shows and completed
// sessions still occupied it.
func (a Appointment) Occupies() bool {
	return a.Status != StatusCancelled
}
