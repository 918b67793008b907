package clinicapi

import (
	"time"

	"github.com/physiodesk/scheduler/internal/schedule"
)

// Plan is the treatment-plan shape the scheduler needs: appointment
// creation requires a plan id, nothing more.
type Plan struct {
	ID        string `json:"id"`
	PatientID string `json:"patientId"`
	Status    string `json:"planStatus"`
	StartedAt string `json:"startedAt"`
}

// QueueItem is one overbooking-queue entry as the backend stores it.
type QueueItem struct {
	ID                   string    `json:"id"`
	PatientID            string    `json:"patientId"`
	Reason               string    `json:"reason,omitempty"`
	ExtraCare            bool      `json:"extraCare"`
	PreferredTherapistID string    `json:"preferredTherapistId,omitempty"`
	AddedBy              string    `json:"addedBy,omitempty"`
	AddedAt              time.Time `json:"createdAt"`
}

// CreateAppointmentRequest mirrors POST /appointments.
type CreateAppointmentRequest struct {
	PlanID               string    `json:"planId"`
	TherapistID          string    `json:"therapistId"`
	StartsAt             time.Time `json:"startsAt"`
	EndsAt               time.Time `json:"endsAt"`
	SessionType          string    `json:"sessionType"`
	PreferredTherapistID string    `json:"preferredTherapistId,omitempty"`
	Note                 string    `json:"note,omitempty"`
}

// AddQueueItemRequest mirrors POST /overbooking-queue.
type AddQueueItemRequest struct {
	PatientID            string `json:"patientId"`
	Reason               string `json:"reason,omitempty"`
	ExtraCare            bool   `json:"extraCare"`
	PreferredTherapistID string `json:"preferredTherapistId,omitempty"`
	AddedBy              string `json:"addedBy,omitempty"`
}

type userDTO struct {
	ID             string `json:"id"`
	FullName       string `json:"fullName"`
	Specialization string `json:"specialization"`
}

type appointmentDTO struct {
	ID                   string `json:"id"`
	StartsAt             string `json:"startsAt"`
	EndsAt               string `json:"endsAt"`
	TherapistID          string `json:"therapistId"`
	PatientID            string `json:"patientId"`
	SessionType          string `json:"sessionType"`
	PreferredTherapistID string `json:"preferredTherapistId"`
	Status               string `json:"status"`
	Note                 string `json:"note"`
}

func (d userDTO) toTherapist() schedule.Therapist {
	return schedule.Therapist{
		ID:             d.ID,
		Name:           d.FullName,
		Specialization: d.Specialization,
	}
}

// toAppointment reshapes the backend payload into the board's view
// model: the startsAt instant becomes a calendar date plus an integer
// hour in the clinic's timezone.
func (d appointmentDTO) toAppointment(loc *time.Location) (schedule.Appointment, error) {
	starts, err := time.Parse(time.RFC3339, d.StartsAt)
	if err != nil {
		return schedule.Appointment{}, err
	}
	local := starts.In(loc)
	return schedule.Appointment{
		ID:                   d.ID,
		Date:                 time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc),
		Hour:                 local.Hour(),
		TherapistID:          d.TherapistID,
		PatientID:            d.PatientID,
		Session:              schedule.SessionType(d.SessionType),
		PreferredTherapistID: d.PreferredTherapistID,
		Status:               schedule.AppointmentStatus(d.Status),
		Note:                 d.Note,
	}, nil
}
