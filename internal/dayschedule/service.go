// Package dayschedule orchestrates a full board refresh and the
// appointment mutations the board issues. Every mutation is followed by
// a fresh LoadDay on the caller's side; nothing here patches a board in
// place.
package dayschedule

import (
	"context"
	"fmt"
	"time"

	"github.com/physiodesk/scheduler/internal/clinicapi"
	"github.com/physiodesk/scheduler/internal/observability/metrics"
	"github.com/physiodesk/scheduler/internal/plans"
	"github.com/physiodesk/scheduler/internal/schedule"
	"github.com/physiodesk/scheduler/internal/timegrid"
	"github.com/physiodesk/scheduler/pkg/logging"
)

type backendAPI interface {
	ListTherapists(ctx context.Context) ([]schedule.Therapist, error)
	ListAppointments(ctx context.Context, date time.Time) ([]schedule.Appointment, error)
	CreateAppointment(ctx context.Context, req clinicapi.CreateAppointmentRequest) (schedule.Appointment, error)
	CancelAppointment(ctx context.Context, id, reason string) (schedule.Appointment, error)
	ListQueue(ctx context.Context, activeOnly bool) ([]clinicapi.QueueItem, error)
}

// DaySchedule is one day's fully assembled view: board rows, indexed
// cells, and the current waiting list.
type DaySchedule struct {
	Date       time.Time
	Therapists []schedule.Therapist
	Board      *schedule.Board
	Queue      []clinicapi.QueueItem
}

// CreateRequest books a session directly from the board.
type CreateRequest struct {
	PatientID            string
	TherapistID          string
	Hour                 int
	Date                 time.Time
	ExtraCare            bool
	PreferredTherapistID string
	Note                 string
}

// Service loads and mutates day schedules.
type Service struct {
	api      backendAPI
	resolver plans.Resolver
	loc      *time.Location
	logger   *logging.Logger
	metrics  *metrics.SchedulerMetrics
}

// Option configures a Service.
type Option func(*Service)

// WithTimezone sets the clinic timezone for slot instants.
func WithTimezone(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMetrics attaches refresh counters.
func WithMetrics(m *metrics.SchedulerMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService builds the day-schedule service.
func NewService(api backendAPI, resolver plans.Resolver, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		api:      api,
		resolver: resolver,
		loc:      time.Local,
		logger:   logger.Component("dayschedule"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadDay fetches therapists, the day's appointments and the active
// queue, and assembles the board index.
func (s *Service) LoadDay(ctx context.Context, date time.Time) (*DaySchedule, error) {
	therapists, err := s.api.ListTherapists(ctx)
	if err != nil {
		return nil, fmt.Errorf("load day: %w", err)
	}
	appointments, err := s.api.ListAppointments(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load day: %w", err)
	}
	queue, err := s.api.ListQueue(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load day: %w", err)
	}

	board := schedule.NewBoard(therapists, appointments)
	s.metrics.ObserveBoardRefresh()
	s.logger.Debug("day schedule assembled",
		"date", date.Format("2006-01-02"),
		"therapists", len(therapists),
		"occupants", board.OccupantCount(),
		"queued", len(queue),
	)
	return &DaySchedule{
		Date:       date,
		Therapists: therapists,
		Board:      board,
		Queue:      queue,
	}, nil
}

// CreateAppointment resolves the patient's plan and books the slot. The
// capacity rule stays the backend's to enforce; this only refuses hours
// off the grid before any side effect happens.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (schedule.Appointment, error) {
	planID, err := s.resolver.Resolve(ctx, req.PatientID)
	if err != nil {
		return schedule.Appointment{}, err
	}
	startsAt, endsAt, err := timegrid.SlotTimes(req.Date, req.Hour, s.loc)
	if err != nil {
		return schedule.Appointment{}, err
	}
	sessionType := schedule.SessionStandard
	if req.ExtraCare {
		sessionType = schedule.SessionExtraCare
	}
	return s.api.CreateAppointment(ctx, clinicapi.CreateAppointmentRequest{
		PlanID:               planID,
		TherapistID:          req.TherapistID,
		StartsAt:             startsAt,
		EndsAt:               endsAt,
		SessionType:          string(sessionType),
		PreferredTherapistID: req.PreferredTherapistID,
		Note:                 req.Note,
	})
}

// CancelAppointment cancels a booked session.
func (s *Service) CancelAppointment(ctx context.Context, id, reason string) (schedule.Appointment, error) {
	return s.api.CancelAppointment(ctx, id, reason)
}
