// Package overbook maintains the waiting list of patients who could not
// be scheduled and reconciles it with the board: queue items either get
// placed into a slot (which books an appointment and removes the item)
// or removed outright. There is no way back to the queue; re-adding
// creates a logically new item.
package overbook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/physiodesk/scheduler/internal/clinicapi"
	"github.com/physiodesk/scheduler/internal/observability/metrics"
	"github.com/physiodesk/scheduler/internal/plans"
	"github.com/physiodesk/scheduler/internal/schedule"
	"github.com/physiodesk/scheduler/internal/timegrid"
	"github.com/physiodesk/scheduler/pkg/logging"
)

var (
	// ErrPatientRequired is returned when an add request names no patient.
	ErrPatientRequired = errors.New("overbook: patient id is required")

	// ErrAutoAssignUnavailable is returned by AutoAssign. Picking the
	// next patient is staff judgment today; there is no heuristic to
	// fall back on.
	ErrAutoAssignUnavailable = errors.New("overbook: automatic assignment is not yet available")
)

// PlacementStatus tags the outcome of a Place call.
type PlacementStatus string

const (
	// PlacementDone: appointment created and queue item removed.
	PlacementDone PlacementStatus = "done"
	// PlacementPartial: appointment created but the queue item could
	// not be removed. Both records now exist for the same patient and
	// need manual reconciliation; retrying the removal blindly risks
	// masking a response-round-trip failure.
	PlacementPartial PlacementStatus = "partial"
)

// PlacementResult reports what a Place call actually did. Partial
// results carry the removal error so staff see exactly what is left
// dangling.
type PlacementResult struct {
	Status          PlacementStatus
	Appointment     schedule.Appointment
	QueueRemovalErr error
}

// AddRequest carries a new queue entry.
type AddRequest struct {
	PatientID            string
	Reason               string
	ExtraCare            bool
	PreferredTherapistID string
	AddedBy              string
}

// PlaceRequest converts a queue item into a booked appointment.
type PlaceRequest struct {
	ItemID      string
	TherapistID string
	Hour        int
	Date        time.Time
	Note        string
}

type queueAPI interface {
	ListQueue(ctx context.Context, activeOnly bool) ([]clinicapi.QueueItem, error)
	AddQueueItem(ctx context.Context, req clinicapi.AddQueueItemRequest) (clinicapi.QueueItem, error)
	RemoveQueueItem(ctx context.Context, id string) error
	CreateAppointment(ctx context.Context, req clinicapi.CreateAppointmentRequest) (schedule.Appointment, error)
}

// Reconciler exposes the queue operations the admin board drives.
type Reconciler struct {
	api      queueAPI
	resolver plans.Resolver
	loc      *time.Location
	logger   *logging.Logger
	metrics  *metrics.SchedulerMetrics
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithTimezone sets the clinic timezone for slot instants.
func WithTimezone(loc *time.Location) ReconcilerOption {
	return func(r *Reconciler) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithMetrics attaches placement outcome counters.
func WithMetrics(m *metrics.SchedulerMetrics) ReconcilerOption {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// NewReconciler builds a queue reconciler over the backend API and the
// plan resolver.
func NewReconciler(api queueAPI, resolver plans.Resolver, logger *logging.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Reconciler{
		api:      api,
		resolver: resolver,
		loc:      time.Local,
		logger:   logger.Component("overbook"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// List returns active queue items newest-first for staff review.
func (r *Reconciler) List(ctx context.Context) ([]clinicapi.QueueItem, error) {
	items, err := r.api.ListQueue(ctx, true)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].AddedAt.After(items[j].AddedAt)
	})
	return items, nil
}

// Add creates a new queued item.
func (r *Reconciler) Add(ctx context.Context, req AddRequest) (clinicapi.QueueItem, error) {
	if req.PatientID == "" {
		return clinicapi.QueueItem{}, ErrPatientRequired
	}
	return r.api.AddQueueItem(ctx, clinicapi.AddQueueItemRequest{
		PatientID:            req.PatientID,
		Reason:               req.Reason,
		ExtraCare:            req.ExtraCare,
		PreferredTherapistID: req.PreferredTherapistID,
		AddedBy:              req.AddedBy,
	})
}

// Remove deletes a queue item. A second remove of an already-gone item
// surfaces the backend's not-found; local state is untouched either way.
func (r *Reconciler) Remove(ctx context.Context, itemID string) error {
	return r.api.RemoveQueueItem(ctx, itemID)
}

// AutoAssign would pick the next queue item for an open slot. It is
// deliberately unimplemented rather than guessed at.
func (r *Reconciler) AutoAssign(ctx context.Context) error {
	return ErrAutoAssignUnavailable
}

// Place converts a queue item into an appointment: resolve the
// patient's plan, create the appointment at the slot, then remove the
// queue item. The steps are not transactional at the API boundary. Any
// failure before creation returns an error with no side effects; a
// removal failure after creation returns a partial result, never an
// error, so the already-booked appointment is not reported as a failure.
func (r *Reconciler) Place(ctx context.Context, req PlaceRequest) (*PlacementResult, error) {
	item, err := r.findItem(ctx, req.ItemID)
	if err != nil {
		r.metrics.ObservePlacement("failed")
		return nil, err
	}

	planID, err := r.resolver.Resolve(ctx, item.PatientID)
	if err != nil {
		r.metrics.ObservePlacement("failed")
		return nil, err
	}

	startsAt, endsAt, err := timegrid.SlotTimes(req.Date, req.Hour, r.loc)
	if err != nil {
		r.metrics.ObservePlacement("failed")
		return nil, err
	}

	sessionType := schedule.SessionStandard
	if item.ExtraCare {
		sessionType = schedule.SessionExtraCare
	}
	appt, err := r.api.CreateAppointment(ctx, clinicapi.CreateAppointmentRequest{
		PlanID:               planID,
		TherapistID:          req.TherapistID,
		StartsAt:             startsAt,
		EndsAt:               endsAt,
		SessionType:          string(sessionType),
		PreferredTherapistID: item.PreferredTherapistID,
		Note:                 req.Note,
	})
	if err != nil {
		r.metrics.ObservePlacement("failed")
		return nil, fmt.Errorf("place queue item %s: %w", req.ItemID, err)
	}

	if err := r.api.RemoveQueueItem(ctx, req.ItemID); err != nil {
		r.metrics.ObservePlacement("partial")
		r.logger.Error("placement left a stale queue entry",
			"item_id", req.ItemID,
			"patient_id", item.PatientID,
			"appointment_id", appt.ID,
			"error", err,
		)
		return &PlacementResult{
			Status:          PlacementPartial,
			Appointment:     appt,
			QueueRemovalErr: err,
		}, nil
	}

	r.metrics.ObservePlacement("done")
	return &PlacementResult{Status: PlacementDone, Appointment: appt}, nil
}

func (r *Reconciler) findItem(ctx context.Context, itemID string) (clinicapi.QueueItem, error) {
	items, err := r.api.ListQueue(ctx, true)
	if err != nil {
		return clinicapi.QueueItem{}, fmt.Errorf("find queue item %s: %w", itemID, err)
	}
	for _, item := range items {
		if item.ID == itemID {
			return item, nil
		}
	}
	return clinicapi.QueueItem{}, fmt.Errorf("find queue item %s: %w", itemID, clinicapi.ErrNotFound)
}
