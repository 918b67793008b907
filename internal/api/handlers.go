// Package api exposes the scheduling core over HTTP for the admin SPA.
// Handlers stay thin: decode, delegate, map errors onto the taxonomy
// the UI shows operators.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/physiodesk/scheduler/internal/clinicapi"
	"github.com/physiodesk/scheduler/internal/dayschedule"
	"github.com/physiodesk/scheduler/internal/overbook"
	"github.com/physiodesk/scheduler/internal/plans"
	"github.com/physiodesk/scheduler/internal/schedule"
	"github.com/physiodesk/scheduler/internal/timegrid"
	"github.com/physiodesk/scheduler/pkg/logging"
)

// Handler serves the scheduling board and overbooking queue endpoints.
type Handler struct {
	days     *dayschedule.Service
	queue    *overbook.Reconciler
	resolver plans.Resolver
	logger   *logging.Logger
}

// NewHandler builds the scheduling HTTP handler.
func NewHandler(days *dayschedule.Service, queue *overbook.Reconciler, resolver plans.Resolver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		days:     days,
		queue:    queue,
		resolver: resolver,
		logger:   logger.Component("api"),
	}
}

type hourView struct {
	Hour  int    `json:"hour"`
	Label string `json:"label"`
}

type appointmentView struct {
	ID                   string `json:"id"`
	PatientID            string `json:"patientId"`
	Session              string `json:"sessionType"`
	Status               string `json:"status"`
	PreferredTherapistID string `json:"preferredTherapistId,omitempty"`
	Note                 string `json:"note,omitempty"`
}

type cellView struct {
	Hour         int               `json:"hour"`
	Capacity     int               `json:"capacity"`
	State        string            `json:"state"`
	Appointments []appointmentView `json:"appointments"`
}

type boardRowView struct {
	Therapist therapistView `json:"therapist"`
	Cells     []cellView    `json:"cells"`
}

type therapistView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
}

type boardView struct {
	Date  string                `json:"date"`
	Hours []hourView            `json:"hours"`
	Rows  []boardRowView        `json:"rows"`
	Queue []clinicapi.QueueItem `json:"queue"`
}

// GetBoard serves GET /api/v1/board?date=YYYY-MM-DD&therapist=ID.
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required")
		return
	}
	date, err := timegrid.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	day, err := h.days.LoadDay(r.Context(), date)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	hours := make([]hourView, 0, len(timegrid.Hours()))
	for _, hr := range timegrid.Hours() {
		label, _ := timegrid.Label(hr)
		hours = append(hours, hourView{Hour: hr, Label: label})
	}

	filter := r.URL.Query().Get("therapist")
	rowTherapists := day.Board.Therapists(filter)
	rows := make([]boardRowView, 0, len(rowTherapists))
	for _, t := range rowTherapists {
		cells := make([]cellView, 0, len(hours))
		for _, hr := range timegrid.Hours() {
			cell := day.Board.Cell(t.ID, hr)
			cells = append(cells, toCellView(cell))
		}
		rows = append(rows, boardRowView{
			Therapist: therapistView{ID: t.ID, Name: t.Name, Specialization: t.Specialization},
			Cells:     cells,
		})
	}

	writeJSON(w, http.StatusOK, boardView{
		Date:  dateStr,
		Hours: hours,
		Rows:  rows,
		Queue: day.Queue,
	})
}

func toCellView(cell schedule.Cell) cellView {
	appts := make([]appointmentView, 0, len(cell.Appointments))
	for _, a := range cell.Appointments {
		appts = append(appts, appointmentView{
			ID:                   a.ID,
			PatientID:            a.PatientID,
			Session:              string(a.Session),
			Status:               string(a.Status),
			PreferredTherapistID: a.PreferredTherapistID,
			Note:                 a.Note,
		})
	}
	return cellView{
		Hour:         cell.Hour,
		Capacity:     cell.Capacity,
		State:        string(cell.State),
		Appointments: appts,
	}
}

type createAppointmentRequest struct {
	PatientID            string `json:"patientId"`
	TherapistID          string `json:"therapistId"`
	Date                 string `json:"date"`
	Hour                 int    `json:"hour"`
	ExtraCare            bool   `json:"extraCare"`
	PreferredTherapistID string `json:"preferredTherapistId"`
	Note                 string `json:"note"`
}

// CreateAppointment serves POST /api/v1/appointments.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PatientID == "" || req.TherapistID == "" {
		writeError(w, http.StatusBadRequest, "patientId and therapistId are required")
		return
	}
	date, err := timegrid.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	appt, err := h.days.CreateAppointment(r.Context(), dayschedule.CreateRequest{
		PatientID:            req.PatientID,
		TherapistID:          req.TherapistID,
		Hour:                 req.Hour,
		Date:                 date,
		ExtraCare:            req.ExtraCare,
		PreferredTherapistID: req.PreferredTherapistID,
		Note:                 req.Note,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

type cancelAppointmentRequest struct {
	CancelReason string `json:"cancelReason"`
}

// CancelAppointment serves POST /api/v1/appointments/{id}/cancel.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	appt, err := h.days.CancelAppointment(r.Context(), id, req.CancelReason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// ListQueue serves GET /api/v1/queue.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}

type addQueueItemRequest struct {
	PatientID            string `json:"patientId"`
	Reason               string `json:"reason"`
	ExtraCare            bool   `json:"extraCare"`
	PreferredTherapistID string `json:"preferredTherapistId"`
	AddedBy              string `json:"addedBy"`
}

// AddQueueItem serves POST /api/v1/queue.
func (h *Handler) AddQueueItem(w http.ResponseWriter, r *http.Request) {
	var req addQueueItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	item, err := h.queue.Add(r.Context(), overbook.AddRequest{
		PatientID:            req.PatientID,
		Reason:               req.Reason,
		ExtraCare:            req.ExtraCare,
		PreferredTherapistID: req.PreferredTherapistID,
		AddedBy:              req.AddedBy,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// RemoveQueueItem serves DELETE /api/v1/queue/{id}.
func (h *Handler) RemoveQueueItem(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type placeRequest struct {
	TherapistID string `json:"therapistId"`
	Date        string `json:"date"`
	Hour        int    `json:"hour"`
	Note        string `json:"note"`
}

type placeResponse struct {
	Status                 string               `json:"status"`
	Appointment            schedule.Appointment `json:"appointment"`
	RequiresReconciliation bool                 `json:"requiresReconciliation"`
	QueueRemovalError      string               `json:"queueRemovalError,omitempty"`
}

// PlaceQueueItem serves POST /api/v1/queue/{id}/place. A partial
// placement (appointment booked, queue entry stuck) is a 200 with
// requiresReconciliation set, not an error status: the booking is real
// and the operator needs to see it.
func (h *Handler) PlaceQueueItem(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TherapistID == "" {
		writeError(w, http.StatusBadRequest, "therapistId is required")
		return
	}
	date, err := timegrid.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	res, err := h.queue.Place(r.Context(), overbook.PlaceRequest{
		ItemID:      chi.URLParam(r, "id"),
		TherapistID: req.TherapistID,
		Hour:        req.Hour,
		Date:        date,
		Note:        req.Note,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := placeResponse{
		Status:      string(res.Status),
		Appointment: res.Appointment,
	}
	if res.Status == overbook.PlacementPartial {
		resp.RequiresReconciliation = true
		resp.QueueRemovalError = res.QueueRemovalErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// AutoAssign serves POST /api/v1/queue/auto-assign.
func (h *Handler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	h.writeDomainError(w, h.queue.AutoAssign(r.Context()))
}

type invalidateCacheRequest struct {
	PatientID string `json:"patientId"`
}

// InvalidatePlanCache serves POST /api/v1/plans/cache/invalidate.
// An empty patientId clears the whole cache.
func (h *Handler) InvalidatePlanCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateCacheRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var err error
	if req.PatientID == "" {
		err = h.resolver.Clear(r.Context())
	} else {
		err = h.resolver.Invalidate(r.Context(), req.PatientID)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeDomainError maps core errors onto HTTP statuses with messages an
// operator can act on.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var noPlan *plans.NoActivePlanError
	switch {
	case errors.As(err, &noPlan):
		writeError(w, http.StatusUnprocessableEntity,
			"patient "+noPlan.PatientID+" has no ongoing treatment plan - create a plan first")
	case errors.Is(err, overbook.ErrPatientRequired):
		writeError(w, http.StatusBadRequest, "patientId is required")
	case errors.Is(err, timegrid.ErrHourOutOfRange):
		writeError(w, http.StatusBadRequest, "hour is outside the clinic's working range")
	case errors.Is(err, clinicapi.ErrNotFound):
		writeError(w, http.StatusNotFound, "the referenced record no longer exists - refresh the board")
	case errors.Is(err, clinicapi.ErrConflict):
		writeError(w, http.StatusConflict, "the slot changed since the board was loaded - refresh and retry")
	case errors.Is(err, overbook.ErrAutoAssignUnavailable):
		writeError(w, http.StatusNotImplemented, "automatic assignment is not yet available")
	default:
		h.logger.Error("unclassified backend failure", "error", err)
		writeError(w, http.StatusBadGateway, "the clinic backend is unavailable - try again")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
