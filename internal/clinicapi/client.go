// Package clinicapi is the REST client for the clinic backend. It owns
// the wire shapes, normalizes the backend's looser response envelopes,
// and maps HTTP failures onto the error taxonomy the scheduling core
// acts on.
package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/physiodesk/scheduler/internal/observability/metrics"
	"github.com/physiodesk/scheduler/internal/schedule"
	"github.com/physiodesk/scheduler/internal/timegrid"
	"github.com/physiodesk/scheduler/pkg/logging"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultPageSize = 500
)

// Client wraps the clinic backend REST API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	loc           *time.Location
	pageSize      int
	readRetries   int
	retryBaseWait time.Duration
	logger        *logging.Logger
	tracer        trace.Tracer
	metrics       *metrics.SchedulerMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithTimezone sets the clinic timezone used to bucket appointment
// instants into board hours. Defaults to time.Local.
func WithTimezone(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithPageSize caps list responses.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithReadRetries sets the bounded retry count for idempotent reads.
// Writes are never retried here; a duplicated create is worse than a
// surfaced failure.
func WithReadRetries(n int, baseWait time.Duration) Option {
	return func(c *Client) {
		if n >= 0 {
			c.readRetries = n
		}
		if baseWait > 0 {
			c.retryBaseWait = baseWait
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithMetrics attaches request counters/latency histograms.
func WithMetrics(m *metrics.SchedulerMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New constructs a clinic backend client.
func New(baseURL, apiKey string, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient:    &http.Client{Timeout: defaultTimeout},
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		loc:           time.Local,
		pageSize:      defaultPageSize,
		readRetries:   2,
		retryBaseWait: 250 * time.Millisecond,
		logger:        logger.Component("clinicapi"),
		tracer:        otel.Tracer("physiodesk.internal.clinicapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListTherapists returns the clinic's bookable therapists.
func (c *Client) ListTherapists(ctx context.Context) ([]schedule.Therapist, error) {
	q := url.Values{}
	q.Set("role", "THERAPIST")
	q.Set("pageSize", fmt.Sprint(c.pageSize))

	var wrapped struct {
		Data  []userDTO `json:"data"`
		Total int       `json:"total"`
	}
	if err := c.getJSON(ctx, "list_therapists", "/app-users?"+q.Encode(), &wrapped); err != nil {
		return nil, fmt.Errorf("list therapists: %w", err)
	}
	therapists := make([]schedule.Therapist, 0, len(wrapped.Data))
	for _, u := range wrapped.Data {
		therapists = append(therapists, u.toTherapist())
	}
	return therapists, nil
}

// ListAppointments returns every appointment for one clinic day.
func (c *Client) ListAppointments(ctx context.Context, date time.Time) ([]schedule.Appointment, error) {
	from, to := timegrid.DayRange(date, c.loc)
	q := url.Values{}
	q.Set("from", from.Format(time.RFC3339))
	q.Set("to", to.Format(time.RFC3339))
	q.Set("pageSize", fmt.Sprint(c.pageSize))

	var wrapped struct {
		Data  []appointmentDTO `json:"data"`
		Total int              `json:"total"`
	}
	if err := c.getJSON(ctx, "list_appointments", "/appointments?"+q.Encode(), &wrapped); err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	appts := make([]schedule.Appointment, 0, len(wrapped.Data))
	for _, dto := range wrapped.Data {
		a, err := dto.toAppointment(c.loc)
		if err != nil {
			c.logger.Warn("skipping appointment with malformed start time",
				"appointment_id", dto.ID, "starts_at", dto.StartsAt, "error", err)
			continue
		}
		appts = append(appts, a)
	}
	return appts, nil
}

// CreateAppointment books a slot. Never retried.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (schedule.Appointment, error) {
	var dto appointmentDTO
	if err := c.doJSON(ctx, "create_appointment", http.MethodPost, "/appointments", req, &dto); err != nil {
		return schedule.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	a, err := dto.toAppointment(c.loc)
	if err != nil {
		return schedule.Appointment{}, fmt.Errorf("create appointment: decode start time: %w", err)
	}
	return a, nil
}

// CancelAppointment cancels a booked appointment.
func (c *Client) CancelAppointment(ctx context.Context, id, reason string) (schedule.Appointment, error) {
	body := map[string]string{"cancelReason": reason}
	path := "/appointments/" + url.PathEscape(id) + "/cancel"

	var dto appointmentDTO
	if err := c.doJSON(ctx, "cancel_appointment", http.MethodPatch, path, body, &dto); err != nil {
		return schedule.Appointment{}, fmt.Errorf("cancel appointment: %w", err)
	}
	a, err := dto.toAppointment(c.loc)
	if err != nil {
		return schedule.Appointment{}, fmt.Errorf("cancel appointment: decode start time: %w", err)
	}
	return a, nil
}

// ListActivePlans returns up to limit ONGOING treatment plans for a
// patient, in the backend's response order.
func (c *Client) ListActivePlans(ctx context.Context, patientID string, limit int) ([]Plan, error) {
	if limit <= 0 {
		limit = 1
	}
	q := url.Values{}
	q.Set("patientId", patientID)
	q.Set("planStatus", "ONGOING")
	q.Set("pageSize", fmt.Sprint(limit))

	var wrapped struct {
		Data  []Plan `json:"data"`
		Total int    `json:"total"`
	}
	if err := c.getJSON(ctx, "list_plans", "/plans?"+q.Encode(), &wrapped); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return wrapped.Data, nil
}

// ListQueue returns overbooking-queue items. The backend answers with a
// bare array on some deployments and a {data: []} envelope on others;
// both normalize here so callers see one shape.
func (c *Client) ListQueue(ctx context.Context, activeOnly bool) ([]QueueItem, error) {
	q := url.Values{}
	if activeOnly {
		q.Set("isActive", "true")
	}
	q.Set("pageSize", fmt.Sprint(c.pageSize))

	var raw json.RawMessage
	if err := c.getJSON(ctx, "list_queue", "/overbooking-queue?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	items, err := decodeQueueList(raw)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return items, nil
}

// AddQueueItem appends a patient to the overbooking queue.
func (c *Client) AddQueueItem(ctx context.Context, req AddQueueItemRequest) (QueueItem, error) {
	var item QueueItem
	if err := c.doJSON(ctx, "add_queue_item", http.MethodPost, "/overbooking-queue", req, &item); err != nil {
		return QueueItem{}, fmt.Errorf("add queue item: %w", err)
	}
	return item, nil
}

// RemoveQueueItem deletes a queue entry. A vanished entry surfaces as
// ErrNotFound so reconciliation can tell staleness apart from failure.
func (c *Client) RemoveQueueItem(ctx context.Context, id string) error {
	path := "/overbooking-queue/" + url.PathEscape(id)
	if err := c.doJSON(ctx, "remove_queue_item", http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("remove queue item: %w", err)
	}
	return nil
}

func decodeQueueList(raw json.RawMessage) ([]QueueItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []QueueItem{}, nil
	}
	if trimmed[0] == '[' {
		var items []QueueItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode queue array: %w", err)
		}
		return items, nil
	}
	var wrapped struct {
		Data []QueueItem `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode queue envelope: %w", err)
	}
	if wrapped.Data == nil {
		return []QueueItem{}, nil
	}
	return wrapped.Data, nil
}

// getJSON performs an idempotent read with a small bounded retry on
// transport errors and 5xx responses.
func (c *Client) getJSON(ctx context.Context, operation, path string, out interface{}) error {
	attempts := c.readRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := c.retryBaseWait * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			c.logger.Debug("retrying backend read", "operation", operation, "attempt", attempt+1)
		}
		lastErr = c.doJSON(ctx, operation, http.MethodGet, path, nil, out)
		if lastErr == nil {
			return nil
		}
		if !retryableRead(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func retryableRead(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	// Transport-level failure.
	return true
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, body interface{}, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, "clinicapi."+operation)
	defer span.End()
	start := time.Now()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		c.metrics.ObserveBackendRequest(operation, "transport_error", time.Since(start).Seconds())
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		c.metrics.ObserveBackendRequest(operation, "read_error", time.Since(start).Seconds())
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := extractErrorMessage(respBody)
		apiErr := &APIError{Status: resp.StatusCode, Operation: operation, Message: msg}
		span.RecordError(apiErr)
		c.metrics.ObserveBackendRequest(operation, fmt.Sprint(resp.StatusCode), time.Since(start).Seconds())
		c.logger.Warn("backend API non-2xx response",
			"operation", operation, "status", resp.StatusCode, "path", path, "body", msg)
		return apiErr
	}

	c.metrics.ObserveBackendRequest(operation, "ok", time.Since(start).Seconds())

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// extractErrorMessage pulls {"message": ...} out of an error body when
// present, falling back to the raw (truncated) body.
func extractErrorMessage(body []byte) string {
	var wrapped struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if wrapped.Message != "" {
			return wrapped.Message
		}
		if wrapped.Error != "" {
			return wrapped.Error
		}
	}
	msg := string(body)
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
