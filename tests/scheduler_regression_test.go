// Package tests wires the full scheduling stack (router, handlers,
// backend client, plan cache) against an in-memory clinic backend and
// drives it over HTTP.
package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/physiodesk/scheduler/internal/api"
	"github.com/physiodesk/scheduler/internal/api/router"
	"github.com/physiodesk/scheduler/internal/clinicapi"
	"github.com/physiodesk/scheduler/internal/dayschedule"
	"github.com/physiodesk/scheduler/internal/observability/metrics"
	"github.com/physiodesk/scheduler/internal/overbook"
	"github.com/physiodesk/scheduler/internal/plans"
	"github.com/physiodesk/scheduler/pkg/logging"
)

// clinicStub is a minimal in-memory clinic backend speaking the same
// REST surface the real one does. Queue listings answer with a bare
// array on purpose; some deployments do.
type clinicStub struct {
	mu           sync.Mutex
	therapists   []map[string]string
	appointments []map[string]any
	plansByPt    map[string][]map[string]any
	queue        []map[string]any
	planCalls    int
	nextID       int
}

func newClinicStub() *clinicStub {
	return &clinicStub{
		therapists: []map[string]string{
			{"id": "t1", "fullName": "Amira Haddad", "specialization": "orthopedic"},
			{"id": "t2", "fullName": "Rufus Osei", "specialization": "neurological"},
		},
		plansByPt: map[string][]map[string]any{},
	}
}

func (s *clinicStub) addPlan(patientID, planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plansByPt[patientID] = append(s.plansByPt[patientID], map[string]any{
		"id": planID, "patientId": patientID, "planStatus": "ONGOING",
	})
}

func (s *clinicStub) addAppointment(id, therapistID, patientID, startsAt, sessionType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = append(s.appointments, map[string]any{
		"id": id, "therapistId": therapistID, "patientId": patientID,
		"startsAt": startsAt, "sessionType": sessionType, "status": "BOOKED",
	})
}

func (s *clinicStub) addQueueItem(id, patientID string, extraCare bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, map[string]any{
		"id": id, "patientId": patientID, "extraCare": extraCare,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *clinicStub) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *clinicStub) planLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planCalls
}

func (s *clinicStub) lastAppointment() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.appointments) == 0 {
		return nil
	}
	return s.appointments[len(s.appointments)-1]
}

func (s *clinicStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && path == "/app-users":
		writeEnvelope(w, s.therapists)

	case r.Method == http.MethodGet && path == "/appointments":
		from, _ := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
		to, _ := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
		var day []map[string]any
		for _, a := range s.appointments {
			starts, err := time.Parse(time.RFC3339, a["startsAt"].(string))
			if err != nil {
				continue
			}
			if !starts.Before(from) && starts.Before(to) {
				day = append(day, a)
			}
		}
		writeEnvelope(w, day)

	case r.Method == http.MethodPost && path == "/appointments":
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["planId"] == nil || req["planId"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"message":"planId is required"}`)
			return
		}
		s.nextID++
		appt := map[string]any{
			"id":          fmt.Sprintf("appt-%d", s.nextID),
			"therapistId": req["therapistId"],
			"startsAt":    req["startsAt"],
			"sessionType": req["sessionType"],
			"status":      "BOOKED",
		}
		s.appointments = append(s.appointments, appt)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(appt)

	case r.Method == http.MethodPatch && strings.HasSuffix(path, "/cancel"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/appointments/"), "/cancel")
		for _, a := range s.appointments {
			if a["id"] == id {
				a["status"] = "CANCELLED"
				_ = json.NewEncoder(w).Encode(a)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"appointment not found"}`)

	case r.Method == http.MethodGet && path == "/plans":
		s.planCalls++
		writeEnvelope(w, s.plansByPt[r.URL.Query().Get("patientId")])

	case r.Method == http.MethodGet && path == "/overbooking-queue":
		items := s.queue
		if items == nil {
			items = []map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(items)

	case r.Method == http.MethodPost && path == "/overbooking-queue":
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.nextID++
		item := map[string]any{
			"id":        fmt.Sprintf("q-%d", s.nextID),
			"patientId": req["patientId"],
			"extraCare": req["extraCare"],
			"createdAt": time.Now().UTC().Format(time.RFC3339),
		}
		s.queue = append(s.queue, item)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(item)

	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/overbooking-queue/"):
		id := strings.TrimPrefix(path, "/overbooking-queue/")
		for i, item := range s.queue {
			if item["id"] == id {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"queue entry not found"}`)

	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"no route"}`)
	}
}

func writeEnvelope(w http.ResponseWriter, data any) {
	if data == nil {
		data = []any{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "total": 0})
}

// newStack boots the full service against the stub backend.
func newStack(t *testing.T, stub *clinicStub) http.Handler {
	t.Helper()

	backendSrv := httptest.NewServer(stub)
	t.Cleanup(backendSrv.Close)

	logger := logging.New("error")
	registry := prometheus.NewRegistry()
	m := metrics.NewSchedulerMetrics(registry)

	backend := clinicapi.New(backendSrv.URL, "test-key", logger,
		clinicapi.WithTimezone(time.UTC),
		clinicapi.WithReadRetries(0, time.Millisecond),
		clinicapi.WithMetrics(m),
	)
	resolver := plans.NewCachingResolver(backend, plans.NewMemoryStore(time.Now), logger,
		plans.WithMetrics(m))
	days := dayschedule.NewService(backend, resolver, logger,
		dayschedule.WithTimezone(time.UTC), dayschedule.WithMetrics(m))
	queue := overbook.NewReconciler(backend, resolver, logger,
		overbook.WithTimezone(time.UTC), overbook.WithMetrics(m))

	return router.New(&router.Config{
		Logger:            logger,
		SchedulingHandler: api.NewHandler(days, queue, resolver, logger),
		MetricsHandler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegression_BoardDayView(t *testing.T) {
	stub := newClinicStub()
	stub.addAppointment("a1", "t1", "p1", "2025-06-01T10:00:00Z", "EXTRA_CARE")
	h := newStack(t, stub)

	rec := do(t, h, http.MethodGet, "/api/v1/board?date=2025-06-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view struct {
		Rows []struct {
			Therapist struct {
				ID string `json:"id"`
			} `json:"therapist"`
			Cells []struct {
				Hour     int    `json:"hour"`
				Capacity int    `json:"capacity"`
				State    string `json:"state"`
			} `json:"cells"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	if len(view.Rows) != 2 {
		t.Fatalf("expected one row per therapist, got %d", len(view.Rows))
	}

	var t1Cells map[int]struct {
		Capacity int
		State    string
	}
	for _, row := range view.Rows {
		if row.Therapist.ID != "t1" {
			continue
		}
		t1Cells = map[int]struct {
			Capacity int
			State    string
		}{}
		for _, c := range row.Cells {
			t1Cells[c.Hour] = struct {
				Capacity int
				State    string
			}{c.Capacity, c.State}
		}
	}
	if t1Cells == nil {
		t.Fatal("therapist t1 missing from board")
	}
	if got := t1Cells[10]; got.Capacity != 1 || got.State != "extracare" {
		t.Fatalf("extra-care slot misclassified: %+v", got)
	}
	if got := t1Cells[11]; got.Capacity != 2 || got.State != "available" {
		t.Fatalf("empty neighbor slot misclassified: %+v", got)
	}
}

func TestRegression_PlaceQueueItemFlow(t *testing.T) {
	stub := newClinicStub()
	stub.addPlan("p7", "plan-p7")
	stub.addQueueItem("q1", "p7", false)
	h := newStack(t, stub)

	rec := do(t, h, http.MethodPost, "/api/v1/queue/q1/place", map[string]any{
		"therapistId": "t2", "date": "2025-06-02", "hour": 14,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("place failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status                 string `json:"status"`
		RequiresReconciliation bool   `json:"requiresReconciliation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode place response: %v", err)
	}
	if resp.Status != "done" || resp.RequiresReconciliation {
		t.Fatalf("expected clean placement, got %+v", resp)
	}

	appt := stub.lastAppointment()
	if appt == nil {
		t.Fatal("backend never received the appointment")
	}
	if appt["startsAt"] != "2025-06-02T14:00:00Z" {
		t.Fatalf("wrong slot instant: %v", appt["startsAt"])
	}
	if appt["sessionType"] != "STANDARD" {
		t.Fatalf("wrong session type: %v", appt["sessionType"])
	}
	if stub.queueLen() != 0 {
		t.Fatalf("queue entry survived placement, %d left", stub.queueLen())
	}

	// The placed patient now occupies the board slot.
	rec = do(t, h, http.MethodGet, "/api/v1/board?date=2025-06-02&therapist=t2", nil)
	var view struct {
		Rows []struct {
			Cells []struct {
				Hour         int    `json:"hour"`
				State        string `json:"state"`
				Appointments []any  `json:"appointments"`
			} `json:"cells"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode board: %v", err)
	}
	if len(view.Rows) != 1 {
		t.Fatalf("expected filtered board, got %d rows", len(view.Rows))
	}
	for _, c := range view.Rows[0].Cells {
		if c.Hour == 14 {
			if c.State != "partial" || len(c.Appointments) != 1 {
				t.Fatalf("placed slot misclassified: %+v", c)
			}
			return
		}
	}
	t.Fatal("hour 14 missing from board row")
}

func TestRegression_PlanCacheAvoidsRepeatLookups(t *testing.T) {
	stub := newClinicStub()
	stub.addPlan("p3", "plan-p3")
	h := newStack(t, stub)

	create := map[string]any{"patientId": "p3", "therapistId": "t1", "date": "2025-06-01", "hour": 9}
	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/api/v1/appointments", create)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %d failed: %d %s", i, rec.Code, rec.Body.String())
		}
	}
	if got := stub.planLookups(); got != 1 {
		t.Fatalf("expected one plan lookup across bookings, got %d", got)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/plans/cache/invalidate", map[string]any{"patientId": "p3"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("invalidate failed: %d", rec.Code)
	}
	if rec = do(t, h, http.MethodPost, "/api/v1/appointments", create); rec.Code != http.StatusCreated {
		t.Fatalf("create after invalidate failed: %d", rec.Code)
	}
	if got := stub.planLookups(); got != 2 {
		t.Fatalf("expected a fresh lookup after invalidation, got %d", got)
	}
}

func TestRegression_NoActivePlanBlocksBooking(t *testing.T) {
	stub := newClinicStub()
	h := newStack(t, stub)

	rec := do(t, h, http.MethodPost, "/api/v1/appointments", map[string]any{
		"patientId": "p-noplan", "therapistId": "t1", "date": "2025-06-01", "hour": 9,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastAppointment() != nil {
		t.Fatal("booking without a plan must not reach the backend")
	}
}

func TestRegression_QueueLifecycle(t *testing.T) {
	stub := newClinicStub()
	h := newStack(t, stub)

	rec := do(t, h, http.MethodPost, "/api/v1/queue", map[string]any{
		"patientId": "p5", "reason": "no free slots today", "extraCare": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add failed: %d %s", rec.Code, rec.Body.String())
	}
	var added struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &added); err != nil || added.ID == "" {
		t.Fatalf("add response missing id: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/queue", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), added.ID) {
		t.Fatalf("list missing new entry: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/queue/"+added.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove failed: %d", rec.Code)
	}
	if stub.queueLen() != 0 {
		t.Fatal("queue entry not removed")
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/queue/"+added.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for vanished entry, got %d", rec.Code)
	}
}

func TestRegression_HealthAndMetrics(t *testing.T) {
	h := newStack(t, newClinicStub())

	if rec := do(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	// Generate some traffic first so counters exist.
	do(t, h, http.MethodGet, "/api/v1/board?date=2025-06-01", nil)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "physiodesk_") {
		t.Fatal("expected scheduler metrics in exposition")
	}
}
