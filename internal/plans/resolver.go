// Package plans resolves a patient to the ongoing treatment plan the
// backend requires for appointment creation, memoizing resolutions for
// a short TTL so one scheduling session doesn't hammer the plans
// endpoint.
package plans

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/physiodesk/scheduler/internal/clinicapi"
	"github.com/physiodesk/scheduler/internal/observability/metrics"
	"github.com/physiodesk/scheduler/pkg/logging"
)

// DefaultTTL is how long a resolved plan id stays trustworthy.
const DefaultTTL = 5 * time.Minute

// NoActivePlanError is returned when a patient has no ONGOING treatment
// plan; the operator should be told to create one first.
type NoActivePlanError struct {
	PatientID string
}

func (e *NoActivePlanError) Error() string {
	return fmt.Sprintf("plans: patient %s has no ongoing treatment plan", e.PatientID)
}

// Resolver translates patient ids into plan ids.
type Resolver interface {
	Resolve(ctx context.Context, patientID string) (string, error)
	Invalidate(ctx context.Context, patientID string) error
	Clear(ctx context.Context) error
}

type planAPI interface {
	ListActivePlans(ctx context.Context, patientID string, limit int) ([]clinicapi.Plan, error)
}

// Selector picks one plan when the backend returns several ONGOING
// plans for the same patient. The backend's intent for that case is
// undocumented, so the tie-break is explicit and injectable rather than
// buried.
type Selector func(plans []clinicapi.Plan) clinicapi.Plan

// SelectFirst keeps the backend's response order, matching the admin
// UI's historical behavior.
func SelectFirst(plans []clinicapi.Plan) clinicapi.Plan {
	return plans[0]
}

// CachingResolver memoizes plan resolutions in a Store. Construct one
// per application session; there is no package-level instance.
type CachingResolver struct {
	api      planAPI
	store    Store
	ttl      time.Duration
	limit    int
	selector Selector
	group    singleflight.Group
	logger   *logging.Logger
	metrics  *metrics.SchedulerMetrics
}

// ResolverOption configures a CachingResolver.
type ResolverOption func(*CachingResolver)

// WithTTL overrides the cache TTL.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *CachingResolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithSelector overrides the multi-plan tie-break.
func WithSelector(s Selector) ResolverOption {
	return func(r *CachingResolver) {
		if s != nil {
			r.selector = s
		}
	}
}

// WithLookupLimit sets how many plans to request when resolving. More
// than one only matters with a selector that inspects candidates.
func WithLookupLimit(n int) ResolverOption {
	return func(r *CachingResolver) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithMetrics attaches cache hit/miss counters.
func WithMetrics(m *metrics.SchedulerMetrics) ResolverOption {
	return func(r *CachingResolver) {
		r.metrics = m
	}
}

// NewCachingResolver builds a resolver over the given backend API and
// cache store.
func NewCachingResolver(api planAPI, store Store, logger *logging.Logger, opts ...ResolverOption) *CachingResolver {
	if logger == nil {
		logger = logging.Default()
	}
	r := &CachingResolver{
		api:      api,
		store:    store,
		ttl:      DefaultTTL,
		limit:    1,
		selector: SelectFirst,
		logger:   logger.Component("plans"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the patient's plan id, from cache when a live entry
// exists. Concurrent misses for the same patient collapse into one
// backend call.
func (r *CachingResolver) Resolve(ctx context.Context, patientID string) (string, error) {
	planID, ok, err := r.store.Get(ctx, patientID)
	if err != nil {
		// A broken cache store degrades to a backend lookup.
		r.logger.Warn("plan cache read failed", "patient_id", patientID, "error", err)
	}
	if ok {
		r.metrics.ObservePlanCacheLookup("hit")
		return planID, nil
	}
	r.metrics.ObservePlanCacheLookup("miss")

	v, err, _ := r.group.Do(patientID, func() (interface{}, error) {
		plans, err := r.api.ListActivePlans(ctx, patientID, r.limit)
		if err != nil {
			return "", fmt.Errorf("resolve plan for patient %s: %w", patientID, err)
		}
		if len(plans) == 0 {
			return "", &NoActivePlanError{PatientID: patientID}
		}
		plan := r.selector(plans)
		if err := r.store.Set(ctx, patientID, plan.ID, r.ttl); err != nil {
			r.logger.Warn("plan cache write failed", "patient_id", patientID, "error", err)
		}
		return plan.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops a patient's cached resolution, for callers who know
// the active plan changed.
func (r *CachingResolver) Invalidate(ctx context.Context, patientID string) error {
	return r.store.Delete(ctx, patientID)
}

// Clear drops every cached resolution.
func (r *CachingResolver) Clear(ctx context.Context) error {
	return r.store.Clear(ctx)
}
