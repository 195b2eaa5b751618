// Package allocation assigns available blood units to approved requests.
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwalitptl/bloodbank/internal/compatibility"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/service/event"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/keylock"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

type AllocatorServicer interface {
	Allocate(ctx context.Context, requestID uuid.UUID) (*model.AllocationResult, error)
}

type Allocator struct {
	matrix   *compatibility.Matrix
	units    repository.BloodUnitRepository
	requests repository.BloodRequestRepository
	tx       repository.Transactor
	events   event.Emitter
	locks    *keylock.Locker
	metrics  *metrics.Metrics
	log      *logger.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewAllocator(
	matrix *compatibility.Matrix,
	repos *repository.Repositories,
	events event.Emitter,
	m *metrics.Metrics,
	log *logger.Logger,
) *Allocator {
	return &Allocator{
		matrix:   matrix,
		units:    repos.BloodUnits,
		requests: repos.BloodRequests,
		tx:       repos.Tx,
		events:   events,
		locks:    keylock.New(),
		metrics:  m,
		log:      log,
		tracer:   otel.Tracer("github.com/jwalitptl/bloodbank/internal/service/allocation"),
		now:      time.Now,
	}
}

// SetClock overrides the allocator's notion of now.
func (a *Allocator) SetClock(now func() time.Time) {
	a.now = now
}

// Allocate reserves compatible units for the request, earliest expiry first,
// until its remaining volume is covered or candidates run out. Running out
// is reported through the result, not as an error.
func (a *Allocator) Allocate(ctx context.Context, requestID uuid.UUID) (*model.AllocationResult, error) {
	ctx, span := a.tracer.Start(ctx, "allocation.Allocate",
		trace.WithAttributes(attribute.String("request.id", requestID.String())))
	defer span.End()

	start := a.now()
	defer func() {
		a.metrics.AllocationLatency.Observe(time.Since(start).Seconds())
	}()

	unlock, err := a.locks.Lock(ctx, requestID.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *model.AllocationResult
	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = a.allocate(ctx, requestID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.Allocations.WithLabelValues("error").Inc()
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("allocation.units_assigned", len(result.UnitsAssigned)),
		attribute.Int("allocation.remaining_ml", result.RemainingMl),
	)
	a.metrics.Allocations.WithLabelValues(outcome(result)).Inc()
	return result, nil
}

func (a *Allocator) allocate(ctx context.Context, requestID uuid.UUID) (*model.AllocationResult, error) {
	req, err := a.requests.GetForUpdate(ctx, requestID)
	if err != nil {
		return nil, err
	}

	// Fulfilled requests return before any inventory read.
	if req.Status == model.BloodRequestStatusFulfilled {
		return &model.AllocationResult{
			RequestID:     req.ID,
			UnitsAssigned: []*model.BloodUnit{},
			RemainingMl:   0,
			Status:        req.Status,
			Skipped:       true,
		}, nil
	}
	if !req.Status.Allocatable() {
		return nil, apperrors.NewInvalidTransition("blood request", string(req.Status), "allocate")
	}

	donorTypes, err := a.matrix.CompatibleDonorTypes(req.BloodType)
	if err != nil {
		return nil, err
	}

	asOf := a.now()
	candidates, err := a.units.QueryAvailableUnits(ctx, donorTypes, req.Component, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}

	result := &model.AllocationResult{
		RequestID:     req.ID,
		UnitsAssigned: []*model.BloodUnit{},
	}
	remaining := req.VolumeRemainingMl
	for _, unit := range candidates {
		if remaining <= 0 {
			break
		}
		ok, err := a.units.TryReserve(ctx, unit.ID, req.ID, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve unit %s: %w", unit.ID, err)
		}
		if !ok {
			a.metrics.ReservationConflicts.Inc()
			a.log.Debug("unit taken by concurrent allocation",
				"unit_id", unit.ID.String(), "request_id", req.ID.String())
			continue
		}

		credited := unit.VolumeMl
		if credited > remaining {
			credited = remaining
		}
		remaining -= credited
		result.VolumeCoveredMl += credited

		unit.Status = model.BloodUnitStatusAssigned
		linked := req.ID
		unit.LinkedRequestID = &linked
		result.UnitsAssigned = append(result.UnitsAssigned, unit)
	}

	req.VolumeRemainingMl = remaining
	if remaining == 0 {
		req.Status = model.BloodRequestStatusFulfilled
	} else {
		req.Status = model.BloodRequestStatusPartiallyFulfilled
	}
	if err := a.requests.Update(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to update blood request: %w", err)
	}

	result.RemainingMl = remaining
	result.Status = req.Status
	result.Insufficient = remaining > 0

	a.metrics.UnitsAssigned.Add(float64(len(result.UnitsAssigned)))
	a.metrics.VolumeAllocatedMl.Add(float64(result.VolumeCoveredMl))

	if len(result.UnitsAssigned) > 0 {
		if err := a.events.Emit(ctx, model.EventBloodRequestAllocated, allocatedPayload(result)); err != nil {
			return nil, err
		}
	}

	a.log.Info("allocation completed",
		"request_id", req.ID.String(),
		"units_assigned", len(result.UnitsAssigned),
		"volume_covered_ml", result.VolumeCoveredMl,
		"remaining_ml", result.RemainingMl,
		"status", string(result.Status),
	)
	return result, nil
}

func outcome(result *model.AllocationResult) string {
	switch {
	case result.Skipped:
		return "skipped"
	case result.Status == model.BloodRequestStatusFulfilled:
		return "fulfilled"
	case len(result.UnitsAssigned) > 0:
		return "partial"
	default:
		return "insufficient"
	}
}

type allocatedEvent struct {
	RequestID       uuid.UUID                `json:"request_id"`
	UnitIDs         []uuid.UUID              `json:"unit_ids"`
	VolumeCoveredMl int                      `json:"volume_covered_ml"`
	RemainingMl     int                      `json:"remaining_ml"`
	Status          model.BloodRequestStatus `json:"status"`
}

func allocatedPayload(result *model.AllocationResult) allocatedEvent {
	ids := make([]uuid.UUID, len(result.UnitsAssigned))
	for i, unit := range result.UnitsAssigned {
		ids[i] = unit.ID
	}
	return allocatedEvent{
		RequestID:       result.RequestID,
		UnitIDs:         ids,
		VolumeCoveredMl: result.VolumeCoveredMl,
		RemainingMl:     result.RemainingMl,
		Status:          result.Status,
	}
}
