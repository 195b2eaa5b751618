// Package inventory manages blood units outside the allocation path: manual
// intake, lookups and discards.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/compatibility"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/service/audit"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

type InventoryServicer interface {
	Intake(ctx context.Context, actorID uuid.UUID, req *model.CreateBloodUnitRequest) (*model.BloodUnit, error)
	Get(ctx context.Context, id uuid.UUID) (*model.BloodUnit, error)
	List(ctx context.Context, filters *model.BloodUnitFilters) ([]*model.BloodUnit, error)
	Available(ctx context.Context, bloodType model.BloodType, component model.Component) ([]*model.BloodUnit, error)
	Discard(ctx context.Context, id, actorID uuid.UUID) (*model.BloodUnit, error)
}

type Service struct {
	units   repository.BloodUnitRepository
	matrix  *compatibility.Matrix
	auditor *audit.AuditLogger
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewService(units repository.BloodUnitRepository, matrix *compatibility.Matrix, auditor *audit.AuditLogger, m *metrics.Metrics, log *logger.Logger) *Service {
	return &Service{
		units:   units,
		matrix:  matrix,
		auditor: auditor,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Intake registers a unit collected outside the donation lifecycle. Expiry
// defaults to the component's shelf life from collection.
func (s *Service) Intake(ctx context.Context, actorID uuid.UUID, req *model.CreateBloodUnitRequest) (*model.BloodUnit, error) {
	bt := compatibility.Normalize(string(req.BloodType))
	if !s.matrix.Known(bt) {
		return nil, apperrors.NewConfigurationGap(fmt.Sprintf("unknown blood type %q", bt), nil)
	}
	if !req.Component.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown component %q", req.Component), nil)
	}
	if req.VolumeMl <= 0 {
		return nil, apperrors.NewBadRequest("volume_ml must be positive", nil)
	}
	if req.CollectedAt.After(s.now()) {
		return nil, apperrors.NewBadRequest("collected_at is in the future", nil)
	}

	expires := req.CollectedAt.Add(req.Component.ShelfLife())
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(req.CollectedAt) {
			return nil, apperrors.NewBadRequest("expires_at must be after collected_at", nil)
		}
		expires = *req.ExpiresAt
	}

	unit := &model.BloodUnit{
		BloodType:   bt,
		Component:   req.Component,
		VolumeMl:    req.VolumeMl,
		CollectedAt: req.CollectedAt,
		ExpiresAt:   expires,
		Status:      model.BloodUnitStatusAvailable,
	}
	// already past its shelf life on arrival
	unit.DegradeIfExpired(s.now())

	if err := s.units.Create(ctx, unit); err != nil {
		return nil, fmt.Errorf("failed to create blood unit: %w", err)
	}
	s.auditor.Log(ctx, actorID, model.AuditActionCreate, model.AuditEntityBloodUnit, unit.ID, &audit.LogOptions{Changes: unit})
	return unit, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.BloodUnit, error) {
	return s.units.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.BloodUnitFilters) ([]*model.BloodUnit, error) {
	if filters != nil && filters.BloodType != "" {
		filters.BloodType = compatibility.Normalize(string(filters.BloodType))
	}
	return s.units.List(ctx, filters)
}

// Available lists usable units of exactly bloodType in expiry order.
func (s *Service) Available(ctx context.Context, bloodType model.BloodType, component model.Component) ([]*model.BloodUnit, error) {
	if !component.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown component %q", component), nil)
	}
	bt := compatibility.Normalize(string(bloodType))
	if !s.matrix.Known(bt) {
		return nil, apperrors.NewConfigurationGap(fmt.Sprintf("unknown blood type %q", bt), nil)
	}
	return s.units.QueryAvailableUnits(ctx, []model.BloodType{bt}, component, s.now())
}

// Discard marks an available unit unusable.
func (s *Service) Discard(ctx context.Context, id, actorID uuid.UUID) (*model.BloodUnit, error) {
	ok, err := s.units.MarkUnusable(ctx, id)
	if err != nil {
		return nil, err
	}
	unit, err := s.units.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewInvalidTransition("blood unit", string(unit.Status), "discard")
	}

	s.metrics.InventoryDiscarded.Inc()
	s.auditor.Log(ctx, actorID, model.AuditActionDiscard, model.AuditEntityBloodUnit, id, nil)
	s.log.Info("blood unit discarded", "unit_id", id.String())
	return unit, nil
}
