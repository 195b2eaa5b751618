package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/model"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

type bloodUnitRepository struct {
	s *Store
}

func (r *bloodUnitRepository) Create(ctx context.Context, unit *model.BloodUnit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.stamp(&unit.Base)
	if unit.Status == "" {
		unit.Status = model.BloodUnitStatusAvailable
	}
	r.s.units[unit.ID] = *unit
	return nil
}

func (r *bloodUnitRepository) Get(ctx context.Context, id uuid.UUID) (*model.BloodUnit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	unit, ok := r.s.units[id]
	if !ok {
		return nil, apperrors.NotFound("blood unit", nil)
	}
	if unit.DegradeIfExpired(r.s.now()) {
		r.s.units[id] = unit
	}
	return &unit, nil
}

func (r *bloodUnitRepository) List(ctx context.Context, filters *model.BloodUnitFilters) ([]*model.BloodUnit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	var out []*model.BloodUnit
	for id, unit := range r.s.units {
		if unit.DegradeIfExpired(now) {
			r.s.units[id] = unit
		}
		if filters != nil {
			if filters.BloodType != "" && unit.BloodType != filters.BloodType {
				continue
			}
			if filters.Component != "" && unit.Component != filters.Component {
				continue
			}
			if filters.Status != "" && unit.Status != filters.Status {
				continue
			}
			if filters.RequestID != nil && (unit.LinkedRequestID == nil || *unit.LinkedRequestID != *filters.RequestID) {
				continue
			}
		}
		u := unit
		out = append(out, &u)
	}
	sortFEFO(out)
	return out, nil
}

func (r *bloodUnitRepository) QueryAvailableUnits(ctx context.Context, types []model.BloodType, component model.Component, asOf time.Time) ([]*model.BloodUnit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	wanted := make(map[model.BloodType]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}

	var out []*model.BloodUnit
	for id, unit := range r.s.units {
		if unit.DegradeIfExpired(asOf) {
			r.s.units[id] = unit
			continue
		}
		if unit.Status != model.BloodUnitStatusAvailable || unit.Component != component {
			continue
		}
		if _, ok := wanted[unit.BloodType]; !ok {
			continue
		}
		u := unit
		out = append(out, &u)
	}
	sortFEFO(out)
	return out, nil
}

func (r *bloodUnitRepository) TryReserve(ctx context.Context, unitID, requestID uuid.UUID, asOf time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	unit, ok := r.s.units[unitID]
	if !ok || !unit.Usable(asOf) {
		return false, nil
	}
	rid := requestID
	unit.Status = model.BloodUnitStatusAssigned
	unit.LinkedRequestID = &rid
	unit.UpdatedAt = r.s.now()
	r.s.units[unitID] = unit
	return true, nil
}

func (r *bloodUnitRepository) MarkUnusable(ctx context.Context, unitID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	unit, ok := r.s.units[unitID]
	if !ok {
		return false, apperrors.NotFound("blood unit", nil)
	}
	if unit.Status != model.BloodUnitStatusAvailable {
		return false, nil
	}
	unit.Status = model.BloodUnitStatusUnusable
	unit.UpdatedAt = r.s.now()
	r.s.units[unitID] = unit
	return true, nil
}

// sortFEFO orders earliest expiry first, then earliest collection, then id.
func sortFEFO(units []*model.BloodUnit) {
	sort.SliceStable(units, func(i, j int) bool {
		a, b := units[i], units[j]
		if !a.ExpiresAt.Equal(b.ExpiresAt) {
			return a.ExpiresAt.Before(b.ExpiresAt)
		}
		if !a.CollectedAt.Equal(b.CollectedAt) {
			return a.CollectedAt.Before(b.CollectedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
