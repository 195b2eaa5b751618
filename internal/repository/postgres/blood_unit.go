package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

const bloodUnitColumns = `id, source_donation_record_id, blood_type, component, volume_ml,
	collected_at, expires_at, status, linked_request_id, created_at, updated_at, deleted_at`

const fefoOrder = ` ORDER BY expires_at ASC, collected_at ASC, id ASC`

type bloodUnitRepository struct {
	BaseRepository
	now func() time.Time
}

func NewBloodUnitRepository(base BaseRepository) repository.BloodUnitRepository {
	return &bloodUnitRepository{BaseRepository: base, now: time.Now}
}

func (r *bloodUnitRepository) Create(ctx context.Context, unit *model.BloodUnit) error {
	query := `
		INSERT INTO blood_units (
			id, source_donation_record_id, blood_type, component, volume_ml,
			collected_at, expires_at, status, linked_request_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := r.now()
	if unit.ID == uuid.Nil {
		unit.ID = uuid.New()
	}
	if unit.Status == "" {
		unit.Status = model.BloodUnitStatusAvailable
	}
	unit.CreatedAt = now
	unit.UpdatedAt = now

	_, err := r.ext(ctx).ExecContext(ctx, query,
		unit.ID,
		unit.SourceDonationRecordID,
		unit.BloodType,
		unit.Component,
		unit.VolumeMl,
		unit.CollectedAt,
		unit.ExpiresAt,
		unit.Status,
		unit.LinkedRequestID,
		unit.CreatedAt,
		unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create blood unit: %w", err)
	}
	return nil
}

// expireScope narrows an expiry sweep. The zero value sweeps every unit.
type expireScope struct {
	id        *uuid.UUID
	types     []string
	component model.Component
}

// expireStale degrades available units in scope whose expiry has passed.
func (r *bloodUnitRepository) expireStale(ctx context.Context, asOf time.Time, scope expireScope) error {
	query := `
		UPDATE blood_units SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at <= $2 AND deleted_at IS NULL
	`
	args := []interface{}{model.BloodUnitStatusExpired, asOf, model.BloodUnitStatusAvailable}
	if scope.id != nil {
		args = append(args, *scope.id)
		query += fmt.Sprintf(" AND id = $%d", len(args))
	}
	if len(scope.types) > 0 {
		args = append(args, pq.Array(scope.types))
		query += fmt.Sprintf(" AND blood_type = ANY($%d)", len(args))
	}
	if scope.component != "" {
		args = append(args, scope.component)
		query += fmt.Sprintf(" AND component = $%d", len(args))
	}

	if _, err := r.ext(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to expire blood units: %w", err)
	}
	return nil
}

func (r *bloodUnitRepository) Get(ctx context.Context, id uuid.UUID) (*model.BloodUnit, error) {
	if err := r.expireStale(ctx, r.now(), expireScope{id: &id}); err != nil {
		return nil, err
	}

	query := `SELECT ` + bloodUnitColumns + ` FROM blood_units WHERE id = $1 AND deleted_at IS NULL`

	var unit model.BloodUnit
	if err := sqlx.GetContext(ctx, r.ext(ctx), &unit, query, id); err != nil {
		return nil, notFound(err, "blood unit")
	}
	return &unit, nil
}

func (r *bloodUnitRepository) List(ctx context.Context, filters *model.BloodUnitFilters) ([]*model.BloodUnit, error) {
	if err := r.expireStale(ctx, r.now(), expireScope{}); err != nil {
		return nil, err
	}

	query := `SELECT ` + bloodUnitColumns + ` FROM blood_units WHERE deleted_at IS NULL`
	var args []interface{}

	if filters != nil {
		if filters.BloodType != "" {
			args = append(args, filters.BloodType)
			query += fmt.Sprintf(" AND blood_type = $%d", len(args))
		}
		if filters.Component != "" {
			args = append(args, filters.Component)
			query += fmt.Sprintf(" AND component = $%d", len(args))
		}
		if filters.Status != "" {
			args = append(args, filters.Status)
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
		if filters.RequestID != nil {
			args = append(args, *filters.RequestID)
			query += fmt.Sprintf(" AND linked_request_id = $%d", len(args))
		}
	}
	query += fefoOrder

	var units []*model.BloodUnit
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &units, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list blood units: %w", err)
	}
	return units, nil
}

func (r *bloodUnitRepository) QueryAvailableUnits(ctx context.Context, types []model.BloodType, component model.Component, asOf time.Time) ([]*model.BloodUnit, error) {
	if len(types) == 0 {
		return nil, nil
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	// Only the candidate rows are swept so allocations for unrelated
	// types or components do not contend on the same locks.
	if err := r.expireStale(ctx, asOf, expireScope{types: names, component: component}); err != nil {
		return nil, err
	}

	query := `SELECT ` + bloodUnitColumns + ` FROM blood_units
		WHERE status = $1 AND component = $2 AND blood_type = ANY($3)
		AND expires_at > $4 AND deleted_at IS NULL` + fefoOrder

	var units []*model.BloodUnit
	err := sqlx.SelectContext(ctx, r.ext(ctx), &units, query,
		model.BloodUnitStatusAvailable, component, pq.Array(names), asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query available blood units: %w", err)
	}
	return units, nil
}

func (r *bloodUnitRepository) TryReserve(ctx context.Context, unitID, requestID uuid.UUID, asOf time.Time) (bool, error) {
	query := `
		UPDATE blood_units SET status = $1, linked_request_id = $2, updated_at = $3
		WHERE id = $4 AND status = $5 AND expires_at > $6 AND deleted_at IS NULL
	`

	result, err := r.ext(ctx).ExecContext(ctx, query,
		model.BloodUnitStatusAssigned,
		requestID,
		r.now(),
		unitID,
		model.BloodUnitStatusAvailable,
		asOf,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reserve blood unit: %w", err)
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *bloodUnitRepository) MarkUnusable(ctx context.Context, unitID uuid.UUID) (bool, error) {
	query := `
		UPDATE blood_units SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND deleted_at IS NULL
	`

	result, err := r.ext(ctx).ExecContext(ctx, query,
		model.BloodUnitStatusUnusable, r.now(), unitID, model.BloodUnitStatusAvailable)
	if err != nil {
		return false, fmt.Errorf("failed to discard blood unit: %w", err)
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	if rows == 1 {
		return true, nil
	}

	var exists bool
	if err := sqlx.GetContext(ctx, r.ext(ctx), &exists,
		`SELECT EXISTS (SELECT 1 FROM blood_units WHERE id = $1 AND deleted_at IS NULL)`, unitID); err != nil {
		return false, fmt.Errorf("failed to check blood unit: %w", err)
	}
	if !exists {
		return false, apperrors.NotFound("blood unit", nil)
	}
	return false, nil
}
