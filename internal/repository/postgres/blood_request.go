package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

const bloodRequestColumns = `id, requesting_staff_id, blood_type, component, volume_requested_ml,
	volume_remaining_ml, urgency, status, approver_id, approved_at, rejecter_id, rejected_at,
	rejection_note, created_at, updated_at, deleted_at`

type bloodRequestRepository struct {
	BaseRepository
}

func NewBloodRequestRepository(base BaseRepository) repository.BloodRequestRepository {
	return &bloodRequestRepository{base}
}

func (r *bloodRequestRepository) Create(ctx context.Context, req *model.BloodRequest) error {
	query := `
		INSERT INTO blood_requests (
			id, requesting_staff_id, blood_type, component, volume_requested_ml,
			volume_remaining_ml, urgency, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	now := time.Now()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = now
	req.UpdatedAt = now

	_, err := r.ext(ctx).ExecContext(ctx, query,
		req.ID,
		req.RequestingStaffID,
		req.BloodType,
		req.Component,
		req.VolumeRequestedMl,
		req.VolumeRemainingMl,
		req.Urgency,
		req.Status,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create blood request: %w", err)
	}
	return nil
}

func (r *bloodRequestRepository) Get(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error) {
	return r.get(ctx, id, "")
}

func (r *bloodRequestRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *bloodRequestRepository) get(ctx context.Context, id uuid.UUID, lock string) (*model.BloodRequest, error) {
	query := `SELECT ` + bloodRequestColumns + ` FROM blood_requests WHERE id = $1 AND deleted_at IS NULL` + lock

	var req model.BloodRequest
	if err := sqlx.GetContext(ctx, r.ext(ctx), &req, query, id); err != nil {
		return nil, notFound(err, "blood request")
	}
	return &req, nil
}

func (r *bloodRequestRepository) Update(ctx context.Context, req *model.BloodRequest) error {
	query := `
		UPDATE blood_requests SET
			volume_remaining_ml = $1,
			urgency = $2,
			status = $3,
			approver_id = $4,
			approved_at = $5,
			rejecter_id = $6,
			rejected_at = $7,
			rejection_note = $8,
			updated_at = $9
		WHERE id = $10 AND deleted_at IS NULL
	`

	req.UpdatedAt = time.Now()
	result, err := r.ext(ctx).ExecContext(ctx, query,
		req.VolumeRemainingMl,
		req.Urgency,
		req.Status,
		req.ApproverID,
		req.ApprovedAt,
		req.RejecterID,
		req.RejectedAt,
		req.RejectionNote,
		req.UpdatedAt,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update blood request: %w", err)
	}

	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.NotFound("blood request", nil)
	}
	return nil
}

func (r *bloodRequestRepository) List(ctx context.Context, filters *model.BloodRequestFilters) ([]*model.BloodRequest, error) {
	query := `SELECT ` + bloodRequestColumns + ` FROM blood_requests WHERE deleted_at IS NULL`
	var args []interface{}

	if filters != nil {
		if filters.Status != "" {
			args = append(args, filters.Status)
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
		if filters.BloodType != "" {
			args = append(args, filters.BloodType)
			query += fmt.Sprintf(" AND blood_type = $%d", len(args))
		}
		if filters.StaffID != uuid.Nil {
			args = append(args, filters.StaffID)
			query += fmt.Sprintf(" AND requesting_staff_id = $%d", len(args))
		}
	}
	query += " ORDER BY created_at DESC"

	var requests []*model.BloodRequest
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &requests, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list blood requests: %w", err)
	}
	return requests, nil
}
