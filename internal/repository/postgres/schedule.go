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

type scheduleRepository struct {
	BaseRepository
}

func NewScheduleRepository(base BaseRepository) repository.ScheduleRepository {
	return &scheduleRepository{base}
}

func (r *scheduleRepository) Create(ctx context.Context, schedule *model.DonationSchedule) error {
	query := `
		INSERT INTO donation_schedules (
			id, location, date, max_slots, registered_slots, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now()
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	_, err := r.ext(ctx).ExecContext(ctx, query,
		schedule.ID,
		schedule.Location,
		schedule.Date.Format("2006-01-02"),
		schedule.MaxSlots,
		schedule.RegisteredSlots,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create donation schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) Get(ctx context.Context, id uuid.UUID) (*model.DonationSchedule, error) {
	query := `
		SELECT id, location, date, max_slots, registered_slots, created_at, updated_at, deleted_at
		FROM donation_schedules
		WHERE id = $1 AND deleted_at IS NULL
	`

	var schedule model.DonationSchedule
	if err := sqlx.GetContext(ctx, r.ext(ctx), &schedule, query, id); err != nil {
		return nil, notFound(err, "donation schedule")
	}
	return &schedule, nil
}

func (r *scheduleRepository) GetTimeSlot(ctx context.Context, id uuid.UUID) (*model.TimeSlot, error) {
	query := `SELECT id, schedule_id, start_time, end_time FROM donation_time_slots WHERE id = $1`

	var slot model.TimeSlot
	if err := sqlx.GetContext(ctx, r.ext(ctx), &slot, query, id); err != nil {
		return nil, notFound(err, "time slot")
	}
	return &slot, nil
}

func (r *scheduleRepository) CreateTimeSlot(ctx context.Context, slot *model.TimeSlot) error {
	query := `
		INSERT INTO donation_time_slots (id, schedule_id, start_time, end_time)
		VALUES ($1, $2, $3, $4)
	`

	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	if _, err := r.ext(ctx).ExecContext(ctx, query, slot.ID, slot.ScheduleID, slot.Start, slot.End); err != nil {
		return fmt.Errorf("failed to create time slot: %w", err)
	}
	return nil
}

func (r *scheduleRepository) ReserveSlot(ctx context.Context, scheduleID uuid.UUID) (bool, error) {
	query := `
		UPDATE donation_schedules
		SET registered_slots = registered_slots + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		AND (max_slots = 0 OR registered_slots < max_slots)
	`

	result, err := r.ext(ctx).ExecContext(ctx, query, scheduleID)
	if err != nil {
		return false, fmt.Errorf("failed to reserve schedule slot: %w", err)
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	if rows == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, scheduleID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *scheduleRepository) ReleaseSlot(ctx context.Context, scheduleID uuid.UUID) error {
	query := `
		UPDATE donation_schedules
		SET registered_slots = GREATEST(registered_slots - 1, 0), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.ext(ctx).ExecContext(ctx, query, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to release schedule slot: %w", err)
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.NotFound("donation schedule", nil)
	}
	return nil
}
