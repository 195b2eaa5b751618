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

const registrationColumns = `r.id, r.donor_id, r.schedule_id, r.time_slot_id, r.status,
	r.checked_in_at, r.completed_at, r.cancelled_at, r.created_at, r.updated_at, r.deleted_at`

type registrationRepository struct {
	BaseRepository
}

func NewRegistrationRepository(base BaseRepository) repository.RegistrationRepository {
	return &registrationRepository{base}
}

func (r *registrationRepository) Create(ctx context.Context, reg *model.DonationRegistration) error {
	query := `
		INSERT INTO donation_registrations (
			id, donor_id, schedule_id, time_slot_id, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now()
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	reg.CreatedAt = now
	reg.UpdatedAt = now

	_, err := r.ext(ctx).ExecContext(ctx, query,
		reg.ID, reg.DonorID, reg.ScheduleID, reg.TimeSlotID, reg.Status, reg.CreatedAt, reg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("donor already registered for schedule", err)
		}
		return fmt.Errorf("failed to create donation registration: %w", err)
	}
	return nil
}

func (r *registrationRepository) Get(ctx context.Context, id uuid.UUID) (*model.DonationRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM donation_registrations r WHERE r.id = $1 AND r.deleted_at IS NULL`

	var reg model.DonationRegistration
	if err := sqlx.GetContext(ctx, r.ext(ctx), &reg, query, id); err != nil {
		return nil, notFound(err, "donation registration")
	}
	return &reg, nil
}

func (r *registrationRepository) FindActive(ctx context.Context, donorID, scheduleID uuid.UUID) (*model.DonationRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM donation_registrations r
		WHERE r.donor_id = $1 AND r.schedule_id = $2 AND r.status <> $3 AND r.deleted_at IS NULL
		LIMIT 1`

	var reg model.DonationRegistration
	if err := sqlx.GetContext(ctx, r.ext(ctx), &reg, query, donorID, scheduleID, model.RegistrationStatusCancelled); err != nil {
		return nil, notFound(err, "donation registration")
	}
	return &reg, nil
}

func (r *registrationRepository) FindByDonorOnDate(ctx context.Context, donorID uuid.UUID, day time.Time) ([]*model.DonationRegistration, error) {
	query := `SELECT ` + registrationColumns + ` FROM donation_registrations r
		JOIN donation_schedules s ON s.id = r.schedule_id
		WHERE r.donor_id = $1 AND s.date = $2::date AND r.deleted_at IS NULL
		ORDER BY r.created_at ASC`

	var regs []*model.DonationRegistration
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &regs, query, donorID, day.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("failed to find donation registrations: %w", err)
	}
	return regs, nil
}

func (r *registrationRepository) Transition(ctx context.Context, reg *model.DonationRegistration, from model.RegistrationStatus) (bool, error) {
	query := `
		UPDATE donation_registrations SET
			status = $1,
			checked_in_at = $2,
			completed_at = $3,
			cancelled_at = $4,
			updated_at = $5
		WHERE id = $6 AND status = $7 AND deleted_at IS NULL
	`

	reg.UpdatedAt = time.Now()
	result, err := r.ext(ctx).ExecContext(ctx, query,
		reg.Status,
		reg.CheckedInAt,
		reg.CompletedAt,
		reg.CancelledAt,
		reg.UpdatedAt,
		reg.ID,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition donation registration: %w", err)
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

const donationRecordColumns = `id, registration_id, donation_type_id, volume_donated_ml, test_result,
	donation_date_time, certificate_id, weight_kg, temperature_c, systolic_bp, diastolic_bp,
	created_at, updated_at, deleted_at`

type donationRecordRepository struct {
	BaseRepository
}

func NewDonationRecordRepository(base BaseRepository) repository.DonationRecordRepository {
	return &donationRecordRepository{base}
}

func (r *donationRecordRepository) Create(ctx context.Context, record *model.DonationRecord) error {
	query := `
		INSERT INTO donation_records (
			id, registration_id, donation_type_id, volume_donated_ml, test_result,
			donation_date_time, certificate_id, weight_kg, temperature_c, systolic_bp,
			diastolic_bp, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	now := time.Now()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := r.ext(ctx).ExecContext(ctx, query,
		record.ID,
		record.RegistrationID,
		record.DonationTypeID,
		record.VolumeDonatedMl,
		record.TestResult,
		record.DonationDateTime,
		record.CertificateID,
		record.WeightKg,
		record.TemperatureC,
		record.SystolicBP,
		record.DiastolicBP,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("donation record already exists for registration", err)
		}
		return fmt.Errorf("failed to create donation record: %w", err)
	}
	return nil
}

func (r *donationRecordRepository) GetByRegistration(ctx context.Context, registrationID uuid.UUID) (*model.DonationRecord, error) {
	query := `SELECT ` + donationRecordColumns + ` FROM donation_records WHERE registration_id = $1 AND deleted_at IS NULL`

	var record model.DonationRecord
	if err := sqlx.GetContext(ctx, r.ext(ctx), &record, query, registrationID); err != nil {
		return nil, notFound(err, "donation record")
	}
	return &record, nil
}

func (r *donationRecordRepository) Update(ctx context.Context, record *model.DonationRecord) error {
	query := `
		UPDATE donation_records SET
			donation_type_id = $1,
			volume_donated_ml = $2,
			test_result = $3,
			donation_date_time = $4,
			certificate_id = $5,
			weight_kg = $6,
			temperature_c = $7,
			systolic_bp = $8,
			diastolic_bp = $9,
			updated_at = $10
		WHERE id = $11 AND deleted_at IS NULL
	`

	record.UpdatedAt = time.Now()
	result, err := r.ext(ctx).ExecContext(ctx, query,
		record.DonationTypeID,
		record.VolumeDonatedMl,
		record.TestResult,
		record.DonationDateTime,
		record.CertificateID,
		record.WeightKg,
		record.TemperatureC,
		record.SystolicBP,
		record.DiastolicBP,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update donation record: %w", err)
	}
	rows, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.NotFound("donation record", nil)
	}
	return nil
}
