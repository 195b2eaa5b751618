package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

const userColumns = `id, email, name, password_hash, role, status, phone, login_attempts,
	last_login_attempt, last_login_at, donor_number, national_id, blood_type,
	last_donation_date, next_eligible_donation_date, availability_status,
	created_at, updated_at, deleted_at`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

// Create inserts the user. Donors draw their donor number from the
// donor_number_seq sequence.
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (
			id, email, name, password_hash, role, status, phone, national_id,
			blood_type, availability_status, donor_number, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			CASE WHEN $5 = 'donor' THEN nextval('donor_number_seq') ELSE 0 END,
			$11, $12
		)
		RETURNING donor_number
	`

	now := time.Now()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == model.UserRoleDonor && user.AvailabilityStatus == "" {
		user.AvailabilityStatus = model.AvailabilityAvailable
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	err := r.ext(ctx).QueryRowxContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.Status,
		user.Phone,
		user.NationalID,
		user.BloodType,
		user.AvailabilityStatus,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.DonorNumber)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("user already exists", err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getBy(ctx, "id = $1", "", id)
}

func (r *userRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getBy(ctx, "id = $1", " FOR UPDATE", id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, "lower(email) = lower($1)", "", email)
}

func (r *userRepository) GetByNationalID(ctx context.Context, nationalID string) (*model.User, error) {
	return r.getBy(ctx, "national_id = $1", "", nationalID)
}

func (r *userRepository) getBy(ctx context.Context, where, lock string, arg interface{}) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` AND deleted_at IS NULL` + lock

	var user model.User
	if err := sqlx.GetContext(ctx, r.ext(ctx), &user, query, arg); err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			email = $1,
			name = $2,
			password_hash = $3,
			role = $4,
			status = $5,
			phone = $6,
			login_attempts = $7,
			last_login_attempt = $8,
			last_login_at = $9,
			blood_type = $10,
			updated_at = $11
		WHERE id = $12 AND deleted_at IS NULL
	`

	user.UpdatedAt = time.Now()
	result, err := r.ext(ctx).ExecContext(ctx, query,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.Status,
		user.Phone,
		user.LoginAttempts,
		user.LastLoginAttempt,
		user.LastLoginAt,
		user.BloodType,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return r.expectOne(result)
}

// UpdateEligibility writes only the donor eligibility columns.
func (r *userRepository) UpdateEligibility(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			last_donation_date = $1,
			next_eligible_donation_date = $2,
			availability_status = $3,
			updated_at = $4
		WHERE id = $5 AND deleted_at IS NULL
	`

	user.UpdatedAt = time.Now()
	result, err := r.ext(ctx).ExecContext(ctx, query,
		user.LastDonationDate,
		user.NextEligibleDonationDate,
		user.AvailabilityStatus,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update donor eligibility: %w", err)
	}
	return r.expectOne(result)
}

func (r *userRepository) expectOne(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("user", nil)
	}
	return nil
}

func (r *userRepository) ListDonors(ctx context.Context, filters *model.DonorFilters) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND status = $2 AND deleted_at IS NULL`
	args := []interface{}{model.UserRoleDonor, model.UserStatusActive}

	if filters != nil {
		if filters.BloodTypes != nil {
			names := make([]string, len(filters.BloodTypes))
			for i, t := range filters.BloodTypes {
				names[i] = string(t)
			}
			args = append(args, pq.Array(names))
			query += fmt.Sprintf(" AND blood_type = ANY($%d)", len(args))
		}
		if filters.Availability != "" {
			args = append(args, filters.Availability)
			query += fmt.Sprintf(" AND availability_status = $%d", len(args))
		}
	}
	query += " ORDER BY donor_number ASC"

	var donors []*model.User
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &donors, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list donors: %w", err)
	}
	return donors, nil
}

func (r *userRepository) RestoreAvailability(ctx context.Context, asOf time.Time) (int64, error) {
	query := `
		UPDATE users SET availability_status = $1, updated_at = NOW()
		WHERE availability_status = $2
		AND next_eligible_donation_date IS NOT NULL
		AND next_eligible_donation_date <= $3
		AND deleted_at IS NULL
	`

	result, err := r.ext(ctx).ExecContext(ctx, query,
		model.AvailabilityAvailable, model.AvailabilityTemporarilyUnavailable, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to restore donor availability: %w", err)
	}
	return rowsAffected(result)
}
