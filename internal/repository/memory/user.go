package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/model"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

type userRepository struct {
	s *Store
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return apperrors.NewConflict("email already registered", nil)
		}
		if user.NationalID != nil && existing.NationalID != nil && *existing.NationalID == *user.NationalID {
			return apperrors.NewConflict("national id already registered", nil)
		}
	}
	r.s.stamp(&user.Base)
	if user.Role == model.UserRoleDonor && user.DonorNumber == 0 {
		r.s.nextDonorNumber++
		user.DonorNumber = r.s.nextDonorNumber
	}
	if user.Role == model.UserRoleDonor && user.AvailabilityStatus == "" {
		user.AvailabilityStatus = model.AvailabilityAvailable
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", nil)
	}
	return &user, nil
}

func (r *userRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.Get(ctx, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, user := range r.s.users {
		if strings.EqualFold(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, apperrors.NotFound("user", nil)
}

func (r *userRepository) GetByNationalID(ctx context.Context, nationalID string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, user := range r.s.users {
		if user.NationalID != nil && *user.NationalID == nationalID {
			found := user
			return &found, nil
		}
	}
	return nil, apperrors.NotFound("donor", nil)
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.users[user.ID]
	if !ok {
		return apperrors.NotFound("user", nil)
	}
	updated := *user
	// eligibility and identity columns are not touched by Update
	updated.DonorNumber = stored.DonorNumber
	updated.NationalID = stored.NationalID
	updated.LastDonationDate = stored.LastDonationDate
	updated.NextEligibleDonationDate = stored.NextEligibleDonationDate
	updated.AvailabilityStatus = stored.AvailabilityStatus
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = r.s.now()
	user.UpdatedAt = updated.UpdatedAt
	r.s.users[user.ID] = updated
	return nil
}

// UpdateEligibility writes only the donor eligibility columns.
func (r *userRepository) UpdateEligibility(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.users[user.ID]
	if !ok {
		return apperrors.NotFound("user", nil)
	}
	stored.LastDonationDate = user.LastDonationDate
	stored.NextEligibleDonationDate = user.NextEligibleDonationDate
	stored.AvailabilityStatus = user.AvailabilityStatus
	stored.UpdatedAt = r.s.now()
	user.UpdatedAt = stored.UpdatedAt
	r.s.users[user.ID] = stored
	return nil
}

func (r *userRepository) ListDonors(ctx context.Context, filters *model.DonorFilters) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var types map[model.BloodType]struct{}
	if filters != nil && filters.BloodTypes != nil {
		types = make(map[model.BloodType]struct{}, len(filters.BloodTypes))
		for _, t := range filters.BloodTypes {
			types[t] = struct{}{}
		}
	}

	var out []*model.User
	for _, user := range r.s.users {
		if user.Role != model.UserRoleDonor || user.Status != model.UserStatusActive {
			continue
		}
		if types != nil {
			if user.BloodType == nil {
				continue
			}
			if _, ok := types[*user.BloodType]; !ok {
				continue
			}
		}
		if filters != nil && filters.Availability != "" && user.AvailabilityStatus != filters.Availability {
			continue
		}
		found := user
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DonorNumber < out[j].DonorNumber })
	return out, nil
}

func (r *userRepository) RestoreAvailability(ctx context.Context, asOf time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var restored int64
	for id, user := range r.s.users {
		if user.AvailabilityStatus != model.AvailabilityTemporarilyUnavailable {
			continue
		}
		if user.NextEligibleDonationDate == nil || user.NextEligibleDonationDate.After(asOf) {
			continue
		}
		user.AvailabilityStatus = model.AvailabilityAvailable
		user.UpdatedAt = r.s.now()
		r.s.users[id] = user
		restored++
	}
	return restored, nil
}
