// Package eligibility selects donors who can give blood for a recipient right
// now.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/bloodbank/internal/compatibility"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

type Finder interface {
	FindEligibleCompatibleDonors(ctx context.Context, bloodType model.BloodType, component model.Component) ([]*model.User, error)
}

type Notifier struct {
	matrix *compatibility.Matrix
	users  repository.UserRepository
	now    func() time.Time
}

func NewNotifier(matrix *compatibility.Matrix, users repository.UserRepository) *Notifier {
	return &Notifier{matrix: matrix, users: users, now: time.Now}
}

func (n *Notifier) SetClock(now func() time.Time) {
	n.now = now
}

// FindEligibleCompatibleDonors returns active donors whose blood type can be
// given to bloodType and who are available with their waiting period over.
// Each donor appears once. component is only validated: every component is
// matched against the one red cell matrix.
func (n *Notifier) FindEligibleCompatibleDonors(ctx context.Context, bloodType model.BloodType, component model.Component) ([]*model.User, error) {
	if !component.Valid() {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("unknown component %q", component), nil)
	}
	donorTypes, err := n.matrix.CompatibleDonorTypes(compatibility.Normalize(string(bloodType)))
	if err != nil {
		return nil, err
	}

	candidates, err := n.users.ListDonors(ctx, &model.DonorFilters{
		BloodTypes:   donorTypes,
		Availability: model.AvailabilityAvailable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list donors: %w", err)
	}

	now := n.now()
	seen := make(map[uuid.UUID]struct{}, len(candidates))
	eligible := make([]*model.User, 0, len(candidates))
	for _, donor := range candidates {
		if _, dup := seen[donor.ID]; dup {
			continue
		}
		if donor.BloodType == nil || !donor.EligibleAt(now) {
			continue
		}
		seen[donor.ID] = struct{}{}
		eligible = append(eligible, donor)
	}
	return eligible, nil
}
