package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/internal/compatibility"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/repository/memory"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func addDonor(t *testing.T, repos *repository.Repositories, email string, bt model.BloodType, mutate func(*model.User)) *model.User {
	t.Helper()
	u := &model.User{
		Email:     email,
		Name:      email,
		Role:      model.UserRoleDonor,
		Status:    model.UserStatusActive,
		BloodType: &bt,
	}
	if mutate != nil {
		mutate(u)
	}
	require.NoError(t, repos.Users.Create(context.Background(), u))
	return u
}

func ids(users []*model.User) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func TestFindEligibleCompatibleDonors(t *testing.T) {
	repos := memory.NewStore().Repositories()
	n := NewNotifier(compatibility.Default(), repos.Users)
	n.SetClock(func() time.Time { return now })

	past := now.Add(-time.Hour)
	future := now.Add(72 * time.Hour)

	aPos := addDonor(t, repos, "a-pos@donors.example", "A+", nil)
	oNeg := addDonor(t, repos, "o-neg@donors.example", "O-", func(u *model.User) {
		u.NextEligibleDonationDate = &past
	})
	addDonor(t, repos, "b-pos@donors.example", "B+", nil)
	addDonor(t, repos, "waiting@donors.example", "O+", func(u *model.User) {
		u.AvailabilityStatus = model.AvailabilityTemporarilyUnavailable
		u.NextEligibleDonationDate = &past
	})
	addDonor(t, repos, "future@donors.example", "A-", func(u *model.User) {
		u.NextEligibleDonationDate = &future
	})
	addDonor(t, repos, "inactive@donors.example", "O-", func(u *model.User) {
		u.Status = model.UserStatusInactive
	})

	donors, err := n.FindEligibleCompatibleDonors(context.Background(), "A+", model.ComponentWholeBlood)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{aPos.ID, oNeg.ID}, ids(donors))
}

func TestFindEligibleCompatibleDonorsNormalizesType(t *testing.T) {
	repos := memory.NewStore().Repositories()
	n := NewNotifier(compatibility.Default(), repos.Users)
	n.SetClock(func() time.Time { return now })

	ab := addDonor(t, repos, "ab@donors.example", "AB+", nil)

	donors, err := n.FindEligibleCompatibleDonors(context.Background(), " ab+ ", model.ComponentPlasma)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ab.ID}, ids(donors))
}

func TestFindEligibleCompatibleDonorsErrors(t *testing.T) {
	repos := memory.NewStore().Repositories()
	n := NewNotifier(compatibility.Default(), repos.Users)

	_, err := n.FindEligibleCompatibleDonors(context.Background(), "Z+", model.ComponentWholeBlood)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConfigurationGap))

	_, err = n.FindEligibleCompatibleDonors(context.Background(), "A+", "marrow")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestFindEligibleCompatibleDonorsEmptyPool(t *testing.T) {
	repos := memory.NewStore().Repositories()
	n := NewNotifier(compatibility.Default(), repos.Users)

	donors, err := n.FindEligibleCompatibleDonors(context.Background(), "O-", model.ComponentRedCells)
	require.NoError(t, err)
	assert.Empty(t, donors)
}

func TestFindEligibleCompatibleDonorsSameForEveryComponent(t *testing.T) {
	repos := memory.NewStore().Repositories()
	n := NewNotifier(compatibility.Default(), repos.Users)
	n.SetClock(func() time.Time { return now })

	oNeg := addDonor(t, repos, "o-neg@donors.example", "O-", nil)
	addDonor(t, repos, "ab-pos@donors.example", "AB+", nil)

	for _, c := range model.Components {
		got, err := n.FindEligibleCompatibleDonors(context.Background(), "A-", c)
		require.NoError(t, err, c)
		assert.ElementsMatch(t, []uuid.UUID{oNeg.ID}, ids(got), c)
	}
}
