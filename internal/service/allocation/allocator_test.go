package allocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/internal/compatibility"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/repository/memory"
	"github.com/jwalitptl/bloodbank/internal/service/event"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

var now = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	repos     *repository.Repositories
	allocator *Allocator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.SetClock(func() time.Time { return now })
	repos := store.Repositories()

	a := NewAllocator(compatibility.Default(), repos, event.NewEventService(repos.Outbox), metrics.NewNop(), logger.Nop())
	a.SetClock(func() time.Time { return now })
	return &fixture{store: store, repos: repos, allocator: a}
}

func (f *fixture) unit(t *testing.T, bt model.BloodType, volume int, expiresIn time.Duration) *model.BloodUnit {
	t.Helper()
	u := &model.BloodUnit{
		BloodType:   bt,
		Component:   model.ComponentWholeBlood,
		VolumeMl:    volume,
		CollectedAt: now.Add(-24 * time.Hour),
		ExpiresAt:   now.Add(expiresIn),
	}
	require.NoError(t, f.repos.BloodUnits.Create(context.Background(), u))
	return u
}

func (f *fixture) request(t *testing.T, bt model.BloodType, volume int, status model.BloodRequestStatus) *model.BloodRequest {
	t.Helper()
	r := &model.BloodRequest{
		RequestingStaffID: uuid.New(),
		BloodType:         bt,
		Component:         model.ComponentWholeBlood,
		VolumeRequestedMl: volume,
		VolumeRemainingMl: volume,
		Urgency:           model.UrgencyUrgent,
		Status:            status,
	}
	require.NoError(t, f.repos.BloodRequests.Create(context.Background(), r))
	return r
}

func (f *fixture) status(t *testing.T, id uuid.UUID) model.BloodUnitStatus {
	t.Helper()
	u, err := f.repos.BloodUnits.Get(context.Background(), id)
	require.NoError(t, err)
	return u.Status
}

const day = 24 * time.Hour

func TestAllocateFulfilsFromCompatibleUnits(t *testing.T) {
	f := newFixture(t)
	first := f.unit(t, "O-", 300, 2*day)
	second := f.unit(t, "O-", 250, 5*day)
	incompatible := f.unit(t, "A+", 500, 1*day)
	req := f.request(t, "O-", 500, model.BloodRequestStatusApproved)

	result, err := f.allocator.Allocate(context.Background(), req.ID)
	require.NoError(t, err)

	require.Len(t, result.UnitsAssigned, 2)
	assert.Equal(t, first.ID, result.UnitsAssigned[0].ID)
	assert.Equal(t, second.ID, result.UnitsAssigned[1].ID)
	assert.Equal(t, 0, result.RemainingMl)
	assert.Equal(t, 500, result.VolumeCoveredMl)
	assert.Equal(t, model.BloodRequestStatusFulfilled, result.Status)
	assert.False(t, result.Insufficient)
	assert.Equal(t, model.BloodUnitStatusAvailable, f.status(t, incompatible.ID))

	stored, err := f.repos.BloodRequests.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.VolumeRemainingMl)
	assert.Equal(t, model.BloodRequestStatusFulfilled, stored.Status)
}

func TestAllocatePartialWhenInventoryShort(t *testing.T) {
	f := newFixture(t)
	only := f.unit(t, "O-", 200, 2*day)
	req := f.request(t, "O-", 500, model.BloodRequestStatusApproved)

	result, err := f.allocator.Allocate(context.Background(), req.ID)
	require.NoError(t, err)

	assert.Equal(t, 300, result.RemainingMl)
	assert.Equal(t, model.BloodRequestStatusPartiallyFulfilled, result.Status)
	assert.True(t, result.Insufficient)
	assert.Equal(t, model.BloodUnitStatusAssigned, f.status(t, only.ID))
}

func TestAllocateConsumesEarliestExpiryFirst(t *testing.T) {
	f := newFixture(t)
	plus1 := f.unit(t, "O-", 100, 1*day)
	plus5 := f.unit(t, "O-", 100, 5*day)
	plus3 := f.unit(t, "O-", 100, 3*day)
	req := f.request(t, "O-", 300, model.BloodRequestStatusApproved)

	result, err := f.allocator.Allocate(context.Background(), req.ID)
	require.NoError(t, err)

	require.Len(t, result.UnitsAssigned, 3)
	assert.Equal(t, []uuid.UUID{plus1.ID, plus3.ID, plus5.ID}, []uuid.UUID{
		result.UnitsAssigned[0].ID, result.UnitsAssigned[1].ID, result.UnitsAssigned[2].ID,
	})
}

func TestAllocateSkipsExpiredUnits(t *testing.T) {
	f := newFixture(t)
	expired := f.unit(t, "O-", 450, -time.Hour)
	req := f.request(t, "O-", 450, model.BloodRequestStatusApproved)

	result, err := f.allocator.Allocate(context.Background(), req.ID)
	require.NoError(t, err)

	assert.Empty(t, result.UnitsAssigned)
	assert.Equal(t, model.BloodUnitStatusExpired, f.status(t, expired.ID))
}

func TestAllocateNoCompatibleInventoryIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.unit(t, "AB+", 450, 2*day)
	req := f.request(t, "O-", 450, model.BloodRequestStatusApproved)

	result, err := f.allocator.Allocate(context.Background(), req.ID)
	require.NoError(t, err)

	assert.True(t, result.Insufficient)
	assert.Equal(t, 0, result.VolumeCoveredMl)
	assert.Equal(t, 450, result.RemainingMl)
	assert.Equal(t, model.BloodRequestStatusPartiallyFulfilled, result.Status)
}

type countingUnits struct {
	repository.BloodUnitRepository
	queries int
}

func (c *countingUnits) QueryAvailableUnits(ctx context.Context, types []model.BloodType, component model.Component, asOf time.Time) ([]*model.BloodUnit, error) {
	c.queries++
	return c.BloodUnitRepository.QueryAvailableUnits(ctx, types, component, asOf)
}

func TestAllocateFulfilledRequestIsNoOp(t *testing.T) {
	f := newFixture(t)
	counter := &countingUnits{BloodUnitRepository: f.repos.BloodUnits}
	f.allocator.units = counter
	f.unit(t, "O-", 450, 2*day)

	req := f.request(t, "O-", 450, model.BloodRequestStatusFulfilled)
	req.VolumeRemainingMl = 0
	require.NoError(t, f.repos.BloodRequests.Update(context.Background(), req))

	for i := 0; i < 2; i++ {
		result, err := f.allocator.Allocate(context.Background(), req.ID)
		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Empty(t, result.UnitsAssigned)
	}
	assert.Equal(t, 0, counter.queries)
}

func TestAllocateRequiresApprovedRequest(t *testing.T) {
	for _, status := range []model.BloodRequestStatus{model.BloodRequestStatusPending, model.BloodRequestStatusRejected} {
		f := newFixture(t)
		req := f.request(t, "O-", 450, status)

		_, err := f.allocator.Allocate(context.Background(), req.ID)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidTransition), string(status))
	}
}

func TestAllocateUnknownBloodTypeIsConfigurationGap(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "Z+", 450, model.BloodRequestStatusApproved)

	_, err := f.allocator.Allocate(context.Background(), req.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConfigurationGap))
}

func TestAllocateUnknownRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.allocator.Allocate(context.Background(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestConcurrentAllocationsReserveUnitOnce(t *testing.T) {
	f := newFixture(t)
	unit := f.unit(t, "O-", 450, 2*day)

	const n = 12
	requests := make([]*model.BloodRequest, n)
	for i := range requests {
		requests[i] = f.request(t, "O-", 450, model.BloodRequestStatusApproved)
	}

	var wg sync.WaitGroup
	results := make([]*model.AllocationResult, n)
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.allocator.Allocate(context.Background(), requests[i].ID)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, res := range results {
		require.NotNil(t, res)
		if len(res.UnitsAssigned) == 1 {
			winners++
			assert.Equal(t, unit.ID, res.UnitsAssigned[0].ID)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestVolumeIsConservedAcrossAllocations(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "A+", 1000, model.BloodRequestStatusApproved)

	covered := 0
	for _, volume := range []int{300, 450, 400} {
		f.unit(t, "O+", volume, 3*day)
		result, err := f.allocator.Allocate(context.Background(), req.ID)
		require.NoError(t, err)
		covered += result.VolumeCoveredMl

		stored, err := f.repos.BloodRequests.Get(context.Background(), req.ID)
		require.NoError(t, err)
		assert.Equal(t, stored.VolumeRequestedMl, stored.VolumeRemainingMl+covered)
		assert.Equal(t, stored.VolumeRemainingMl == 0, stored.Status == model.BloodRequestStatusFulfilled)
	}
	assert.Equal(t, 1000, covered)
}

func TestAllocationEmitsEvent(t *testing.T) {
	f := newFixture(t)
	f.unit(t, "O-", 450, 2*day)
	req := f.request(t, "O-", 450, model.BloodRequestStatusApproved)

	_, err := f.allocator.Allocate(context.Background(), req.ID)
	require.NoError(t, err)

	events, err := f.repos.Outbox.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventBloodRequestAllocated, events[0].EventType)
}
