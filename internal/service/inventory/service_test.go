package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/internal/compatibility"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository/memory"
	"github.com/jwalitptl/bloodbank/internal/service/audit"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

var now = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func newService() (*Service, *metrics.Metrics) {
	store := memory.NewStore()
	store.SetClock(func() time.Time { return now })
	repos := store.Repositories()
	m := metrics.NewNop()
	auditor := audit.NewAuditLogger(audit.NewService(repos.Audits), logger.Nop())
	svc := NewService(repos.BloodUnits, compatibility.Default(), auditor, m, logger.Nop())
	svc.SetClock(func() time.Time { return now })
	return svc, m
}

func TestIntakeDefaultsExpiryToShelfLife(t *testing.T) {
	svc, _ := newService()
	collected := now.Add(-48 * time.Hour)

	unit, err := svc.Intake(context.Background(), uuid.New(), &model.CreateBloodUnitRequest{
		BloodType: "a+", Component: model.ComponentPlatelets, VolumeMl: 250, CollectedAt: collected,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BloodType("A+"), unit.BloodType)
	assert.Equal(t, collected.Add(5*24*time.Hour), unit.ExpiresAt)
	assert.Equal(t, model.BloodUnitStatusAvailable, unit.Status)
}

func TestIntakeOfExpiredUnit(t *testing.T) {
	svc, _ := newService()
	collected := now.Add(-10 * 24 * time.Hour)

	unit, err := svc.Intake(context.Background(), uuid.New(), &model.CreateBloodUnitRequest{
		BloodType: "O-", Component: model.ComponentPlatelets, VolumeMl: 250, CollectedAt: collected,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BloodUnitStatusExpired, unit.Status)

	units, err := svc.Available(context.Background(), "O-", model.ComponentPlatelets)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestIntakeValidation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Intake(ctx, uuid.New(), &model.CreateBloodUnitRequest{BloodType: "Q+", Component: model.ComponentPlasma, VolumeMl: 200, CollectedAt: now})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConfigurationGap))

	_, err = svc.Intake(ctx, uuid.New(), &model.CreateBloodUnitRequest{BloodType: "A+", Component: "serum", VolumeMl: 200, CollectedAt: now})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	_, err = svc.Intake(ctx, uuid.New(), &model.CreateBloodUnitRequest{BloodType: "A+", Component: model.ComponentPlasma, VolumeMl: 200, CollectedAt: now.Add(time.Hour)})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	before := now.Add(-time.Hour)
	_, err = svc.Intake(ctx, uuid.New(), &model.CreateBloodUnitRequest{BloodType: "A+", Component: model.ComponentPlasma, VolumeMl: 200, CollectedAt: now, ExpiresAt: &before})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestAvailableIsExactTypeInExpiryOrder(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	later := now.Add(20 * 24 * time.Hour)
	sooner := now.Add(3 * 24 * time.Hour)

	a, err := svc.Intake(ctx, uuid.New(), &model.CreateBloodUnitRequest{BloodType: "B+", Component: model.ComponentWholeBlood, VolumeMl: 450, CollectedAt: now, ExpiresAt: &later})
	require.NoError(t, err)
	b, err := svc.Intake(ctx, uuid.New(), &model.CreateBloodUnitRequest{BloodType: "B+", Component: model.ComponentWholeBlood, VolumeMl: 450, CollectedAt: now, ExpiresAt: &sooner})
	require.NoError(t, err)
	_, err = svc.Intake(ctx, uuid.New(), &model.CreateBloodUnitRequest{BloodType: "O-", Component: model.ComponentWholeBlood, VolumeMl: 450, CollectedAt: now})
	require.NoError(t, err)

	units, err := svc.Available(ctx, "B+", model.ComponentWholeBlood)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, b.ID, units[0].ID)
	assert.Equal(t, a.ID, units[1].ID)
}

func TestDiscard(t *testing.T) {
	svc, m := newService()
	ctx := context.Background()
	unit, err := svc.Intake(ctx, uuid.New(), &model.CreateBloodUnitRequest{BloodType: "A-", Component: model.ComponentRedCells, VolumeMl: 300, CollectedAt: now})
	require.NoError(t, err)

	discarded, err := svc.Discard(ctx, unit.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, model.BloodUnitStatusUnusable, discarded.Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InventoryDiscarded))

	_, err = svc.Discard(ctx, unit.ID, uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidTransition))

	_, err = svc.Discard(ctx, uuid.New(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}
