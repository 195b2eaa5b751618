package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository/memory"
	"github.com/jwalitptl/bloodbank/pkg/logger"
)

func TestRetentionCleanerRemovesOldRows(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	storeClock := now.AddDate(0, 0, -60)
	store := memory.NewStore()
	store.SetClock(func() time.Time { return storeClock })
	repos := store.Repositories()
	ctx := context.Background()

	entity := uuid.New()
	old := &model.AuditLog{UserID: uuid.New(), Action: model.AuditActionCreate, EntityType: model.AuditEntityBloodUnit, EntityID: entity, CreatedAt: now.AddDate(0, 0, -100)}
	fresh := &model.AuditLog{UserID: uuid.New(), Action: model.AuditActionDiscard, EntityType: model.AuditEntityBloodUnit, EntityID: entity, CreatedAt: now.AddDate(0, 0, -1)}
	require.NoError(t, repos.Audits.Create(ctx, old))
	require.NoError(t, repos.Audits.Create(ctx, fresh))

	stale := &model.OutboxEvent{EventType: model.EventDonationCompleted, Payload: json.RawMessage(`{}`)}
	require.NoError(t, repos.Outbox.Create(ctx, stale))
	require.NoError(t, repos.Outbox.UpdateStatus(ctx, stale.ID, model.OutboxStatusProcessed, nil, nil))

	storeClock = now
	recent := &model.OutboxEvent{EventType: model.EventDonationCompleted, Payload: json.RawMessage(`{}`)}
	require.NoError(t, repos.Outbox.Create(ctx, recent))
	require.NoError(t, repos.Outbox.UpdateStatus(ctx, recent.ID, model.OutboxStatusProcessed, nil, nil))

	w := NewRetentionCleaner(repos.Audits, repos.Outbox, 30, logger.Nop())
	w.SetClock(func() time.Time { return now })
	require.NoError(t, w.Run(ctx))

	logs, err := repos.Audits.ListByEntity(ctx, model.AuditEntityBloodUnit, entity)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, fresh.ID, logs[0].ID)

	deleted, err := repos.Outbox.DeleteProcessedBefore(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted, "only the recent event should have survived")
}

func TestRetentionCleanerDisabled(t *testing.T) {
	repos := memory.NewStore().Repositories()
	w := NewRetentionCleaner(repos.Audits, repos.Outbox, 0, logger.Nop())
	assert.NoError(t, w.Run(context.Background()))
}

type countingRestorer struct{ calls int }

func (c *countingRestorer) RestoreAvailability(ctx context.Context) (int64, error) {
	c.calls++
	return 2, nil
}

func TestAvailabilityTask(t *testing.T) {
	r := &countingRestorer{}
	require.NoError(t, AvailabilityTask(r)(context.Background()))
	assert.Equal(t, 1, r.calls)
}
