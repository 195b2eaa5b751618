package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/repository/memory"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/messaging"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

type downBroker struct {
	messaging.Broker
	calls int32
}

func (b *downBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	atomic.AddInt32(&b.calls, 1)
	return errors.New("connection refused")
}

func setup(t *testing.T, broker messaging.Broker) (*repository.Repositories, *time.Time, *OutboxProcessor, *metrics.Metrics) {
	t.Helper()
	store := memory.NewStore()
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })
	repos := store.Repositories()
	m := metrics.NewNop()

	p, err := NewOutboxProcessor(repos.Outbox, repos.Tx, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Minute,
	}, logger.Nop(), m)
	require.NoError(t, err)
	p.SetClock(func() time.Time { return now })
	return repos, &now, p, m
}

func addEvent(t *testing.T, repos *repository.Repositories, eventType string) *model.OutboxEvent {
	t.Helper()
	e := &model.OutboxEvent{EventType: eventType, Payload: json.RawMessage(`{"ok":true}`)}
	require.NoError(t, repos.Outbox.Create(context.Background(), e))
	return e
}

func TestProcessBatchPublishesAndMarksProcessed(t *testing.T) {
	broker := messaging.NewMemoryBroker()
	repos, _, p, m := setup(t, broker)
	addEvent(t, repos, model.EventDonationCompleted)
	addEvent(t, repos, model.EventBloodRequestAllocated)

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	published := broker.Published(messaging.ChannelDomainEvents)
	require.Len(t, published, 2)
	var msg messaging.Message
	require.NoError(t, json.Unmarshal(published[0], &msg))
	assert.Equal(t, model.EventDonationCompleted, msg.Type)

	pending, err := repos.Outbox.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.OutboxEventsProcessed))
}

func TestProcessBatchRetriesWithBackoffThenDeadLetters(t *testing.T) {
	broker := &downBroker{}
	repos, clock, p, m := setup(t, broker)
	addEvent(t, repos, model.EventEmergencyBroadcast)
	ctx := context.Background()

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// not due yet
	pending, err := repos.Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	_, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&broker.calls))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxRetries.WithLabelValues(model.EventEmergencyBroadcast)))

	// three attempts in total; the retry delay doubles each time
	for _, wait := range []time.Duration{time.Minute, 2 * time.Minute} {
		*clock = clock.Add(wait)
		_, err = p.ProcessBatch(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(&broker.calls))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.OutboxEventsFailed))

	pending, err = repos.Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	repos := memory.NewStore().Repositories()
	_, err := NewOutboxProcessor(repos.Outbox, repos.Tx, messaging.NewMemoryBroker(), OutboxProcessorConfig{}, logger.Nop(), metrics.NewNop())
	assert.Error(t, err)
}

func TestPeriodicRunsUntilCancelled(t *testing.T) {
	var runs int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p := NewPeriodic("count", 5*time.Millisecond, func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) == 3 {
			cancel()
		}
		return errors.New("ignored")
	}, logger.Nop())
	go func() {
		p.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(3))
}
