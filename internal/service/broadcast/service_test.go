package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/internal/compatibility"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/repository/memory"
	"github.com/jwalitptl/bloodbank/internal/service/audit"
	"github.com/jwalitptl/bloodbank/internal/service/eligibility"
	"github.com/jwalitptl/bloodbank/internal/service/event"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

var now = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []*model.Notification
	fail map[string]bool
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, n *model.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	if d.fail[n.Recipient] {
		return errors.New("mailbox unavailable")
	}
	return nil
}

type fixture struct {
	repos      *repository.Repositories
	svc        *Service
	dispatcher *recordingDispatcher
	metrics    *metrics.Metrics
}

func newFixture(t *testing.T, window time.Duration) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.SetClock(func() time.Time { return now })
	repos := store.Repositories()

	finder := eligibility.NewNotifier(compatibility.Default(), repos.Users)
	finder.SetClock(func() time.Time { return now })

	f := &fixture{
		repos:      repos,
		dispatcher: &recordingDispatcher{fail: map[string]bool{}},
		metrics:    metrics.NewNop(),
	}
	auditor := audit.NewAuditLogger(audit.NewService(repos.Audits), logger.Nop())
	f.svc = NewService(repos.BloodRequests, finder, f.dispatcher, event.NewEventService(repos.Outbox),
		auditor, f.metrics, logger.Nop(), Options{DedupeWindow: window, Concurrency: 2})
	f.svc.SetClock(func() time.Time { return now })
	return f
}

func (f *fixture) donor(t *testing.T, email string, bt model.BloodType) *model.User {
	t.Helper()
	u := &model.User{Email: email, Name: email, Role: model.UserRoleDonor, Status: model.UserStatusActive, BloodType: &bt}
	require.NoError(t, f.repos.Users.Create(context.Background(), u))
	return u
}

func (f *fixture) request(t *testing.T, bt model.BloodType, status model.BloodRequestStatus, remaining int) *model.BloodRequest {
	t.Helper()
	r := &model.BloodRequest{
		RequestingStaffID: uuid.New(),
		BloodType:         bt,
		Component:         model.ComponentRedCells,
		VolumeRequestedMl: 900,
		VolumeRemainingMl: remaining,
		Urgency:           model.UrgencyEmergency,
		Status:            status,
	}
	require.NoError(t, f.repos.BloodRequests.Create(context.Background(), r))
	return r
}

func TestEmergencyBroadcastNotifiesCompatibleDonors(t *testing.T) {
	f := newFixture(t, time.Minute)
	ok := f.donor(t, "o-neg@donors.example", "O-")
	bad := f.donor(t, "bounce@donors.example", "O-")
	f.donor(t, "a-pos@donors.example", "A+")
	f.dispatcher.fail[bad.Email] = true
	req := f.request(t, "O-", model.BloodRequestStatusPartiallyFulfilled, 400)

	result, deduped, err := f.svc.EmergencyBroadcast(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, deduped)

	assert.ElementsMatch(t, []uuid.UUID{ok.ID, bad.ID}, result.Broadcast.DonorIDs)
	assert.Equal(t, 400, result.Broadcast.VolumeRemainingMl)
	assert.Equal(t, model.UrgencyEmergency, result.Broadcast.Urgency)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, f.dispatcher.sent, 2)
	assert.Contains(t, f.dispatcher.sent[0].Content, "400 ml")

	events, err := f.repos.Outbox.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventEmergencyBroadcast, events[0].EventType)

	var payload model.EmergencyBroadcast
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, req.ID, payload.RequestID)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Broadcasts.WithLabelValues(outcomeSent)))
}

func TestEmergencyBroadcastDeduplicatesWithinWindow(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.donor(t, "o-neg@donors.example", "O-")
	req := f.request(t, "O+", model.BloodRequestStatusApproved, 900)

	first, _, err := f.svc.EmergencyBroadcast(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)

	second, deduped, err := f.svc.EmergencyBroadcast(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)
	assert.True(t, deduped)
	assert.Equal(t, first.Broadcast.ID, second.Broadcast.ID)
	assert.Len(t, f.dispatcher.sent, 1)

	events, err := f.repos.Outbox.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEmergencyBroadcastRepeatsAfterWindow(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	f.donor(t, "o-neg@donors.example", "O-")
	req := f.request(t, "O-", model.BloodRequestStatusApproved, 900)

	first, _, err := f.svc.EmergencyBroadcast(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	second, deduped, err := f.svc.EmergencyBroadcast(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, deduped)
	assert.NotEqual(t, first.Broadcast.ID, second.Broadcast.ID)
}

func TestEmergencyBroadcastRejectsClosedRequests(t *testing.T) {
	f := newFixture(t, time.Minute)

	fulfilled := f.request(t, "O-", model.BloodRequestStatusFulfilled, 0)
	_, _, err := f.svc.EmergencyBroadcast(context.Background(), fulfilled.ID, uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidTransition))

	rejected := f.request(t, "O-", model.BloodRequestStatusRejected, 900)
	_, _, err = f.svc.EmergencyBroadcast(context.Background(), rejected.ID, uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidTransition))

	_, _, err = f.svc.EmergencyBroadcast(context.Background(), uuid.New(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestEmergencyBroadcastWithoutDonors(t *testing.T) {
	f := newFixture(t, time.Minute)
	req := f.request(t, "AB-", model.BloodRequestStatusPending, 300)

	result, _, err := f.svc.EmergencyBroadcast(context.Background(), req.ID, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, result.Broadcast.DonorIDs)
	assert.Zero(t, result.Delivered)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Broadcasts.WithLabelValues(outcomeNoDonors)))
}
