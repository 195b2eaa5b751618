package event

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository/memory"
)

func TestEmitWritesPendingOutboxEvent(t *testing.T) {
	store := memory.NewStore()
	svc := NewEventService(store.Outbox())

	err := svc.Emit(context.Background(), model.EventBloodRequestApproved, map[string]string{"request_id": "r-1"})
	require.NoError(t, err)

	events, err := store.Outbox().GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventBloodRequestApproved, events[0].EventType)
	assert.Equal(t, model.OutboxStatusPending, events[0].Status)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "r-1", payload["request_id"])
}

func TestEmitRejectsUnmarshalablePayload(t *testing.T) {
	svc := NewEventService(memory.NewStore().Outbox())
	err := svc.Emit(context.Background(), model.EventDonationCompleted, make(chan int))
	assert.Error(t, err)
}

var _ Emitter = (*EventService)(nil)
