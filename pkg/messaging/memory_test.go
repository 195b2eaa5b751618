package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerDeliversToSubscribers(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := b.Subscribe(ctx, ChannelDomainEvents)
	require.NoError(t, err)

	msg := Message{ID: "evt-1", Type: "donation.completed", Payload: json.RawMessage(`{"unit_id":"u1"}`)}
	require.NoError(t, b.Publish(ctx, ChannelDomainEvents, msg))

	select {
	case got := <-ch:
		assert.JSONEq(t, `{"id":"evt-1","type":"donation.completed","payload":{"unit_id":"u1"}}`, string(got))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	assert.Len(t, b.Published(ChannelDomainEvents), 1)
	assert.Empty(t, b.Published(ChannelNotifications))
}

func TestMemoryBrokerUnsubscribesOnCancel(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "c")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestMemoryBrokerRejectsAfterClose(t *testing.T) {
	b := NewMemoryBroker()
	require.NoError(t, b.Close())
	assert.Error(t, b.Publish(context.Background(), "c", "x"))
	require.NoError(t, b.Close())
}
