package redis

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
)

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
	_, err := NewRedisBroker(context.Background(), Config{URL: "not a url"}, logger.Nop(), metrics.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}

func TestPublishTripsBreakerWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	m := metrics.NewNop()
	b := NewWithClient(client, Config{BreakerFailures: 2, BreakerTimeout: time.Minute}, logger.Nop(), m)
	defer b.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		assert.Error(t, b.Publish(ctx, "c", map[string]string{"k": "v"}))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Publish(ctx, "c", "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.RedisOperations.WithLabelValues("publish", "error")))
}

func TestPublishRejectsUnmarshalable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	b := NewWithClient(client, Config{}, logger.Nop(), metrics.NewNop())
	defer b.Close()

	err := b.Publish(context.Background(), "c", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal")
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
