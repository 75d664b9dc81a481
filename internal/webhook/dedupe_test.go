package webhook

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeduper(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	d := NewMemoryDeduper(clk)
	ctx := context.Background()

	token, first, err := d.Claim(ctx, "delivery-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
	assert.NotEmpty(t, token)

	_, first, err = d.Claim(ctx, "delivery-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, first)

	// A stale token never releases a newer claim.
	require.NoError(t, d.Release(ctx, "delivery-1", "other"))
	_, first, _ = d.Claim(ctx, "delivery-1", time.Hour)
	assert.False(t, first)

	require.NoError(t, d.Release(ctx, "delivery-1", token))
	_, first, _ = d.Claim(ctx, "delivery-1", time.Hour)
	assert.True(t, first)

	clk.Advance(2 * time.Hour)
	_, first, _ = d.Claim(ctx, "delivery-1", time.Hour)
	assert.True(t, first, "claim expires after ttl")

	_, _, err = d.Claim(ctx, " ", time.Hour)
	assert.ErrorIs(t, err, ErrEmptyDeliveryID)
}

func TestRedisDeduper(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping Redis integration test: REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}

	d := NewRedisDeduper(client)
	ctx := context.Background()
	id := "test-" + uuid.NewString()

	token, first, err := d.Claim(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	_, first, err = d.Claim(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.False(t, first)

	require.NoError(t, d.Release(ctx, id, token))
	_, first, err = d.Claim(ctx, id, time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}
