//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eunoia-health/eunoia/backend/internal/model/chat"
)

func TestHistoryRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	h, err := Connect(ctx, Config{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer h.Close()

	const userID = int64(990001)
	require.NoError(t, h.Invalidate(ctx, userID))

	gen, err := h.Generation(ctx, userID)
	require.NoError(t, err)
	assert.Greater(t, gen, int64(0))

	_, ok, err := h.GetSessions(ctx, userID, gen)
	require.NoError(t, err)
	assert.False(t, ok)

	sessions := []chat.Session{{SessionID: "s1", UserID: userID, MessageCount: 2, Status: chat.StatusActive}}
	require.NoError(t, h.SetSessions(ctx, userID, gen, sessions))

	got, ok, err := h.GetSessions(ctx, userID, gen)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SessionID)

	ttl, err := h.rdb.TTL(ctx, Key(userID, gen)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, h.Invalidate(ctx, userID))
	next, err := h.Generation(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, gen+1, next)

	_, ok, err = h.GetSessions(ctx, userID, next)
	require.NoError(t, err)
	assert.False(t, ok)

	// A list filled at the old generation is never served again.
	require.NoError(t, h.SetSessions(ctx, userID, gen, sessions))
	_, ok, err = h.GetSessions(ctx, userID, next)
	require.NoError(t, err)
	assert.False(t, ok)
}
