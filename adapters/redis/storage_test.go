package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"badgekit/core"
	"badgekit/engine"
)

var _ engine.Storage = (*Store)(nil)
var _ engine.PointsWriter = (*Store)(nil)

// newTestClient spins up a miniredis server and returns a client plus cleanup.
func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return client, mr, cleanup
}

func TestStore_AddPoints(t *testing.T) {
	client, _, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	total, err := store.AddPoints(ctx, "alice", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), total)

	total, err = store.AddPoints(ctx, "alice", 25)
	require.NoError(t, err)
	assert.Equal(t, int64(75), total)

	// balances never go negative
	total, err = store.AddPoints(ctx, "alice", -100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	lifetime, err := store.LifetimePoints(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), lifetime)
}

func TestStore_AddPoints_ZeroDelta(t *testing.T) {
	// This test doesn't need Redis connection
	store := &Store{}
	_, err := store.AddPoints(context.Background(), "alice", 0)
	assert.ErrorIs(t, err, core.ErrZeroDelta)
}

func TestStore_Multiplier(t *testing.T) {
	client, mr, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	m, err := store.Multiplier(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, m.Equal(decimal.NewFromInt(1)), "default multiplier is 1")

	require.NoError(t, store.SetMultiplier(ctx, "alice", decimal.RequireFromString("1.25")))
	raw, err := mr.Get(multiplierKey("alice"))
	require.NoError(t, err)
	assert.Equal(t, "1.25", raw)

	m, err = store.Multiplier(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, m.Equal(decimal.RequireFromString("1.25")))
}

func TestStore_Progress(t *testing.T) {
	client, mr, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	silver := core.Progress{Badge: "silver", Status: core.StatusActive, Cycle: &core.Cycle{End: end}}
	bronze := core.Progress{Badge: "bronze", Status: core.StatusNotEarned}
	require.NoError(t, store.PutProgress(ctx, "alice", silver, bronze))

	keys, err := mr.HKeys(progressKey("alice"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bronze", "silver"}, keys)

	got, err := store.GetProgress(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.StatusActive, got["silver"].Status)
	assert.True(t, got["silver"].Cycle.End.Equal(end))

	empty, err := store.GetProgress(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_PutProgressRejectsInvalid(t *testing.T) {
	client, mr, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	bad := core.Progress{Badge: "silver", Status: core.StatusGrace}
	err := store.PutProgress(context.Background(), "alice", bad)
	assert.ErrorIs(t, err, core.ErrInvalidProgress)
	assert.False(t, mr.Exists(progressKey("alice")))
}

func TestStore_AccrueCyclePoints(t *testing.T) {
	client, _, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client)
	ctx := context.Background()

	require.NoError(t, store.PutProgress(ctx, "alice",
		core.Progress{Badge: "silver", Status: core.StatusGrace, CyclePoints: 10,
			Cycle: &core.Cycle{End: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), GraceEnd: time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)}},
		core.Progress{Badge: "gold", Status: core.StatusNotEarned},
	))

	require.NoError(t, store.AccrueCyclePoints(ctx, "alice", []core.BadgeID{"silver", "gold", "missing"}, 15))
	require.NoError(t, store.AccrueCyclePoints(ctx, "alice", []core.BadgeID{"silver"}, 5))

	got, err := store.GetProgress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(30), got["silver"].CyclePoints)
	assert.Equal(t, core.StatusGrace, got["silver"].Status)
	assert.Equal(t, int64(0), got["gold"].CyclePoints, "unearned badges do not accrue")
	assert.NotContains(t, got, core.BadgeID("missing"))
}

func TestStore_NewRetriesThenFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 50 * time.Millisecond
	cfg.ConnectRetries = 1
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestStore_New(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	store, err := New(cfg)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.AddPoints(context.Background(), "bob", 3)
	require.NoError(t, err)
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Equal(t, "", config.Password)
	assert.Equal(t, 0, config.DB)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 2, config.MinIdleConns)
	assert.Equal(t, 5*time.Second, config.DialTimeout)
	assert.Equal(t, 3*time.Second, config.ReadTimeout)
	assert.Equal(t, 3*time.Second, config.WriteTimeout)
	assert.Equal(t, 3, config.ConnectRetries)
}
