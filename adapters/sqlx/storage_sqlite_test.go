package sqlx_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storage "badgekit/adapters/sqlx"
	"badgekit/core"
	"badgekit/engine"
)

var _ engine.Storage = (*storage.Store)(nil)
var _ engine.PointsWriter = (*storage.Store)(nil)

func newSQLiteStore(t *testing.T) *storage.Store {
	t.Helper()
	cfg := storage.DefaultConfig(storage.DriverSQLite)
	cfg.DSN = filepath.Join(t.TempDir(), "badges.db")
	s, err := storage.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_LedgerRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	lifetime, err := s.LifetimePoints(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), lifetime)

	total, err := s.AddPoints(ctx, "alice", 120)
	require.NoError(t, err)
	assert.Equal(t, int64(120), total)
	total, err = s.AddPoints(ctx, "alice", -20)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)

	m, err := s.Multiplier(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, m.Equal(decimal.NewFromInt(1)))

	require.NoError(t, s.SetMultiplier(ctx, "alice", decimal.RequireFromString("1.75")))
	require.NoError(t, s.SetMultiplier(ctx, "bob", decimal.RequireFromString("1.1")))
	m, err = s.Multiplier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1.75", m.String())

	lifetime, err = s.LifetimePoints(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), lifetime, "multiplier writes keep the balance")
}

func TestSQLite_ProgressRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	earned := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := earned.AddDate(0, 0, 30)
	grace := core.Progress{
		Badge: "silver", Status: core.StatusGrace, CyclePoints: 60,
		Cycle:    &core.Cycle{End: end, GraceEnd: end.AddDate(0, 0, 7)},
		EarnedAt: earned, LastTransition: core.TransitionGrace, TransitionedAt: end,
	}
	bronze := core.Progress{Badge: "bronze", Status: core.StatusActive, EarnedAt: earned, LastTransition: core.TransitionEarned, TransitionedAt: earned}
	require.NoError(t, s.PutProgress(ctx, "alice", grace, bronze))

	got, err := s.GetProgress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, grace, got["silver"])
	assert.Equal(t, bronze, got["bronze"])

	require.NoError(t, s.AccrueCyclePoints(ctx, "alice", []core.BadgeID{"silver", "missing"}, 45))

	renewed := got["silver"]
	renewed.Status = core.StatusActive
	renewed.CyclePoints = 0
	renewed.Cycle = &core.Cycle{End: end.AddDate(0, 0, 30)}
	require.NoError(t, s.PutProgress(ctx, "alice", renewed))

	got, err = s.GetProgress(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.StatusActive, got["silver"].Status)
	assert.True(t, got["silver"].Cycle.GraceEnd.IsZero())
}

func TestSQLite_AccrueSkipsUnearned(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutProgress(ctx, "alice",
		core.Progress{Badge: "gold", Status: core.StatusNotEarned},
		core.Progress{Badge: "silver", Status: core.StatusDemoted, CyclePoints: 5, Cycle: &core.Cycle{End: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}},
	))
	require.NoError(t, s.AccrueCyclePoints(ctx, "alice", []core.BadgeID{"gold", "silver"}, 10))

	got, err := s.GetProgress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got["gold"].CyclePoints)
	assert.Equal(t, int64(15), got["silver"].CyclePoints)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := storage.New(context.Background(), storage.Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	pg := storage.DefaultConfig(storage.DriverPostgres)
	assert.Equal(t, 10, pg.MaxOpenConns)
	assert.True(t, pg.AutoMigrate)

	lite := storage.DefaultConfig(storage.DriverSQLite)
	assert.Equal(t, 1, lite.MaxOpenConns)
}
