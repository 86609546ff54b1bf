package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "badgekit/adapters/memory"
	"badgekit/api/httpapi"
	"badgekit/badges"
	"badgekit/core"
	"badgekit/engine"
	"badgekit/leaderboard"
	"badgekit/realtime"
)

func newTestServer(t *testing.T, apiKeys ...string) (*httptest.Server, *realtime.Hub) {
	t.Helper()
	hub := realtime.NewHub()
	board := leaderboard.NewSkipList()
	svc, err := badges.New(
		badges.WithDefinitions(core.BadgeDefinition{
			ID:                   "silver",
			Kind:                 core.KindCumulative,
			AcquisitionThreshold: 100,
			MaintenanceThreshold: 50,
			Reset:                core.ResetSchedule{Frequency: core.FrequencyWeekly},
			Reward:               core.Reward{Multiplier: decimal.RequireFromString("2")},
			Assigned:             []core.IndividualID{"alice", "bob"},
		}),
		badges.WithStorage(mem.New()),
		badges.WithRealtime(hub),
		badges.WithLeaderboard(board),
		badges.WithDispatchMode(engine.DispatchSync),
		badges.WithDebounce(time.Hour),
	)
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	srv := httptest.NewServer(httpapi.NewRouter(svc, hub, httpapi.Options{
		PathPrefix:  "/api",
		APIKeys:     apiKeys,
		Leaderboard: board,
	}))
	t.Cleanup(srv.Close)
	return srv, hub
}

func TestClientRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, "k1")
	client, err := NewClient(srv.URL+"/api/", WithAPIKey("k1"))
	require.NoError(t, err)
	ctx := context.Background()

	total, err := client.AddPoints(ctx, "alice", 130)
	require.NoError(t, err)
	assert.Equal(t, int64(130), total)

	sum, err := client.Evaluate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(130), sum.LifetimePoints)
	assert.True(t, sum.Multiplier.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, core.StatusActive, sum.Progress["silver"].Status)

	got, err := client.GetIndividual(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Individual)

	require.NoError(t, client.ApproveTask(ctx, "bob", "chores"))
	n, err := client.Rollover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	defs, err := client.Badges(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, core.BadgeID("silver"), defs[0].ID)

	top, err := client.Leaderboard(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "alice", top[0].Individual)
	assert.Equal(t, int64(130), top[0].Points)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, core.BadgeID("silver"), top[0].Badge)
	assert.True(t, top[0].Multiplier.Equal(decimal.NewFromInt(2)))

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestClientErrors(t *testing.T) {
	srv, _ := newTestServer(t, "k1")
	ctx := context.Background()

	anon, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)
	_, err = anon.GetIndividual(ctx, "alice")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "unauthorized", apiErr.Code)

	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	require.NoError(t, err)
	_, err = client.AddPoints(ctx, "alice", 0)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	_, err = client.AddPoints(ctx, " ", 5)
	assert.ErrorIs(t, err, ErrEmptyIndividual)

	_, err = NewClient("")
	assert.Error(t, err)
}

func TestClientSubscribeEvents(t *testing.T) {
	srv, hub := newTestServer(t)
	client, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx, EventFilter{Individual: "alice", Types: []core.EventType{core.EventBadgeEarned}})
	require.NoError(t, err)
	for hub.Subscribers() == 0 {
		require.NoError(t, ctx.Err(), "subscriber never registered")
		time.Sleep(5 * time.Millisecond)
	}

	for _, id := range []string{"bob", "alice"} {
		_, err := client.AddPoints(ctx, id, 150)
		require.NoError(t, err)
		_, err = client.Evaluate(ctx, id)
		require.NoError(t, err)
	}

	select {
	case evt := <-events:
		assert.Equal(t, core.EventBadgeEarned, evt.Type)
		assert.Equal(t, core.IndividualID("alice"), evt.Individual)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/api/ws", deriveWSURL("http://localhost:8080/api"))
	assert.Equal(t, "wss://badges.example.com/ws", deriveWSURL("https://badges.example.com"))
}
