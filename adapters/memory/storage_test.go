package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"badgekit/core"
	"badgekit/engine"
)

var _ engine.Storage = (*Store)(nil)
var _ engine.PointsWriter = (*Store)(nil)

func TestMemoryStoreLedger(t *testing.T) {
	s := New()
	ctx := context.Background()
	total, err := s.AddPoints(ctx, "u", 5)
	if err != nil || total != 5 {
		t.Fatalf("got %v %v", total, err)
	}
	if total, _ = s.AddPoints(ctx, "u", -10); total != 0 {
		t.Fatalf("balance should floor at zero, got %d", total)
	}
	if _, err := s.AddPoints(ctx, "u", 0); err == nil {
		t.Fatal("expected zero delta error")
	}
	m, _ := s.Multiplier(ctx, "u")
	if !m.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("default multiplier should be 1, got %s", m)
	}
	if err := s.SetMultiplier(ctx, "u", decimal.RequireFromString("1.25")); err != nil {
		t.Fatal(err)
	}
	m, _ = s.Multiplier(ctx, "u")
	if m.String() != "1.25" {
		t.Fatalf("got %s", m)
	}
}

func TestMemoryStoreProgress(t *testing.T) {
	s := New()
	ctx := context.Background()
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	p := core.Progress{Badge: "gold", Status: core.StatusActive, Cycle: &core.Cycle{End: end}}
	if err := s.PutProgress(ctx, "u", p); err != nil {
		t.Fatal(err)
	}
	if err := s.AccrueCyclePoints(ctx, "u", []core.BadgeID{"gold", "missing"}, 40); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetProgress(ctx, "u")
	if got["gold"].CyclePoints != 40 {
		t.Fatalf("expected 40 cycle points, got %d", got["gold"].CyclePoints)
	}
	if _, ok := got["missing"]; ok {
		t.Fatal("accrual must not create records")
	}

	// returned records are copies
	got["gold"].Cycle.End = end.AddDate(1, 0, 0)
	again, _ := s.GetProgress(ctx, "u")
	if !again["gold"].Cycle.End.Equal(end) {
		t.Fatal("GetProgress leaked internal pointer")
	}
}

func TestMemoryStoreRejectsInvalidProgress(t *testing.T) {
	s := New()
	bad := core.Progress{Badge: "gold", Status: core.StatusGrace}
	if err := s.PutProgress(context.Background(), "u", bad); err == nil {
		t.Fatal("expected invalid progress error")
	}
}
