package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"badgekit/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1)

	ev := core.NewPointsChanged("bob", 10)
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.Individual != "bob" || received.Type != core.EventPointsChanged {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	_, ok := <-ch
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Subscribers())
	}
}

func TestHubFilters(t *testing.T) {
	h := NewHub()
	_, alice := h.SubscribeFiltered(4, Filter{Individual: "alice"})
	_, badges := h.SubscribeFiltered(4, Filter{Types: []core.EventType{core.EventBadgeEarned, core.EventBadgeUpdated}})

	h.Broadcast(context.Background(), core.NewPointsChanged("alice", 5))
	h.Broadcast(context.Background(), core.NewBadgeUpdated("bob", "gold", core.StatusDemoted))

	if len(alice) != 1 {
		t.Fatalf("alice subscriber want 1 event, got %d", len(alice))
	}
	if len(badges) != 1 {
		t.Fatalf("badge subscriber want 1 event, got %d", len(badges))
	}
	if ev := <-badges; ev.Badge != "gold" {
		t.Fatalf("unexpected badge event: %+v", ev)
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe(1)
	h.Broadcast(context.Background(), core.NewPointsChanged("a", 1))
	h.Broadcast(context.Background(), core.NewPointsChanged("a", 2))
	if len(ch) != 1 || h.Dropped() != 1 {
		t.Fatalf("want 1 queued and 1 dropped, got %d and %d", len(ch), h.Dropped())
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewBadgeEarned("alice", "silver", core.Reward{Points: 25, Items: []string{"sticker"}}, core.ReasonRenewed)
	b := MarshalJSON(ev)
	var out core.Event
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Badge != "silver" || out.Reward == nil || out.Reward.Points != 25 {
		t.Fatalf("unexpected event: %+v", out)
	}
	if out.Metadata["reason"] != core.ReasonRenewed {
		t.Fatalf("unexpected reason: %v", out.Metadata["reason"])
	}
}
