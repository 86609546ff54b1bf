package core

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates domain events.
type EventType string

const (
	EventPointsChanged EventType = "points_changed"
	EventTaskApproved  EventType = "task_approved"
	EventBadgeEarned   EventType = "badge_earned"
	EventBadgeUpdated  EventType = "badge_updated"
)

// KnownEventTypes lists every event type the engine publishes.
func KnownEventTypes() []EventType {
	return []EventType{EventPointsChanged, EventTaskApproved, EventBadgeEarned, EventBadgeUpdated}
}

// ParseEventType returns the known event type named s.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.TrimSpace(s))
	if !slices.Contains(KnownEventTypes(), t) {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Reasons carried in badge_earned metadata.
const (
	ReasonAcquired = "acquired"
	ReasonRenewed  = "renewed"
)

// Event represents an immutable domain event.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Time       time.Time      `json:"time"`
	Individual IndividualID   `json:"individual_id"`
	Badge      BadgeID        `json:"badge_id,omitempty"`
	Status     Status         `json:"status,omitempty"`
	Delta      int64          `json:"delta,omitempty"`
	Task       string         `json:"task,omitempty"`
	Reward     *Reward        `json:"reward,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func newEvent(typ EventType, id IndividualID) Event {
	return Event{ID: uuid.NewString(), Type: typ, Time: time.Now().UTC(), Individual: id}
}

func NewPointsChanged(id IndividualID, delta int64) Event {
	ev := newEvent(EventPointsChanged, id)
	ev.Delta = delta
	return ev
}

func NewTaskApproved(id IndividualID, task string) Event {
	ev := newEvent(EventTaskApproved, id)
	ev.Task = task
	return ev
}

// NewBadgeEarned carries the reward manifest of a first award or a maintenance renewal.
func NewBadgeEarned(id IndividualID, badge BadgeID, reward Reward, reason string) Event {
	ev := newEvent(EventBadgeEarned, id)
	ev.Badge = badge
	ev.Status = StatusActive
	r := reward
	r.Items = append([]string(nil), reward.Items...)
	ev.Reward = &r
	ev.Metadata = map[string]any{"reason": reason}
	return ev
}

func NewBadgeUpdated(id IndividualID, badge BadgeID, status Status) Event {
	ev := newEvent(EventBadgeUpdated, id)
	ev.Badge = badge
	ev.Status = status
	return ev
}
