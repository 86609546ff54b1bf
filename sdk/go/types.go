package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"badgekit/core"
)

// Summary mirrors the individual read model served by the API.
type Summary struct {
	Individual     string                         `json:"individual_id"`
	LifetimePoints int64                          `json:"lifetime_points"`
	Multiplier     decimal.Decimal                `json:"multiplier"`
	Progress       map[core.BadgeID]core.Progress `json:"progress"`
}

// RankEntry is one leaderboard row.
type RankEntry struct {
	Individual string          `json:"individual_id"`
	Points     int64           `json:"points"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Badge      core.BadgeID    `json:"badge,omitempty"`
	Rank       int             `json:"rank"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status  string         `json:"status"`
	Checks  map[string]any `json:"checks"`
	Pending int            `json:"pending"`
}

// EventFilter narrows an event subscription. Zero values match everything.
type EventFilter struct {
	Individual string
	Types      []core.EventType
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.Status, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyIndividual is returned when the individual id is blank.
var ErrEmptyIndividual = errors.New("individual id is required")
