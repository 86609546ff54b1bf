// Package sdk is a Go client for the badgekit HTTP and WebSocket API.
package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"badgekit/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the badgekit API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a client targeting baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAPIKey sends key as X-API-Key on HTTP and WS calls.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// AddPoints moves an individual's balance by delta and returns the new total.
func (c *Client) AddPoints(ctx context.Context, id string, delta int64) (int64, error) {
	if strings.TrimSpace(id) == "" {
		return 0, ErrEmptyIndividual
	}
	q := url.Values{"delta": {strconv.FormatInt(delta, 10)}}
	var body struct {
		Total int64 `json:"lifetime_points"`
	}
	if err := c.do(ctx, http.MethodPost, "/individuals/"+url.PathEscape(id)+"/points", q, &body); err != nil {
		return 0, err
	}
	return body.Total, nil
}

// ApproveTask reports an approved task so the individual is re-evaluated.
func (c *Client) ApproveTask(ctx context.Context, id, task string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyIndividual
	}
	path := "/individuals/" + url.PathEscape(id) + "/tasks/" + url.PathEscape(task) + "/approve"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// GetIndividual fetches the stored summary without evaluating.
func (c *Client) GetIndividual(ctx context.Context, id string) (Summary, error) {
	if strings.TrimSpace(id) == "" {
		return Summary{}, ErrEmptyIndividual
	}
	var s Summary
	err := c.do(ctx, http.MethodGet, "/individuals/"+url.PathEscape(id), nil, &s)
	return s, err
}

// Evaluate runs an immediate evaluation and returns the resulting summary.
func (c *Client) Evaluate(ctx context.Context, id string) (Summary, error) {
	if strings.TrimSpace(id) == "" {
		return Summary{}, ErrEmptyIndividual
	}
	var s Summary
	err := c.do(ctx, http.MethodPost, "/evaluate/"+url.PathEscape(id), nil, &s)
	return s, err
}

// Rollover triggers the daily rollover and returns how many individuals were scheduled.
func (c *Client) Rollover(ctx context.Context) (int, error) {
	var body struct {
		Scheduled int `json:"scheduled"`
	}
	err := c.do(ctx, http.MethodPost, "/rollover", nil, &body)
	return body.Scheduled, err
}

// Badges lists the badge catalog.
func (c *Client) Badges(ctx context.Context) ([]core.BadgeDefinition, error) {
	var body struct {
		Badges []core.BadgeDefinition `json:"badges"`
	}
	err := c.do(ctx, http.MethodGet, "/badges", nil, &body)
	return body.Badges, err
}

// Leaderboard returns the top entries ranked by points, then multiplier.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]RankEntry, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var body struct {
		Entries []RankEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/leaderboard", q, &body)
	return body.Entries, err
}

// Health calls /healthz. An unhealthy server answers 503, returned as *APIError.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &hs)
	return hs, err
}

// SubscribeEvents connects to the WebSocket stream and emits matching events.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, filter EventFilter) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	q := url.Values{}
	if filter.Individual != "" {
		q.Set("individual", filter.Individual)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		q.Set("types", strings.Join(types, ","))
	}
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, target any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	for k, vals := range c.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
