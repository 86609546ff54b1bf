package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	wsadapter "badgekit/adapters/websocket"
	"badgekit/core"
	"badgekit/engine"
	"badgekit/leaderboard"
	"badgekit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigins, if non-empty, enables CORS for the given origins (use "*" for any).
	AllowCORSOrigins []string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// Logger receives request and error logs; defaults to slog.Default().
	Logger *slog.Logger
	// Leaderboard, if set, is served under /leaderboard.
	Leaderboard leaderboard.Board
}

type handler struct {
	svc    *engine.Service
	board  leaderboard.Board
	logger *slog.Logger
}

// NewRouter builds an http.Handler exposing the badge engine triggers, read
// endpoints and the WebSocket event stream.
// Routes:
//   - POST {prefix}/individuals/{id}/points?delta=50
//   - POST {prefix}/individuals/{id}/tasks/{task}/approve
//   - GET  {prefix}/individuals/{id}
//   - POST {prefix}/evaluate/{id}
//   - POST {prefix}/rollover
//   - GET  {prefix}/badges
//   - GET  {prefix}/leaderboard?limit=10
//   - GET  {prefix}/leaderboard/{id}
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewRouter(svc *engine.Service, hub *realtime.Hub, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{svc: svc, board: opts.Leaderboard, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	if len(opts.AllowCORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowCORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Route(prefix(opts.PathPrefix), func(r chi.Router) {
		r.Get("/healthz", h.healthCheck)

		r.Group(func(r chi.Router) {
			if len(opts.APIKeys) > 0 {
				r.Use(apiKeyAuth(opts.APIKeys))
			}
			if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
				r.Use(rateLimit(opts.RateLimitRPM, opts.RateLimitBurst))
			}

			r.Route("/individuals/{id}", func(r chi.Router) {
				r.Get("/", h.getIndividual)
				r.Post("/points", h.addPoints)
				r.Post("/tasks/{task}/approve", h.approveTask)
			})
			r.Post("/evaluate/{id}", h.evaluate)
			r.Post("/rollover", h.rollover)
			r.Get("/badges", h.listBadges)
			if h.board != nil {
				r.Get("/leaderboard", h.topN)
				r.Get("/leaderboard/{id}", h.rank)
			}
			if hub != nil {
				r.Handle("/ws", wsadapter.Handler(hub, logger))
			}
		})
	})
	return r
}

func prefix(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func (h *handler) individual(w http.ResponseWriter, r *http.Request) (core.IndividualID, bool) {
	id, err := core.NormalizeIndividualID(core.IndividualID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_individual", err.Error(), nil)
		return "", false
	}
	return id, true
}

func (h *handler) addPoints(w http.ResponseWriter, r *http.Request) {
	id, ok := h.individual(w, r)
	if !ok {
		return
	}
	delta, err := strconv.ParseInt(r.URL.Query().Get("delta"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_delta", "delta must be an integer", nil)
		return
	}
	total, err := h.svc.AddPoints(r.Context(), id, delta)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"individual_id": id, "lifetime_points": total})
}

func (h *handler) approveTask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.individual(w, r)
	if !ok {
		return
	}
	task := strings.TrimSpace(chi.URLParam(r, "task"))
	if task == "" {
		writeError(w, http.StatusBadRequest, "invalid_task", "task is required", nil)
		return
	}
	if err := h.svc.OnTaskApproved(r.Context(), id, task); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"scheduled": true})
}

func (h *handler) getIndividual(w http.ResponseWriter, r *http.Request) {
	id, ok := h.individual(w, r)
	if !ok {
		return
	}
	sum, err := h.svc.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handler) evaluate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.individual(w, r)
	if !ok {
		return
	}
	if err := h.svc.Evaluate(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	sum, err := h.svc.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handler) rollover(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.OnDailyRollover(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"scheduled": n})
}

func (h *handler) listBadges(w http.ResponseWriter, r *http.Request) {
	defs, err := h.svc.Definitions(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": defs})
}

const maxLeaderboardLimit = 100

func (h *handler) topN(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.board.TopN(limit)})
}

func (h *handler) rank(w http.ResponseWriter, r *http.Request) {
	id, ok := h.individual(w, r)
	if !ok {
		return
	}
	e, found := h.board.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, "not_ranked", "individual is not on the leaderboard", nil)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// healthCheck verifies the storage answers a read for a sentinel individual.
func (h *handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "healthy",
		"checks":  map[string]any{"storage": "ok"},
		"pending": h.svc.Scheduler().Pending(),
	}
	code := http.StatusOK
	if _, err := h.svc.Summary(r.Context(), "healthcheck_sentinel"); err != nil {
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"] = map[string]any{"storage": "failed"}
	}
	writeJSON(w, code, status)
}

// fail maps engine errors to HTTP statuses.
func (h *handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrZeroDelta), errors.Is(err, core.ErrEmptyIndividual), errors.Is(err, core.ErrOverflow):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, core.ErrUnknownBadge):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrReadOnlyLedger):
		writeError(w, http.StatusNotImplemented, "read_only", err.Error(), nil)
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, apiError{Code: code, Message: msg, Details: details})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

// apiKeyAuth enforces a shared API key list.
func apiKeyAuth(apiKeys []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
				return
			}
			if _, ok := allowed[key]; !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit applies a token-bucket limiter per client key.
func rateLimit(rpm, burst int) func(http.Handler) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(clientKey(r)) {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}
	b.tokens = min(b.tokens+now.Sub(b.last).Minutes()*l.rpm, l.burst)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
