package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	jsonfileAdapter "badgekit/adapters/jsonfile"
	mem "badgekit/adapters/memory"
	redisAdapter "badgekit/adapters/redis"
	sqlxAdapter "badgekit/adapters/sqlx"
	"badgekit/api/httpapi"
	"badgekit/badges"
	"badgekit/catalog"
	"badgekit/config"
	"badgekit/engine"
	"badgekit/integrations/webhook"
	"badgekit/leaderboard"
	"badgekit/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Hub      *realtime.Hub
	Service  *engine.Service
	Rollover *engine.Rollover
	Handler  http.Handler
	Server   *http.Server
}

func provideConfig() (*config.Config, error) {
	if path := os.Getenv("BADGEKIT_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideLeaderboard() leaderboard.Board {
	return leaderboard.NewSkipList()
}

func provideCatalog(cfg *config.Config, logger *slog.Logger) (engine.Catalog, error) {
	if cfg.Engine.CatalogPath == "" {
		logger.Warn("no badge catalog configured, starting with an empty catalog")
		return catalog.New()
	}
	c, err := catalog.LoadFile(cfg.Engine.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defs, _ := c.Definitions(context.Background())
	logger.Info("badge catalog loaded", "path", cfg.Engine.CatalogPath, "badges", len(defs))
	return c, nil
}

func provideStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Storage, func(), error) {
	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Error("failed to close storage", "error", err)
			}
		}
	}
	return store, cleanup, nil
}

func provideWebhook(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	if len(cfg.Webhook.Endpoints) == 0 {
		return nil
	}
	opts := []webhook.Option{
		webhook.WithClient(&http.Client{Timeout: cfg.Webhook.Timeout}),
		webhook.WithRetries(cfg.Webhook.Retries),
		webhook.WithLogger(logger),
	}
	if len(cfg.Webhook.Types) > 0 {
		opts = append(opts, webhook.WithTypes(cfg.Webhook.Types...))
	}
	return webhook.New(cfg.Webhook.Endpoints, opts...)
}

func provideService(cfg *config.Config, logger *slog.Logger, cat engine.Catalog, store engine.Storage, hub *realtime.Hub, board leaderboard.Board, sink *webhook.Sink) (*engine.Service, func(), error) {
	mode := engine.DispatchSync
	if cfg.Engine.AsyncEvents {
		mode = engine.DispatchAsync
	}
	opts := []badges.Option{
		badges.WithCatalog(cat),
		badges.WithStorage(store),
		badges.WithRealtime(hub),
		badges.WithLeaderboard(board),
		badges.WithDispatchMode(mode),
		badges.WithLogger(logger),
		badges.WithDebounce(cfg.Engine.DebounceWindow),
	}
	if sink != nil {
		opts = append(opts, badges.WithSink(sink.Handle))
	}
	svc, err := badges.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	ctx := context.Background()
	ids, err := svc.Individuals(ctx)
	if err == nil {
		err = leaderboard.Seed(ctx, board, ids, badges.Standing(svc))
	}
	if err != nil {
		logger.Warn("leaderboard not seeded", "error", err)
	}
	return svc, svc.Close, nil
}

func provideRollover(cfg *config.Config, logger *slog.Logger, svc *engine.Service) *engine.Rollover {
	return engine.NewRollover(svc,
		engine.WithRolloverHour(cfg.Engine.RolloverHour),
		engine.WithRolloverLogger(logger))
}

func provideHandler(svc *engine.Service, hub *realtime.Hub, board leaderboard.Board, cfg *config.Config, logger *slog.Logger) http.Handler {
	return httpapi.NewRouter(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigins: cfg.Server.CORSOrigins,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Logger:           logger,
		Leaderboard:      board,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func convertAttributes(attrs map[string]string) []slog.Attr {
	result := make([]slog.Attr, 0, len(attrs))
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the storage adapter named by the configuration.
func setupStorage(ctx context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis.Adapter())
	case "sql":
		return sqlxAdapter.New(ctx, cfg.Storage.SQL.Adapter())
	case "file":
		return jsonfileAdapter.New(cfg.Storage.File.Path)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
