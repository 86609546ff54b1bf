package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"badgekit/core"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ConnectRetries bounds the ping attempts made by New.
	ConnectRetries int
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:           "localhost:6379",
		PoolSize:       10,
		MinIdleConns:   2,
		DialTimeout:    5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
		ConnectRetries: 3,
	}
}

// Store implements engine.Storage on Redis.
// Data structure:
// - individual:{id}:lifetime -> int64 lifetime points
// - individual:{id}:multiplier -> decimal string
// - individual:{id}:progress -> hash of badge id to JSON progress record
type Store struct {
	client *redis.Client
}

// New connects to Redis, retrying the initial ping with exponential backoff.
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(ping, backoff.WithMaxRetries(b, uint64(max(config.ConnectRetries, 0)))); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func lifetimeKey(id core.IndividualID) string {
	return fmt.Sprintf("individual:%s:lifetime", id)
}

func multiplierKey(id core.IndividualID) string {
	return fmt.Sprintf("individual:%s:multiplier", id)
}

func progressKey(id core.IndividualID) string {
	return fmt.Sprintf("individual:%s:progress", id)
}

// addPointsScript adds delta atomically, flooring the balance at zero.
var addPointsScript = redis.NewScript(`
	local key = KEYS[1]
	local delta = tonumber(ARGV[1])
	local current = tonumber(redis.call('GET', key) or '0')
	local next_val = current + delta

	if next_val > 9223372036854775807 then
		return redis.error_reply('integer overflow')
	end
	if next_val < 0 then
		next_val = 0
	end

	redis.call('SET', key, next_val)
	return next_val
`)

// AddPoints atomically moves the lifetime balance.
func (s *Store) AddPoints(ctx context.Context, id core.IndividualID, delta int64) (int64, error) {
	if delta == 0 {
		return 0, core.ErrZeroDelta
	}
	result, err := addPointsScript.Run(ctx, s.client, []string{lifetimeKey(id)}, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to add points: %w", err)
	}
	total, ok := result.(int64)
	if !ok {
		return 0, errors.New("unexpected result type from Redis script")
	}
	return total, nil
}

func (s *Store) LifetimePoints(ctx context.Context, id core.IndividualID) (int64, error) {
	v, err := s.client.Get(ctx, lifetimeKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get lifetime points: %w", err)
	}
	return v, nil
}

func (s *Store) SetMultiplier(ctx context.Context, id core.IndividualID, m decimal.Decimal) error {
	if err := s.client.Set(ctx, multiplierKey(id), m.String(), 0).Err(); err != nil {
		return fmt.Errorf("failed to set multiplier: %w", err)
	}
	return nil
}

// Multiplier returns the stored multiplier, 1 when none was written.
func (s *Store) Multiplier(ctx context.Context, id core.IndividualID) (decimal.Decimal, error) {
	raw, err := s.client.Get(ctx, multiplierKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.NewFromInt(1), nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get multiplier: %w", err)
	}
	return decimal.NewFromString(raw)
}

func (s *Store) GetProgress(ctx context.Context, id core.IndividualID) (map[core.BadgeID]core.Progress, error) {
	fields, err := s.client.HGetAll(ctx, progressKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	return decodeProgress(fields)
}

func decodeProgress(fields map[string]string) (map[core.BadgeID]core.Progress, error) {
	out := make(map[core.BadgeID]core.Progress, len(fields))
	for badge, raw := range fields {
		var p core.Progress
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode progress %s: %w", badge, err)
		}
		out[core.BadgeID(badge)] = p
	}
	return out, nil
}

// PutProgress writes all records in one MULTI/EXEC.
func (s *Store) PutProgress(ctx context.Context, id core.IndividualID, records ...core.Progress) error {
	values := make([]any, 0, 2*len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		values = append(values, string(r.Badge), data)
	}
	if len(values) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, progressKey(id), values...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put progress: %w", err)
	}
	return nil
}

// maxWatchRetries bounds optimistic retries when a concurrent writer touches
// the progress hash between WATCH and EXEC.
const maxWatchRetries = 5

// AccrueCyclePoints adds delta to the cycle points of earned badges under WATCH.
func (s *Store) AccrueCyclePoints(ctx context.Context, id core.IndividualID, badges []core.BadgeID, delta int64) error {
	if len(badges) == 0 {
		return nil
	}
	key := progressKey(id)
	fields := make([]string, len(badges))
	for i, b := range badges {
		fields[i] = string(b)
	}

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HMGet(ctx, key, fields...).Result()
		if err != nil {
			return err
		}
		var values []any
		for i, v := range raw {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var p core.Progress
			if err := json.Unmarshal([]byte(str), &p); err != nil {
				return fmt.Errorf("decode progress %s: %w", fields[i], err)
			}
			if !p.Status.Earned() {
				continue
			}
			if p.CyclePoints, err = core.AddSafe(p.CyclePoints, delta); err != nil {
				return err
			}
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			values = append(values, fields[i], data)
		}
		if len(values) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values...)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to accrue cycle points: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to accrue cycle points: %w", redis.TxFailedErr)
}
