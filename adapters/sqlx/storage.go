// Package sqlx stores ledgers and badge progress in a SQL database through
// jmoiron/sqlx. Postgres, MySQL and SQLite are supported.
package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"badgekit/core"
)

// Driver names a supported database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// Config holds the database connection settings.
type Config struct {
	Driver          Driver
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// DefaultConfig returns pool defaults for the given driver. SQLite is
// limited to one connection since it serializes writers anyway.
func DefaultConfig(driver Driver) Config {
	cfg := Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
	if driver == DriverSQLite {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	return cfg
}

// Store implements engine.Storage on SQL tables:
//   - individuals(individual_id, lifetime_points, multiplier, updated_at)
//   - badge_progress(individual_id, badge_id, status, cycle_points,
//     cycle_end, grace_end, earned_at, last_transition, transitioned_at)
//
// Dates are stored as unix seconds so every driver round-trips them the same way.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

func init() {
	sqlx.BindDriver(string(DriverSQLite), sqlx.QUESTION)
}

// New opens the database, applies pool settings and, when configured,
// creates the tables.
func New(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	db, err := sqlx.ConnectContext(ctx, string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s := NewWithDB(db, cfg.Driver)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS individuals (
		individual_id VARCHAR(191) NOT NULL PRIMARY KEY,
		lifetime_points BIGINT NOT NULL DEFAULT 0,
		multiplier VARCHAR(64) NOT NULL DEFAULT '1',
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS badge_progress (
		individual_id VARCHAR(191) NOT NULL,
		badge_id VARCHAR(191) NOT NULL,
		status VARCHAR(32) NOT NULL,
		cycle_points BIGINT NOT NULL DEFAULT 0,
		cycle_end BIGINT NULL,
		grace_end BIGINT NULL,
		earned_at BIGINT NOT NULL,
		last_transition VARCHAR(32) NOT NULL DEFAULT '',
		transitioned_at BIGINT NOT NULL,
		PRIMARY KEY (individual_id, badge_id)
	)`,
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// AddPoints moves the lifetime balance, flooring it at zero.
func (s *Store) AddPoints(ctx context.Context, id core.IndividualID, delta int64) (int64, error) {
	if delta == 0 {
		return 0, core.ErrZeroDelta
	}
	var total int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var current int64
		err := tx.GetContext(ctx, &current, tx.Rebind(`SELECT lifetime_points FROM individuals WHERE individual_id = ?`), id)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		next, err := core.AddSafe(current, delta)
		if err != nil {
			return err
		}
		if next < 0 {
			next = 0
		}
		total = next
		now := time.Now().Unix()
		if exists {
			_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE individuals SET lifetime_points = ?, updated_at = ? WHERE individual_id = ?`), next, now, id)
		} else {
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO individuals (individual_id, lifetime_points, multiplier, updated_at) VALUES (?, ?, ?, ?)`), id, next, "1", now)
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("add points: %w", err)
	}
	return total, nil
}

func (s *Store) LifetimePoints(ctx context.Context, id core.IndividualID) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT lifetime_points FROM individuals WHERE individual_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lifetime points: %w", err)
	}
	return total, nil
}

func (s *Store) SetMultiplier(ctx context.Context, id core.IndividualID, m decimal.Decimal) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT EXISTS(SELECT 1 FROM individuals WHERE individual_id = ?)`), id); err != nil {
			return err
		}
		now := time.Now().Unix()
		var err error
		if exists {
			_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE individuals SET multiplier = ?, updated_at = ? WHERE individual_id = ?`), m.String(), now, id)
		} else {
			_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO individuals (individual_id, lifetime_points, multiplier, updated_at) VALUES (?, ?, ?, ?)`), id, int64(0), m.String(), now)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("set multiplier: %w", err)
	}
	return nil
}

// Multiplier returns the stored multiplier, 1 when the individual is unknown.
func (s *Store) Multiplier(ctx context.Context, id core.IndividualID) (decimal.Decimal, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, s.db.Rebind(`SELECT multiplier FROM individuals WHERE individual_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.NewFromInt(1), nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("multiplier: %w", err)
	}
	return decimal.NewFromString(raw)
}

type progressRow struct {
	Badge          string        `db:"badge_id"`
	Status         string        `db:"status"`
	CyclePoints    int64         `db:"cycle_points"`
	CycleEnd       sql.NullInt64 `db:"cycle_end"`
	GraceEnd       sql.NullInt64 `db:"grace_end"`
	EarnedAt       int64         `db:"earned_at"`
	LastTransition string        `db:"last_transition"`
	TransitionedAt int64         `db:"transitioned_at"`
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func toRow(p core.Progress) progressRow {
	row := progressRow{
		Badge:          string(p.Badge),
		Status:         string(p.Status),
		CyclePoints:    p.CyclePoints,
		EarnedAt:       unix(p.EarnedAt),
		LastTransition: string(p.LastTransition),
		TransitionedAt: unix(p.TransitionedAt),
	}
	if p.Cycle != nil {
		row.CycleEnd = sql.NullInt64{Int64: unix(p.Cycle.End), Valid: true}
		if !p.Cycle.GraceEnd.IsZero() {
			row.GraceEnd = sql.NullInt64{Int64: unix(p.Cycle.GraceEnd), Valid: true}
		}
	}
	return row
}

func (r progressRow) progress() core.Progress {
	p := core.Progress{
		Badge:          core.BadgeID(r.Badge),
		Status:         core.Status(r.Status),
		CyclePoints:    r.CyclePoints,
		EarnedAt:       fromUnix(r.EarnedAt),
		LastTransition: core.Transition(r.LastTransition),
		TransitionedAt: fromUnix(r.TransitionedAt),
	}
	if r.CycleEnd.Valid {
		p.Cycle = &core.Cycle{End: fromUnix(r.CycleEnd.Int64)}
		if r.GraceEnd.Valid {
			p.Cycle.GraceEnd = fromUnix(r.GraceEnd.Int64)
		}
	}
	return p
}

const selectProgress = `SELECT badge_id, status, cycle_points, cycle_end, grace_end, earned_at, last_transition, transitioned_at FROM badge_progress WHERE individual_id = ?`

func (s *Store) GetProgress(ctx context.Context, id core.IndividualID) (map[core.BadgeID]core.Progress, error) {
	var rows []progressRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(selectProgress), id); err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	out := make(map[core.BadgeID]core.Progress, len(rows))
	for _, r := range rows {
		p := r.progress()
		out[p.Badge] = p
	}
	return out, nil
}

// PutProgress upserts all records in one transaction.
func (s *Store) PutProgress(ctx context.Context, id core.IndividualID, records ...core.Progress) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	if len(records) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range records {
			if err := putProgress(ctx, tx, id, toRow(r)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put progress: %w", err)
	}
	return nil
}

func putProgress(ctx context.Context, tx *sqlx.Tx, id core.IndividualID, row progressRow) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT EXISTS(SELECT 1 FROM badge_progress WHERE individual_id = ? AND badge_id = ?)`), id, row.Badge); err != nil {
		return err
	}
	var err error
	if exists {
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE badge_progress SET status = ?, cycle_points = ?, cycle_end = ?, grace_end = ?, earned_at = ?, last_transition = ?, transitioned_at = ? WHERE individual_id = ? AND badge_id = ?`),
			row.Status, row.CyclePoints, row.CycleEnd, row.GraceEnd, row.EarnedAt, row.LastTransition, row.TransitionedAt, id, row.Badge)
	} else {
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO badge_progress (individual_id, badge_id, status, cycle_points, cycle_end, grace_end, earned_at, last_transition, transitioned_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			id, row.Badge, row.Status, row.CyclePoints, row.CycleEnd, row.GraceEnd, row.EarnedAt, row.LastTransition, row.TransitionedAt)
	}
	return err
}

// AccrueCyclePoints adds delta to the cycle points of each earned badge in
// a single conditional UPDATE per badge.
func (s *Store) AccrueCyclePoints(ctx context.Context, id core.IndividualID, badges []core.BadgeID, delta int64) error {
	if len(badges) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`UPDATE badge_progress SET cycle_points = cycle_points + ? WHERE individual_id = ? AND badge_id = ? AND status IN (?, ?, ?)`)
		for _, b := range badges {
			if _, err := tx.ExecContext(ctx, query, delta, id, b, core.StatusActive, core.StatusGrace, core.StatusDemoted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("accrue cycle points: %w", err)
	}
	return nil
}
