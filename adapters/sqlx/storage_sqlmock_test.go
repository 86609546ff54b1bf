package sqlx_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	storage "badgekit/adapters/sqlx"
	"badgekit/core"
)

func newMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, "postgres"), storage.DriverPostgres)
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

func TestSQLMock_AddPoints_Insert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT lifetime_points FROM individuals WHERE individual_id = \$1`).
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO individuals`).
		WithArgs("u1", int64(10), "1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	total, err := store.AddPoints(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AddPoints_UpdateFloorsAtZero(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT lifetime_points FROM individuals`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"lifetime_points"}).AddRow(40))
	mock.ExpectExec(`UPDATE individuals SET lifetime_points`).
		WithArgs(int64(0), sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	total, err := store.AddPoints(context.Background(), "u1", -100)
	require.NoError(t, err)
	require.Equal(t, int64(0), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AddPoints_RollsBackOnError(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT lifetime_points FROM individuals`).
		WithArgs("u1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.AddPoints(context.Background(), "u1", 5)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SetMultiplier_Insert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO individuals`).
		WithArgs("u1", int64(0), "1.5", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SetMultiplier(context.Background(), "u1", decimal.RequireFromString("1.5")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetProgress(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	grace := end.AddDate(0, 0, 7)
	mock.ExpectQuery(`SELECT badge_id, status, cycle_points, cycle_end, grace_end, earned_at, last_transition, transitioned_at FROM badge_progress`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"badge_id", "status", "cycle_points", "cycle_end", "grace_end", "earned_at", "last_transition", "transitioned_at"}).
			AddRow("silver", "grace", 40, end.Unix(), grace.Unix(), end.AddDate(0, -1, 0).Unix(), "grace", end.Unix()).
			AddRow("bronze", "active", 0, nil, nil, end.Unix(), "earned", end.Unix()))

	got, err := store.GetProgress(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, core.StatusGrace, got["silver"].Status)
	require.Equal(t, int64(40), got["silver"].CyclePoints)
	require.True(t, got["silver"].Cycle.End.Equal(end))
	require.True(t, got["silver"].Cycle.GraceEnd.Equal(grace))
	require.Nil(t, got["bronze"].Cycle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_PutProgress_Update(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	p := core.Progress{Badge: "silver", Status: core.StatusActive, Cycle: &core.Cycle{End: end}, LastTransition: core.TransitionRenewed}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("u1", "silver").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`UPDATE badge_progress SET status`).
		WithArgs("active", int64(0), end.Unix(), nil, int64(0), "renewed", int64(0), "u1", "silver").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.PutProgress(context.Background(), "u1", p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_PutProgress_RejectsInvalid(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	err := store.PutProgress(context.Background(), "u1", core.Progress{Badge: "x", Status: "bogus"})
	require.ErrorIs(t, err, core.ErrInvalidProgress)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AccrueCyclePoints(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectBegin()
	for _, b := range []string{"silver", "gold"} {
		mock.ExpectExec(`UPDATE badge_progress SET cycle_points = cycle_points \+ \$1`).
			WithArgs(int64(25), "u1", b, "active", "grace", "demoted").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, store.AccrueCyclePoints(context.Background(), "u1", []core.BadgeID{"silver", "gold"}, 25))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_AddPoints_ZeroDelta(t *testing.T) {
	store, _, cleanup := newMockStore(t)
	defer cleanup()

	_, err := store.AddPoints(context.Background(), "u1", 0)
	require.ErrorIs(t, err, core.ErrZeroDelta)
}
