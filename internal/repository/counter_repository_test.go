package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestCounterPeekDoesNotMutate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCounterRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE((SELECT value FROM sequential_counters WHERE scope_id = $1), 0) + 1")).
		WithArgs("sectorA-2024").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(5))

	next, err := repo.Peek(context.Background(), "sectorA-2024")
	require.NoError(t, err)
	assert.Equal(t, int64(5), next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterIncrementIsSingleUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCounterRepository(db)

	mock.ExpectQuery("INSERT INTO sequential_counters .* ON CONFLICT \\(scope_id\\) DO UPDATE SET value = sequential_counters.value \\+ 1.*RETURNING value").
		WithArgs("sectorA-2024").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(5))

	value, err := repo.IncrementAndGet(context.Background(), "sectorA-2024")
	require.NoError(t, err)
	assert.Equal(t, int64(5), value)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterIncrementWrapsErrors(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCounterRepository(db)

	boom := errors.New("connection reset")
	mock.ExpectQuery("INSERT INTO sequential_counters").WillReturnError(boom)

	_, err := repo.IncrementAndGet(context.Background(), "sectorA-2024")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
