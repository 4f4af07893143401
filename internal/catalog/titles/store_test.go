package titles

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"title_id", "isbn", "title", "author", "publisher", "publication_year", "category", "language", "location",
	"total_copies", "available_copies", "status", "created_at", "updated_at"}

func TestStoreLockTxUsesForUpdate(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM titles WHERE title_id = \? FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(7, "9780441172719", "Dune", "Frank Herbert", nil, 1965, "SF", "English", "A-3", 3, 0, "BORROWED", now, now))

	tx, err := conn.Begin()
	require.NoError(t, err)
	ti, err := NewStore(conn).LockTx(context.Background(), tx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, ti.Total())
	assert.Equal(t, 0, ti.Available())
	assert.Equal(t, StatusBorrowed, ti.Status())
	assert.Equal(t, 1965, ti.PublicationYear)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetNotFound(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery(`SELECT .+ FROM titles WHERE title_id = \?`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(cols))

	_, err = NewStore(conn).Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreInsertDuplicateISBN(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(`INSERT INTO titles`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	ti := mustNew(t, 1)
	err = NewStore(conn).Insert(context.Background(), ti)
	assert.ErrorIs(t, err, ErrDuplicateISBN)
}

func TestStoreSaveTxWritesCounters(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	ti := mustNew(t, 2)
	ti.ID = 5
	require.NoError(t, ti.Decrement())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE titles`)).
		WithArgs(2, 1, "AVAILABLE", nil, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := conn.Begin()
	require.NoError(t, err)
	require.NoError(t, NewStore(conn).SaveTx(context.Background(), tx, ti))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreListBuildsFilters(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery(`WHERE \(title LIKE \? OR author LIKE \? OR isbn LIKE \?\) AND category = \? AND available_copies > 0`).
		WithArgs("%100\\%%", "%100\\%%", "%100\\%%", "SF", 10, 20).
		WillReturnRows(sqlmock.NewRows(cols))

	list, err := NewStore(conn).List(context.Background(), Filter{Search: "100%", Category: "SF", AvailableOnly: true}, Page{Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}
