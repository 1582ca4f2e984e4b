package jobstore

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, log: zap.NewNop()}, mock
}

func TestClaimNextReturnsIDOnMatch(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("UPDATE jobs").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(int64(42)),
	)

	id, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextReturnsZeroWhenNoneQueued(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("UPDATE jobs").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, err := store.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimStaleReturnsRowsAffected(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE jobs").WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.ReclaimStale(context.Background(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetStatusWritesErrorText(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("UPDATE jobs SET status").WillReturnResult(sqlmock.NewResult(0, 1))

	errText := "boom"
	err := store.SetStatus(context.Background(), 7, "failed", &errText)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
