package billing

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/clipforge/shorts-worker/internal/werror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredCreditsEnforcesMinimumAndRoundsUp(t *testing.T) {
	assert.Equal(t, 1, RequiredCredits(5, 1.0, 1))   // 5s -> well under a minute, still 1
	assert.Equal(t, 1, RequiredCredits(60, 1.0, 1))  // exactly 1 minute
	assert.Equal(t, 2, RequiredCredits(61, 1.0, 1))  // rounds up past 1 minute
	assert.Equal(t, 3, RequiredCredits(61, 1.0, 3))  // minimum floor wins
}

func TestDebitFailsWithInsufficientCreditsWhenNoRowsUpdated(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET credits = credits - \$1 WHERE id = \$2 AND credits >= \$1`).
		WithArgs(3, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = Debit(context.Background(), db, 42, 3)
	require.Error(t, err)
	assert.Equal(t, werror.InsufficientCredits, werror.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitSucceedsWhenBalanceSufficient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET credits = credits - \$1 WHERE id = \$2 AND credits >= \$1`).
		WithArgs(3, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Debit(context.Background(), db, 42, 3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefundUpdatesBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET credits = credits \+ \$1 WHERE id = \$2`).
		WithArgs(3, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Refund(context.Background(), db, 42, 3))
	require.NoError(t, mock.ExpectationsWereMet())
}
