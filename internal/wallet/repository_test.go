package wallet

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupWalletMock(t *testing.T) (*Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func TestGetOrCreate_WhenNotExists(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	ctx := context.Background()

	// GetContext should return no rows -> insert
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM wallets WHERE user_id = $1")).
		WithArgs(10).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id RETURNING id, user_id, balance, updated_at")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "updated_at"}).
			AddRow(5, 10, "0", time.Now()))

	w, err := repo.GetOrCreate(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 5, w.ID)
	require.True(t, w.Balance.IsZero())
}

func TestDebit_Success(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	ctx := context.Background()

	mock.ExpectBegin()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, balance, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE")).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "updated_at"}).
			AddRow(7, 20, "2000", time.Now()))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2")).
		WithArgs(decimal.NewFromInt(1300), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_txs (wallet_id, kind, amount, reason) VALUES ($1, $2, $3, $4)")).
		WithArgs(7, TxDebit, decimal.NewFromInt(700), "Разовое групповое занятие").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectCommit()

	balance, err := repo.Debit(ctx, 20, decimal.NewFromInt(700), "Разовое групповое занятие")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(1300)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebit_InsufficientBalance(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	ctx := context.Background()

	mock.ExpectBegin()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, balance, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE")).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "updated_at"}).
			AddRow(7, 20, "100", time.Now()))

	mock.ExpectRollback()

	_, err := repo.Debit(ctx, 20, decimal.NewFromInt(650), "Аренда зала")
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestTopup_CreatesWalletUnderLock(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	ctx := context.Background()

	mock.ExpectBegin()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, balance, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE")).
		WithArgs(30).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO wallets (user_id) VALUES ($1) RETURNING id, user_id, balance, updated_at")).
		WithArgs(30).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "updated_at"}).
			AddRow(9, 30, "0", time.Now()))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2")).
		WithArgs(decimal.NewFromInt(500), 9).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallet_txs (wallet_id, kind, amount, reason) VALUES ($1, $2, $3, $4)")).
		WithArgs(9, TxTopup, decimal.NewFromInt(500), "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectCommit()

	balance, err := repo.Topup(ctx, 30, decimal.NewFromInt(500), "")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(500)))
}

func TestTopup_RejectsNonPositiveAmount(t *testing.T) {
	repo, mock, close := setupWalletMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, balance, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE")).
		WithArgs(40).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "updated_at"}).
			AddRow(3, 40, "0", time.Now()))
	mock.ExpectRollback()

	_, err := repo.Topup(context.Background(), 40, decimal.Zero, "")
	require.ErrorIs(t, err, ErrInvalidAmount)
}
