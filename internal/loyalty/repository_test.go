package loyalty

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

func setupLoyaltyMock(t *testing.T) (*Repository, *sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, sqlxDB, mock, closer
}

func TestGrantCashback_SecondGrantSameSourceIsNoop(t *testing.T) {
	repo, _, mock, close := setupLoyaltyMock(t)
	defer close()

	// ON CONFLICT DO NOTHING + RETURNING -> пустой результат при повторе
	mock.ExpectQuery("INSERT INTO cashback_bonuses").
		WillReturnError(sql.ErrNoRows)

	b, err := repo.GrantCashback(context.Background(), 1, decimal.NewFromInt(700), "order", 42, "Заказ №42")
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestGrantCashback_SkipsNonPositiveBase(t *testing.T) {
	repo, _, mock, close := setupLoyaltyMock(t)
	defer close()

	b, err := repo.GrantCashback(context.Background(), 1, decimal.Zero, "order", 42, "")
	require.NoError(t, err)
	require.Nil(t, b)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSpendBonuses_OldestExpiryFirst(t *testing.T) {
	repo, sqlxDB, mock, close := setupLoyaltyMock(t)
	defer close()

	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "source_type", "source_id", "base_amount",
		"amount", "remaining_amount", "reason", "expires_at", "created_at",
	}).
		AddRow(1, 5, "order", 10, "600", "30", "30", "", now.Add(24*time.Hour), now).
		AddRow(2, 5, "order", 11, "2000", "100", "100", "", now.Add(48*time.Hour), now)

	mock.ExpectQuery("SELECT (.+) FROM cashback_bonuses(.+)FOR UPDATE").
		WithArgs(5).
		WillReturnRows(rows)

	// первый бонус съедается целиком
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cashback_bonuses SET remaining_amount = remaining_amount - $1 WHERE id = $2")).
		WithArgs(decimal.NewFromInt(30), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cashback_bonus_spends").
		WithArgs(5, 1, "order", int64(12), decimal.NewFromInt(30), "Оплата заказа").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// со второго добирается остаток
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cashback_bonuses SET remaining_amount = remaining_amount - $1 WHERE id = $2")).
		WithArgs(decimal.NewFromInt(45), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cashback_bonus_spends").
		WithArgs(5, 2, "order", int64(12), decimal.NewFromInt(45), "Оплата заказа").
		WillReturnResult(sqlmock.NewResult(2, 1))

	tx, err := sqlxDB.BeginTxx(ctx, nil)
	require.NoError(t, err)

	err = repo.spendBonusesTx(ctx, tx, 5, decimal.NewFromInt(75), "order", 12, "Оплата заказа")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSpendBonuses_FailsWhenBalanceShrunk(t *testing.T) {
	repo, sqlxDB, mock, close := setupLoyaltyMock(t)
	defer close()

	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "source_type", "source_id", "base_amount",
		"amount", "remaining_amount", "reason", "expires_at", "created_at",
	}).
		AddRow(1, 5, "order", 10, "600", "30", "10", "", now.Add(24*time.Hour), now)

	mock.ExpectQuery("SELECT (.+) FROM cashback_bonuses(.+)FOR UPDATE").
		WithArgs(5).
		WillReturnRows(rows)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE cashback_bonuses SET remaining_amount = remaining_amount - $1 WHERE id = $2")).
		WithArgs(decimal.NewFromInt(10), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cashback_bonus_spends").
		WillReturnResult(sqlmock.NewResult(1, 1))

	tx, err := sqlxDB.BeginTxx(ctx, nil)
	require.NoError(t, err)

	err = repo.spendBonusesTx(ctx, tx, 5, decimal.NewFromInt(75), "order", 12, "")
	require.ErrorIs(t, err, ErrBonusBalanceChanged)
}

func TestAddSpent_CrossesTier(t *testing.T) {
	repo, sqlxDB, mock, close := setupLoyaltyMock(t)
	defer close()

	ctx := context.Background()

	mock.ExpectBegin()

	mock.ExpectQuery("SELECT (.+) FROM loyalty_profiles(.+)FOR UPDATE").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "spent_total", "discount_percent", "updated_at"}).
			AddRow(2, 5, "9500", 0, time.Now()))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE loyalty_profiles SET spent_total = $1, discount_percent = $2, updated_at = NOW() WHERE id = $3")).
		WithArgs(decimal.NewFromInt(10200), 3, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := sqlxDB.BeginTxx(ctx, nil)
	require.NoError(t, err)

	percent, err := repo.AddSpentTx(ctx, tx, 5, decimal.NewFromInt(700))
	require.NoError(t, err)
	require.Equal(t, 3, percent)
}
