package membership

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupMembershipMock(t *testing.T) (*Repository, *sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewRepository(sqlxDB), sqlxDB, mock
}

func membershipColumns() []string {
	return []string{
		"id", "user_id", "title", "kind", "scope", "total_visits", "left_visits",
		"start_date", "end_date", "validity_days", "is_active", "created_at",
	}
}

func expectLock(mock sqlmock.Sqlmock, id int, rows *sqlmock.Rows) {
	mock.ExpectQuery("SELECT (.+) FROM memberships(.+)FOR UPDATE").
		WithArgs(id).
		WillReturnRows(rows)
}

// Персональный абонемент не оплачивает групповое занятие: списания быть
// не должно, хоть посещения на нём и остались.
func TestConsumeVisitTx_RejectsPersonalScope(t *testing.T) {
	repo, sqlxDB, mock := setupMembershipMock(t)

	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	expectLock(mock, 7, sqlmock.NewRows(membershipColumns()).
		AddRow(7, 3, "Персональные 5", KindVisits, ScopePersonal, 5, 5, nil, nil, nil, true, now))

	tx, err := sqlxDB.BeginTxx(ctx, nil)
	require.NoError(t, err)

	m, err := repo.ConsumeVisitTx(ctx, tx, 7, now)
	require.ErrorIs(t, err, ErrMembershipNotUsable)
	require.Nil(t, m)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeVisitTx_RejectsDeactivated(t *testing.T) {
	repo, sqlxDB, mock := setupMembershipMock(t)

	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	expectLock(mock, 9, sqlmock.NewRows(membershipColumns()).
		AddRow(9, 3, "Групповые 8", KindVisits, ScopeGroup, 3, 3, nil, nil, nil, false, now))

	tx, err := sqlxDB.BeginTxx(ctx, nil)
	require.NoError(t, err)

	_, err = repo.ConsumeVisitTx(ctx, tx, 9, now)
	require.ErrorIs(t, err, ErrMembershipNotUsable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeVisitTx_RejectsExpiredByDate(t *testing.T) {
	repo, sqlxDB, mock := setupMembershipMock(t)

	ctx := context.Background()
	now := time.Now()
	start := now.AddDate(0, -2, 0)
	end := now.AddDate(0, -1, 0)

	mock.ExpectBegin()
	expectLock(mock, 11, sqlmock.NewRows(membershipColumns()).
		AddRow(11, 3, "Безлимит месяц", KindUnlimited, ScopeGroup, nil, nil, start, end, nil, true, now))

	tx, err := sqlxDB.BeginTxx(ctx, nil)
	require.NoError(t, err)

	_, err = repo.ConsumeVisitTx(ctx, tx, 11, now)
	require.ErrorIs(t, err, ErrMembershipNotUsable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeVisitTx_NoVisitsLeft(t *testing.T) {
	repo, sqlxDB, mock := setupMembershipMock(t)

	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	expectLock(mock, 4, sqlmock.NewRows(membershipColumns()).
		AddRow(4, 3, "Групповые 8", KindVisits, ScopeGroup, 8, 0, nil, nil, nil, true, now))

	tx, err := sqlxDB.BeginTxx(ctx, nil)
	require.NoError(t, err)

	_, err = repo.ConsumeVisitTx(ctx, tx, 4, now)
	require.ErrorIs(t, err, ErrNoVisitsLeft)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeVisitTx_ConsumesGroupVisit(t *testing.T) {
	repo, sqlxDB, mock := setupMembershipMock(t)

	ctx := context.Background()
	now := time.Now()

	mock.ExpectBegin()
	expectLock(mock, 4, sqlmock.NewRows(membershipColumns()).
		AddRow(4, 3, "Групповые 8", KindVisits, ScopeGroup, 8, 2, nil, nil, nil, true, now))
	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE memberships
		 SET left_visits = $1, start_date = $2, end_date = $3, is_active = $4
		 WHERE id = $5`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := sqlxDB.BeginTxx(ctx, nil)
	require.NoError(t, err)

	m, err := repo.ConsumeVisitTx(ctx, tx, 4, now)
	require.NoError(t, err)
	require.Equal(t, 1, *m.LeftVisits)
	require.NoError(t, mock.ExpectationsWereMet())
}
