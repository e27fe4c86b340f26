package user

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupUserMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewRepository(sqlx.NewDb(mockDB, "postgres")), mock
}

func userColumns() []string {
	return []string{"id", "name", "email", "password_hash", "phone", "role", "created_at"}
}

func TestCreate(t *testing.T) {
	repo, mock := setupUserMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (name, email, password_hash, phone, role)`)).
		WithArgs("Анна", "anna@example.com", "hashed", "+79991234567", "client").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(1, "Анна", "anna@example.com", "hashed", "+79991234567", "client", time.Now()))

	u, err := repo.Create(context.Background(), "Анна", "anna@example.com", "hashed", "+79991234567", "client")
	require.NoError(t, err)
	require.Equal(t, 1, u.ID)
	require.Equal(t, "anna@example.com", u.EmailString())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateImported_NoEmailNoPassword(t *testing.T) {
	repo, mock := setupUserMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (name, phone, role)`)).
		WithArgs("Мария", "+79990001122").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(2, "Мария", nil, nil, "+79990001122", "client", time.Now()))

	u, err := repo.CreateImported(context.Background(), "Мария", "+79990001122")
	require.NoError(t, err)
	require.False(t, u.Email.Valid)
	require.False(t, u.PasswordHash.Valid)
	require.Equal(t, "", u.EmailString())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmail(t *testing.T) {
	repo, mock := setupUserMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE email = $1`)).
		WithArgs("anna@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow(1, "Анна", "anna@example.com", "hashed", "+79991234567", "client", time.Now()))

	u, err := repo.FindByEmail(context.Background(), "anna@example.com")
	require.NoError(t, err)
	require.Equal(t, "Анна", u.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailExists(t *testing.T) {
	repo, mock := setupUserMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`)).
		WithArgs("taken@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.EmailExists(context.Background(), "taken@example.com")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
