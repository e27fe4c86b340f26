package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func setupScheduleMock(t *testing.T) (*Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func sessionColumns() []string {
	return []string{
		"id", "workout_id", "title", "kind", "client_id",
		"start_at", "duration_min", "location", "trainer_id", "capacity",
	}
}

func TestCreateSession_ConflictSameLocation(t *testing.T) {
	repo, mock, close := setupScheduleMock(t)
	defer close()

	start := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM sessions(.+)FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(sessionColumns()).
			AddRow(1, nil, "Пилатес", "group", nil, start.Add(30*time.Minute), 60, "сакко и ванцетти 93А", 2, 20))
	mock.ExpectRollback()

	_, err := repo.CreateSession(context.Background(), &Session{
		Title:       "Растяжка",
		Kind:        SessionGroup,
		StartAt:     start,
		DurationMin: 60,
		Location:    "Сакко и Ванцетти, 93а",
		TrainerID:   intPtr(7),
		Capacity:    15,
	})
	require.ErrorIs(t, err, ErrSessionConflict)
}

func TestCreateSession_ConflictSameTrainerOtherLocation(t *testing.T) {
	repo, mock, close := setupScheduleMock(t)
	defer close()

	start := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM sessions(.+)FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(sessionColumns()).
			AddRow(1, nil, "Персональная", "personal", 4, start, 60, "Ленина, 5", 7, 1))
	mock.ExpectRollback()

	_, err := repo.CreateSession(context.Background(), &Session{
		Title:       "Растяжка",
		Kind:        SessionGroup,
		StartAt:     start,
		DurationMin: 60,
		Location:    "Сакко и Ванцетти, 93а",
		TrainerID:   intPtr(7),
		Capacity:    15,
	})
	require.ErrorIs(t, err, ErrSessionConflict)
}

func TestCreateSession_BackToBackAllowed(t *testing.T) {
	repo, mock, close := setupScheduleMock(t)
	defer close()

	start := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	// занятие встык не попадает в окно и не мешает
	mock.ExpectQuery("SELECT (.+) FROM sessions(.+)FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(sessionColumns()))
	mock.ExpectQuery("INSERT INTO sessions").
		WillReturnRows(sqlmock.NewRows(sessionColumns()).
			AddRow(5, nil, "Растяжка", "group", nil, start, 60, "Сакко и Ванцетти, 93а", 7, 15))
	mock.ExpectCommit()

	created, err := repo.CreateSession(context.Background(), &Session{
		Title:       "Растяжка",
		Kind:        SessionGroup,
		StartAt:     start,
		DurationMin: 60,
		Location:    "Сакко и Ванцетти, 93а",
		TrainerID:   intPtr(7),
		Capacity:    15,
	})
	require.NoError(t, err)
	require.Equal(t, 5, created.ID)
}

// Статусы посещаемости должны совпадать со значениями CHECK-ограничения
// в bookings, иначе отметка падает на уровне базы.
func TestMarkAttendance_WritesSchemaStatus(t *testing.T) {
	repo, mock, close := setupScheduleMock(t)
	defer close()

	mock.ExpectExec("UPDATE bookings(.+)SET attendance_status(.+)booking_status = 'booked'").
		WithArgs(AttendanceAttended, 42).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkAttendance(context.Background(), 42, AttendanceAttended)
	require.NoError(t, err)
	require.Equal(t, "attended", AttendanceAttended)
	require.Equal(t, "not_marked", AttendanceNotMarked)
	require.Equal(t, "missed", AttendanceMissed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAttendance_OnlyBookedRows(t *testing.T) {
	repo, mock, close := setupScheduleMock(t)
	defer close()

	mock.ExpectExec("UPDATE bookings(.+)SET attendance_status").
		WithArgs(AttendanceMissed, 99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkAttendance(context.Background(), 99, AttendanceMissed)
	require.ErrorIs(t, err, ErrBookingNotFound)
}
