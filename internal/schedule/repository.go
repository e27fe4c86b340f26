package schedule

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionConflict = errors.New("session overlaps an existing one")
	ErrBookingNotFound = errors.New("booking not found")
	ErrAlreadyBooked   = errors.New("booking already exists for this session")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// --- trainers / workouts ---

func (r *Repository) CreateTrainer(ctx context.Context, name string) (*Trainer, error) {
	t := &Trainer{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO trainers (name) VALUES ($1) RETURNING id, name`, name,
	).StructScan(t)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Repository) ListTrainers(ctx context.Context) ([]Trainer, error) {
	var ts []Trainer
	if err := r.db.SelectContext(ctx, &ts, `SELECT * FROM trainers ORDER BY name`); err != nil {
		return nil, err
	}
	return ts, nil
}

func (r *Repository) CreateWorkout(ctx context.Context, w *Workout) (*Workout, error) {
	created := &Workout{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO workouts (name, level, description, default_duration_min, default_capacity)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING *`,
		w.Name, w.Level, w.Description, w.DefaultDurationMin, w.DefaultCapacity,
	).StructScan(created)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Repository) ListWorkouts(ctx context.Context) ([]Workout, error) {
	var ws []Workout
	if err := r.db.SelectContext(ctx, &ws, `SELECT * FROM workouts ORDER BY name`); err != nil {
		return nil, err
	}
	return ws, nil
}

// --- sessions ---

// LockSessionsInWindow блокирует занятия, чьи интервалы могут пересечь
// [from, to), в порядке start_at. Единый порядок захвата строк бережёт от
// дедлока двух параллельных созданий.
func (r *Repository) LockSessionsInWindow(ctx context.Context, tx *sqlx.Tx, from, to time.Time) ([]Session, error) {
	var ss []Session
	err := tx.SelectContext(ctx, &ss,
		`SELECT id, workout_id, title, kind, client_id, start_at, duration_min, location, trainer_id, capacity
		 FROM sessions
		 WHERE start_at < $2 AND start_at + (duration_min * INTERVAL '1 minute') > $1
		 ORDER BY start_at
		 FOR UPDATE`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	return ss, nil
}

// CreateSession создаёт занятие, предварительно проверив под блокировкой, что
// ни зал (по нормализованному адресу), ни тренер не заняты в этот интервал.
func (r *Repository) CreateSession(ctx context.Context, s *Session) (*Session, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	created, err := r.CreateSessionTx(ctx, tx, s)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Repository) CreateSessionTx(ctx context.Context, tx *sqlx.Tx, s *Session) (*Session, error) {
	end := s.EndAt()

	existing, err := r.LockSessionsInWindow(ctx, tx, s.StartAt, end)
	if err != nil {
		return nil, err
	}

	loc := NormAddr(s.Location)
	for _, other := range existing {
		if !Overlaps(s.StartAt, end, other.StartAt, other.EndAt()) {
			continue
		}
		if NormAddr(other.Location) == loc {
			return nil, ErrSessionConflict
		}
		if other.TrainerID != nil && s.TrainerID != nil && *other.TrainerID == *s.TrainerID {
			return nil, ErrSessionConflict
		}
	}

	created := &Session{}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO sessions (workout_id, title, kind, client_id, start_at, duration_min, location, trainer_id, capacity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, workout_id, title, kind, client_id, start_at, duration_min, location, trainer_id, capacity`,
		s.WorkoutID, s.Title, s.Kind, s.ClientID, s.StartAt, s.DurationMin, s.Location, s.TrainerID, s.Capacity,
	).StructScan(created)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Repository) FindSession(ctx context.Context, id int) (*Session, error) {
	s := &Session{}
	err := r.db.GetContext(ctx, s, `SELECT * FROM sessions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *Repository) LockSession(ctx context.Context, tx *sqlx.Tx, id int) (*Session, error) {
	s := &Session{}
	err := tx.QueryRowxContext(ctx,
		`SELECT id, workout_id, title, kind, client_id, start_at, duration_min, location, trainer_id, capacity
		 FROM sessions WHERE id = $1 FOR UPDATE`,
		id,
	).StructScan(s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s, nil
}

// ListDay — расписание группы на день по локации (для сайта).
func (r *Repository) ListDay(ctx context.Context, location string, day time.Time) ([]Session, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)

	var ss []Session
	err := r.db.SelectContext(ctx, &ss,
		`SELECT * FROM sessions
		 WHERE kind = 'group' AND start_at >= $1 AND start_at < $2
		 ORDER BY start_at`,
		from, to,
	)
	if err != nil {
		return nil, err
	}

	loc := NormAddr(location)
	filtered := ss[:0]
	for _, s := range ss {
		if NormAddr(s.Location) == loc {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

// --- bookings ---

// SeatsTaken считает занятые места: бронь и живое приглашение держат место.
func (r *Repository) SeatsTaken(ctx context.Context, q sqlx.QueryerContext, sessionID int) (int, error) {
	var taken int
	err := sqlx.GetContext(ctx, q, &taken,
		`SELECT COUNT(*) FROM bookings
		 WHERE session_id = $1
		   AND (booking_status = 'booked'
		        OR (booking_status = 'invited' AND invite_expires_at > NOW()))`,
		sessionID,
	)
	if err != nil {
		return 0, err
	}
	return taken, nil
}

func (r *Repository) FindBooking(ctx context.Context, id int) (*Booking, error) {
	b := &Booking{}
	err := r.db.GetContext(ctx, b, `SELECT * FROM bookings WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *Repository) FindUserBooking(ctx context.Context, userID, sessionID int) (*Booking, error) {
	b := &Booking{}
	err := r.db.GetContext(ctx, b,
		`SELECT * FROM bookings WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *Repository) CreateBookingTx(ctx context.Context, tx *sqlx.Tx, userID, sessionID int, membershipID *int, status string) (*Booking, error) {
	b := &Booking{}
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO bookings (user_id, session_id, membership_id, booking_status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, user_id, session_id, membership_id, booking_status, attendance_status,
		           marked_at, canceled_at, invite_sent_at, invite_expires_at, created_at`,
		userID, sessionID, membershipID, status,
	).StructScan(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Repository) LockBooking(ctx context.Context, tx *sqlx.Tx, id int) (*Booking, error) {
	b := &Booking{}
	err := tx.QueryRowxContext(ctx,
		`SELECT id, user_id, session_id, membership_id, booking_status, attendance_status,
		        marked_at, canceled_at, invite_sent_at, invite_expires_at, created_at
		 FROM bookings WHERE id = $1 FOR UPDATE`,
		id,
	).StructScan(b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *Repository) SetBookingStatusTx(ctx context.Context, tx *sqlx.Tx, id int, status string) error {
	var canceledAt interface{}
	if status == StatusCanceled {
		canceledAt = time.Now()
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings
		 SET booking_status = $1, canceled_at = COALESCE($2, canceled_at)
		 WHERE id = $3`,
		status, canceledAt, id,
	)
	return err
}

// SetBookedWithMembershipTx переводит бронь в booked и привязывает абонемент,
// которым она оплачена. Используется и при повторной записи после отмены.
func (r *Repository) SetBookedWithMembershipTx(ctx context.Context, tx *sqlx.Tx, id int, membershipID *int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings
		 SET booking_status = 'booked', membership_id = $1,
		     canceled_at = NULL, invite_sent_at = NULL, invite_expires_at = NULL
		 WHERE id = $2`,
		membershipID, id,
	)
	return err
}

// HasLiveInvite — есть ли по занятию неистёкшее приглашение.
func (r *Repository) HasLiveInvite(ctx context.Context, tx *sqlx.Tx, sessionID int) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (
		   SELECT 1 FROM bookings
		   WHERE session_id = $1 AND booking_status = 'invited' AND invite_expires_at > NOW()
		 )`,
		sessionID,
	)
	return exists, err
}

// OldestWaiterTx берёт самого раннего из листа ожидания под блокировкой.
func (r *Repository) OldestWaiterTx(ctx context.Context, tx *sqlx.Tx, sessionID int) (*Booking, error) {
	b := &Booking{}
	err := tx.QueryRowxContext(ctx,
		`SELECT id, user_id, session_id, membership_id, booking_status, attendance_status,
		        marked_at, canceled_at, invite_sent_at, invite_expires_at, created_at
		 FROM bookings
		 WHERE session_id = $1 AND booking_status = 'waitlist'
		 ORDER BY created_at
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
		sessionID,
	).StructScan(b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *Repository) MarkInvitedTx(ctx context.Context, tx *sqlx.Tx, id int, now time.Time) error {
	expires := now.Add(InviteWindow)
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings
		 SET booking_status = 'invited', invite_sent_at = $1, invite_expires_at = $2
		 WHERE id = $3`,
		now, expires, id,
	)
	return err
}

// ExpireInvitesTx возвращает просроченные приглашения обратно в лист ожидания.
func (r *Repository) ExpireInvitesTx(ctx context.Context, tx *sqlx.Tx, sessionID int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bookings
		 SET booking_status = 'waitlist', invite_sent_at = NULL, invite_expires_at = NULL
		 WHERE session_id = $1 AND booking_status = 'invited' AND invite_expires_at <= NOW()`,
		sessionID,
	)
	return err
}

func (r *Repository) ListUserBookings(ctx context.Context, userID int) ([]Booking, error) {
	var bs []Booking
	err := r.db.SelectContext(ctx, &bs,
		`SELECT b.* FROM bookings b
		 JOIN sessions s ON s.id = b.session_id
		 WHERE b.user_id = $1
		 ORDER BY s.start_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return bs, nil
}

func (r *Repository) MarkAttendance(ctx context.Context, bookingID int, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE bookings
		 SET attendance_status = $1, marked_at = NOW()
		 WHERE id = $2 AND booking_status = 'booked'`,
		status, bookingID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	return nil
}
