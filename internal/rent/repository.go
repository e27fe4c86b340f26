package rent

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrIntentNotFound = errors.New("rent payment intent not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ExpireStale — ленивая уборка: незавершённые интенты с истёкшим сроком
// закрываются перед каждым чтением сетки и каждой новой бронью. Фонового
// планировщика нет, сетке нельзя верить до уборки.
func (r *Repository) ExpireStale(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rent_payment_intents
		 SET status = 'canceled', tb_status = $1
		 WHERE status IN ('new', 'pending') AND expires_at <= NOW()`,
		DetailDeadlineExpired,
	)
	return err
}

// LockPendingIntents блокирует чужие незавершённые интенты локации,
// пересекающие окно, в порядке slot_start.
func (r *Repository) LockPendingIntents(ctx context.Context, tx *sqlx.Tx, from, to time.Time) ([]Intent, error) {
	var intents []Intent
	err := tx.SelectContext(ctx, &intents,
		`SELECT * FROM rent_payment_intents
		 WHERE status IN ('new', 'pending')
		   AND expires_at > NOW()
		   AND slot_start < $2
		   AND slot_start + (duration_min * INTERVAL '1 minute') > $1
		 ORDER BY slot_start
		 FOR UPDATE`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	return intents, nil
}

func (r *Repository) CreateIntentTx(ctx context.Context, tx *sqlx.Tx, i *Intent) (*Intent, error) {
	created := &Intent{}
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO rent_payment_intents
		   (user_id, location, slot_start, duration_min, full_name, email, phone,
		    social_handle, comment, promo_code, amount_rub, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING *`,
		i.UserID, i.Location, i.SlotStart, i.DurationMin, i.FullName, i.Email, i.Phone,
		i.SocialHandle, i.Comment, i.PromoCode, i.AmountRub, i.Status, i.ExpiresAt,
	).StructScan(created)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Repository) FindIntent(ctx context.Context, id int) (*Intent, error) {
	i := &Intent{}
	err := r.db.GetContext(ctx, i, `SELECT * FROM rent_payment_intents WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return i, nil
}

func (r *Repository) LockIntent(ctx context.Context, tx *sqlx.Tx, id int) (*Intent, error) {
	i := &Intent{}
	err := tx.QueryRowxContext(ctx,
		`SELECT * FROM rent_payment_intents WHERE id = $1 FOR UPDATE`, id,
	).StructScan(i)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return i, nil
}

func (r *Repository) SetGatewayInfo(ctx context.Context, id int, status, tbPaymentID, tbStatus string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rent_payment_intents
		 SET status = $1, tb_payment_id = $2, tb_status = $3
		 WHERE id = $4`,
		status, tbPaymentID, tbStatus, id,
	)
	return err
}

func (r *Repository) MarkPaidTx(ctx context.Context, tx *sqlx.Tx, id int, sessionID int, tbStatus string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE rent_payment_intents
		 SET status = 'paid', session_id = $1, tb_status = $2, paid_at = NOW()
		 WHERE id = $3`,
		sessionID, tbStatus, id,
	)
	return err
}

func (r *Repository) MarkCanceledTx(ctx context.Context, tx *sqlx.Tx, id int, tbStatus string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE rent_payment_intents
		 SET status = 'canceled', tb_status = $1
		 WHERE id = $2`,
		tbStatus, id,
	)
	return err
}

func (r *Repository) CreateRequestTx(ctx context.Context, tx *sqlx.Tx, req *Request) (*Request, error) {
	created := &Request{}
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO rent_requests
		   (session_id, user_id, full_name, email, phone, social_handle, comment, promo_code, price_rub)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING *`,
		req.SessionID, req.UserID, req.FullName, req.Email, req.Phone,
		req.SocialHandle, req.Comment, req.PromoCode, req.PriceRub,
	).StructScan(created)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListWeekIntents — незавершённые интенты недели для сетки (без блокировок).
func (r *Repository) ListWeekIntents(ctx context.Context, from, to time.Time) ([]Intent, error) {
	var intents []Intent
	err := r.db.SelectContext(ctx, &intents,
		`SELECT * FROM rent_payment_intents
		 WHERE status IN ('new', 'pending')
		   AND expires_at > NOW()
		   AND slot_start < $2
		   AND slot_start + (duration_min * INTERVAL '1 minute') > $1`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	return intents, nil
}

// ListWeekSessions — все занятия недели для сетки (без блокировок).
func (r *Repository) ListWeekSessions(ctx context.Context, from, to time.Time) ([]weekSession, error) {
	var ss []weekSession
	err := r.db.SelectContext(ctx, &ss,
		`SELECT id, kind, client_id, start_at, duration_min, location
		 FROM sessions
		 WHERE start_at < $2
		   AND start_at + (duration_min * INTERVAL '1 minute') > $1`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	return ss, nil
}

type weekSession struct {
	ID          int       `db:"id"`
	Kind        string    `db:"kind"`
	ClientID    *int      `db:"client_id"`
	StartAt     time.Time `db:"start_at"`
	DurationMin int       `db:"duration_min"`
	Location    string    `db:"location"`
}

func (s *weekSession) EndAt() time.Time {
	return s.StartAt.Add(time.Duration(s.DurationMin) * time.Minute)
}
