package payment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrIntentNotFound = errors.New("payment intent not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateIntentTx(ctx context.Context, tx *sqlx.Tx, userID, sessionID, amountRub int, status string) (*Intent, error) {
	i := &Intent{}
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO payment_intents (user_id, session_id, amount_rub, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING *`,
		userID, sessionID, amountRub, status,
	).StructScan(i)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func (r *Repository) CreateIntent(ctx context.Context, userID, sessionID, amountRub int) (*Intent, error) {
	i := &Intent{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO payment_intents (user_id, session_id, amount_rub)
		 VALUES ($1, $2, $3)
		 RETURNING *`,
		userID, sessionID, amountRub,
	).StructScan(i)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func (r *Repository) FindIntent(ctx context.Context, id int) (*Intent, error) {
	i := &Intent{}
	err := r.db.GetContext(ctx, i, `SELECT * FROM payment_intents WHERE id = $1`, id)
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
		`SELECT * FROM payment_intents WHERE id = $1 FOR UPDATE`, id,
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
		`UPDATE payment_intents
		 SET status = $1, tb_payment_id = $2, tb_status = $3
		 WHERE id = $4`,
		status, tbPaymentID, tbStatus, id,
	)
	return err
}

func (r *Repository) MarkPaidTx(ctx context.Context, tx *sqlx.Tx, id int, tbStatus string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payment_intents
		 SET status = 'paid', tb_status = $1, paid_at = NOW()
		 WHERE id = $2`,
		tbStatus, id,
	)
	return err
}

func (r *Repository) MarkCanceledTx(ctx context.Context, tx *sqlx.Tx, id int, tbStatus string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE payment_intents
		 SET status = 'canceled', tb_status = $1
		 WHERE id = $2`,
		tbStatus, id,
	)
	return err
}

// LogWebhook пишет сырой payload до любой валидации: аудит должен пережить
// и мусорные, и поддельные уведомления.
func (r *Repository) LogWebhook(ctx context.Context, payload []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_webhook_logs (payload) VALUES ($1)`, string(payload))
	return err
}
