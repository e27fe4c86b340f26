package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetOrCreate(ctx context.Context, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO wallets (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id, user_id, balance, updated_at`,
		userID,
	).StructScan(w)
	if err != nil {
		return nil, err
	}

	return w, nil
}

// lockWallet берёт строку кошелька под FOR UPDATE, создавая её при первом обращении.
func lockWallet(ctx context.Context, tx *sqlx.Tx, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := tx.QueryRowxContext(ctx,
		`SELECT id, user_id, balance, updated_at
		 FROM wallets
		 WHERE user_id = $1
		 FOR UPDATE`,
		userID,
	).StructScan(w)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO wallets (user_id)
		 VALUES ($1)
		 RETURNING id, user_id, balance, updated_at`,
		userID,
	).StructScan(w)
	if err != nil {
		return nil, err
	}

	return w, nil
}

// applyTxToBalance пишет движение в wallet_txs и сразу обновляет баланс той же
// транзакцией. Баланс никогда не пересчитывается из истории задним числом.
func applyTxToBalance(ctx context.Context, tx *sqlx.Tx, w *Wallet, kind string, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}

	var newBalance decimal.Decimal
	switch kind {
	case TxDebit:
		newBalance = w.Balance.Sub(amount)
		if newBalance.IsNegative() {
			return decimal.Zero, ErrInsufficientBalance
		}
	case TxTopup, TxRefund, TxAdjust:
		newBalance = w.Balance.Add(amount)
	default:
		return decimal.Zero, errors.New("unknown wallet tx kind: " + kind)
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE wallets
		 SET balance = $1, updated_at = NOW()
		 WHERE id = $2`,
		newBalance, w.ID,
	)
	if err != nil {
		return decimal.Zero, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_txs (wallet_id, kind, amount, reason)
		 VALUES ($1, $2, $3, $4)`,
		w.ID, kind, amount, reason,
	)
	if err != nil {
		return decimal.Zero, err
	}

	w.Balance = newBalance
	return newBalance, nil
}

func (r *Repository) apply(ctx context.Context, userID int, kind string, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback()

	w, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	newBalance, err := applyTxToBalance(ctx, tx, w, kind, amount, reason)
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

func (r *Repository) Topup(ctx context.Context, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	return r.apply(ctx, userID, TxTopup, amount, reason)
}

func (r *Repository) Debit(ctx context.Context, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	return r.apply(ctx, userID, TxDebit, amount, reason)
}

func (r *Repository) Refund(ctx context.Context, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	return r.apply(ctx, userID, TxRefund, amount, reason)
}

func (r *Repository) Adjust(ctx context.Context, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	return r.apply(ctx, userID, TxAdjust, amount, reason)
}

// TopupTx и остальные *Tx-варианты работают внутри чужой транзакции — для
// операций, где кошелёк меняется вместе с заказом или бронью атомарно.
func (r *Repository) TopupTx(ctx context.Context, tx *sqlx.Tx, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	w, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return applyTxToBalance(ctx, tx, w, TxTopup, amount, reason)
}

func (r *Repository) DebitTx(ctx context.Context, tx *sqlx.Tx, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	w, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return applyTxToBalance(ctx, tx, w, TxDebit, amount, reason)
}

func (r *Repository) RefundTx(ctx context.Context, tx *sqlx.Tx, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	w, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return applyTxToBalance(ctx, tx, w, TxRefund, amount, reason)
}

func (r *Repository) GetTransactions(ctx context.Context, userID int, limit, offset int) ([]Tx, error) {
	if limit <= 0 {
		limit = 50
	}

	var walletID int
	err := r.db.GetContext(ctx, &walletID, `SELECT id FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []Tx{}, nil
		}
		return nil, err
	}

	var txs []Tx
	err = r.db.SelectContext(ctx, &txs, `
		SELECT id, wallet_id, kind, amount, reason, created_at
		FROM wallet_txs
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}

	return txs, nil
}
