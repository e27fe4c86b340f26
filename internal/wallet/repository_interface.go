package wallet

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type Store interface {
	GetOrCreate(ctx context.Context, userID int) (*Wallet, error)
	Topup(ctx context.Context, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error)
	Debit(ctx context.Context, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error)
	Refund(ctx context.Context, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error)
	TopupTx(ctx context.Context, tx *sqlx.Tx, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error)
	DebitTx(ctx context.Context, tx *sqlx.Tx, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error)
	RefundTx(ctx context.Context, tx *sqlx.Tx, userID int, amount decimal.Decimal, reason string) (decimal.Decimal, error)
	GetTransactions(ctx context.Context, userID int, limit, offset int) ([]Tx, error)
}
