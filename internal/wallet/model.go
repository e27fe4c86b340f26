package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TxTopup  = "topup"
	TxDebit  = "debit"
	TxRefund = "refund"
	TxAdjust = "adjust"
)

// Wallet — кошелёк клиента, баланс в рублях.
type Wallet struct {
	ID        int             `db:"id" json:"id"`
	UserID    int             `db:"user_id" json:"user_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

type Tx struct {
	ID        int             `db:"id" json:"id"`
	WalletID  int             `db:"wallet_id" json:"wallet_id"`
	Kind      string          `db:"kind" json:"kind"` // topup, debit, refund, adjust
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Reason    string          `db:"reason" json:"reason"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type TopupRequest struct {
	UserID int             `json:"user_id" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason string          `json:"reason"`
}

type DebitRequest struct {
	UserID int             `json:"user_id" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason string          `json:"reason"`
}
