package payment

import "time"

const (
	StatusNew      = "new"
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusCanceled = "canceled"
)

const (
	DetailWalletPaid  = "WALLET_PAID"
	DetailInitFailed  = "INIT_FAILED"
	DetailSessionFull = "SESSION_FULL"
)

// Intent — платёж за разовое занятие. Успешная оплата выдаёт одноразовый
// абонемент и сразу списывает с него посещение в бронь.
type Intent struct {
	ID          int        `db:"id" json:"id"`
	UserID      int        `db:"user_id" json:"user_id"`
	SessionID   int        `db:"session_id" json:"session_id"`
	AmountRub   int        `db:"amount_rub" json:"amount_rub"`
	Status      string     `db:"status" json:"status"`
	TBPaymentID string     `db:"tb_payment_id" json:"-"`
	TBStatus    string     `db:"tb_status" json:"tb_status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
}

func (i *Intent) Terminal() bool {
	return i.Status == StatusPaid || i.Status == StatusCanceled
}

type WebhookLog struct {
	ID        int       `db:"id" json:"id"`
	Payload   string    `db:"payload" json:"payload"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
