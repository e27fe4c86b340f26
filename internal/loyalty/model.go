package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// Profile — накопленные траты клиента и его текущая скидка.
type Profile struct {
	ID              int             `db:"id" json:"id"`
	UserID          int             `db:"user_id" json:"user_id"`
	SpentTotal      decimal.Decimal `db:"spent_total" json:"spent_total"`
	DiscountPercent int             `db:"discount_percent" json:"discount_percent"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// CashbackBonus — начисление кэшбэка с одного источника (заказ, занятие).
// Пара (source_type, source_id) делает повторное начисление невозможным.
type CashbackBonus struct {
	ID              int             `db:"id" json:"id"`
	UserID          int             `db:"user_id" json:"user_id"`
	SourceType      string          `db:"source_type" json:"source_type"`
	SourceID        int64           `db:"source_id" json:"source_id"`
	BaseAmount      decimal.Decimal `db:"base_amount" json:"base_amount"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	RemainingAmount decimal.Decimal `db:"remaining_amount" json:"remaining_amount"`
	Reason          string          `db:"reason" json:"reason"`
	ExpiresAt       time.Time       `db:"expires_at" json:"expires_at"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

type BonusSpend struct {
	ID         int             `db:"id" json:"id"`
	UserID     int             `db:"user_id" json:"user_id"`
	BonusID    *int            `db:"bonus_id" json:"bonus_id"`
	SourceType string          `db:"source_type" json:"source_type"`
	SourceID   int64           `db:"source_id" json:"source_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Reason     string          `db:"reason" json:"reason"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// BonusPaymentPlan — расчёт «сколько можно закрыть бонусами» без изменения
// состояния. bonus_used ограничен 30% бонусной части покупки.
type BonusPaymentPlan struct {
	BonusAvailable decimal.Decimal `json:"bonus_available"`
	BonusCap       decimal.Decimal `json:"bonus_cap"`
	BonusUsed      decimal.Decimal `json:"bonus_used"`
	CashNeeded     decimal.Decimal `json:"cash_needed"`
}

// PaymentBreakdown — фактический итог списания бонусы+кошелёк.
type PaymentBreakdown struct {
	BonusUsed decimal.Decimal `json:"bonus_used"`
	CashPaid  decimal.Decimal `json:"cash_paid"`
}
