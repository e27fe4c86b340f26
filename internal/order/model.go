package order

import "time"

const (
	StatusNew            = "new"
	StatusPaymentPending = "payment_pending"
	StatusPaid           = "paid"
	StatusCanceled       = "canceled"
)

// Что выдаётся покупателю после оплаты позиции.
const (
	GrantNone        = "none"
	GrantMembership  = "membership"
	GrantWalletTopup = "wallet_topup"
)

// Product — позиция витрины. Товары с grant_kind=membership несут шаблон
// абонемента, который будет выдан после оплаты.
type Product struct {
	ID               int       `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Description      string    `db:"description" json:"description"`
	PriceRub         int       `db:"price_rub" json:"price_rub"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	GrantKind        string    `db:"grant_kind" json:"grant_kind"`
	MembershipKind   string    `db:"membership_kind" json:"membership_kind,omitempty"`
	MembershipScope  string    `db:"membership_scope" json:"membership_scope,omitempty"`
	MembershipVisits *int      `db:"membership_visits" json:"membership_visits,omitempty"`
	MembershipDays   *int      `db:"membership_days" json:"membership_days,omitempty"`
	WalletTopupRub   *int      `db:"wallet_topup_rub" json:"wallet_topup_rub,omitempty"`
	BonusEligible    bool      `db:"bonus_eligible" json:"bonus_eligible"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

type Order struct {
	ID          int        `db:"id" json:"id"`
	UserID      *int       `db:"user_id" json:"user_id"`
	Status      string     `db:"status" json:"status"`
	TotalRub    int        `db:"total_rub" json:"total_rub"`
	TBPaymentID string     `db:"tb_payment_id" json:"-"`
	TBStatus    string     `db:"tb_status" json:"tb_status"`
	FulfilledAt *time.Time `db:"fulfilled_at" json:"fulfilled_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

func (o *Order) Terminal() bool {
	return o.Status == StatusPaid || o.Status == StatusCanceled
}

// Item хранит снимок названия и цены на момент покупки: витрина меняется,
// заказ — нет.
type Item struct {
	ID           int    `db:"id" json:"id"`
	OrderID      int    `db:"order_id" json:"order_id"`
	ProductID    *int   `db:"product_id" json:"product_id"`
	ProductName  string `db:"product_name" json:"product_name"`
	UnitPriceRub int    `db:"unit_price_rub" json:"unit_price_rub"`
	Qty          int    `db:"qty" json:"qty"`
}

type Grant struct {
	ID           int       `db:"id" json:"id"`
	OrderItemID  int       `db:"order_item_id" json:"order_item_id"`
	MembershipID int       `db:"membership_id" json:"membership_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
