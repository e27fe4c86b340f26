package rent

import (
	"fmt"
	"time"
)

const (
	StatusNew      = "new"
	StatusPending  = "pending"
	StatusPaid     = "paid"
	StatusCanceled = "canceled"
)

// Детализация статуса интента в tb_status.
const (
	DetailWalletPaid      = "WALLET_PAID"
	DetailInitFailed      = "INIT_FAILED"
	DetailDeadlineExpired = "DEADLINE_EXPIRED"
	DetailSlotConflict    = "SLOT_CONFLICT"
)

// Состояния часового слота в недельной сетке.
const (
	SlotPending  = "pending"
	SlotTraining = "training"
	SlotBusy     = "busy"
	SlotRentPaid = "rent_paid"
)

// slotPriority разрешает конфликт состояний на одном часе: неоплаченный
// интент уступает подтверждённым занятиям, rent_paid показывается только
// владельцу и перекрывает всё.
var slotPriority = map[string]int{
	SlotPending:  1,
	SlotTraining: 2,
	SlotBusy:     2,
	SlotRentPaid: 3,
}

// Intent — заявка на аренду зала с привязанным платежом.
type Intent struct {
	ID           int        `db:"id" json:"id"`
	UserID       *int       `db:"user_id" json:"user_id,omitempty"`
	SessionID    *int       `db:"session_id" json:"session_id,omitempty"`
	Location     string     `db:"location" json:"location"`
	SlotStart    time.Time  `db:"slot_start" json:"slot_start"`
	DurationMin  int        `db:"duration_min" json:"duration_min"`
	FullName     string     `db:"full_name" json:"full_name"`
	Email        string     `db:"email" json:"email"`
	Phone        string     `db:"phone" json:"phone"`
	SocialHandle string     `db:"social_handle" json:"social_handle"`
	Comment      string     `db:"comment" json:"comment"`
	PromoCode    string     `db:"promo_code" json:"promo_code"`
	AmountRub    int        `db:"amount_rub" json:"amount_rub"`
	Status       string     `db:"status" json:"status"`
	TBPaymentID  string     `db:"tb_payment_id" json:"-"`
	TBStatus     string     `db:"tb_status" json:"tb_status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	PaidAt       *time.Time `db:"paid_at" json:"paid_at,omitempty"`
}

func (i *Intent) SlotEnd() time.Time {
	return i.SlotStart.Add(time.Duration(i.DurationMin) * time.Minute)
}

func (i *Intent) Terminal() bool {
	return i.Status == StatusPaid || i.Status == StatusCanceled
}

// Request — контактная заявка, прикреплённая к созданной аренде.
type Request struct {
	ID           int       `db:"id" json:"id"`
	SessionID    int       `db:"session_id" json:"session_id"`
	UserID       *int      `db:"user_id" json:"user_id,omitempty"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	SocialHandle string    `db:"social_handle" json:"social_handle"`
	Comment      string    `db:"comment" json:"comment"`
	PromoCode    string    `db:"promo_code" json:"promo_code"`
	PriceRub     int       `db:"price_rub" json:"price_rub"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// SlotKey — ключ часового слота в сетке недели.
func SlotKey(t time.Time) string {
	return t.Format("2006-01-02T15")
}

func ParseSlotKey(key string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02T15", key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad slot key %q: %w", key, err)
	}
	return t, nil
}

// markSlots раскладывает интервал по часовым корзинам сетки, повышая
// состояние корзины только если приоритет нового выше.
func markSlots(grid map[string]string, start, end time.Time, state string) {
	slot := start.Truncate(time.Hour)
	for slot.Before(end) {
		key := SlotKey(slot)
		if cur, ok := grid[key]; !ok || slotPriority[state] > slotPriority[cur] {
			grid[key] = state
		}
		slot = slot.Add(time.Hour)
	}
}
