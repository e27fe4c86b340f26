package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Domain helpers so call sites don't assemble HTML by hand.

func (s *Service) WalletTopup(ctx context.Context, who string, amount, balance decimal.Decimal, reason string) {
	s.Send(ctx, fmt.Sprintf(
		"➕ <b>Кошелёк: пополнение</b>\nКлиент: <b>%s</b>\nСумма: <b>%s</b>\nБаланс: <b>%s</b>\nПричина: %s",
		who, amount.StringFixed(2), balance.StringFixed(2), orDash(reason)))
}

func (s *Service) WalletDebit(ctx context.Context, who string, amount, balance decimal.Decimal, reason string) {
	s.Send(ctx, fmt.Sprintf(
		"➖ <b>Кошелёк: списание</b>\nКлиент: <b>%s</b>\nСумма: <b>%s</b>\nБаланс: <b>%s</b>\nПричина: %s",
		who, amount.StringFixed(2), balance.StringFixed(2), orDash(reason)))
}

func (s *Service) WalletRefund(ctx context.Context, who string, amount, balance decimal.Decimal, reason string) {
	s.Send(ctx, fmt.Sprintf(
		"↩️ <b>Кошелёк: возврат</b>\nКлиент: <b>%s</b>\nСумма: <b>%s</b>\nБаланс: <b>%s</b>\nПричина: %s",
		who, amount.StringFixed(2), balance.StringFixed(2), orDash(reason)))
}

func (s *Service) BookingCreated(ctx context.Context, who, sessionTitle string, startAt time.Time, source string) {
	s.Send(ctx, fmt.Sprintf(
		"✅ <b>Новая запись</b>\nКлиент: <b>%s</b>\nЗанятие: <b>%s</b>\nВремя: <b>%s</b>\nОплата: %s",
		who, sessionTitle, startAt.Format("02.01 15:04"), source))
}

func (s *Service) BookingCanceled(ctx context.Context, who, sessionTitle string, startAt time.Time, reason string) {
	s.Send(ctx, fmt.Sprintf(
		"🚫 <b>Отмена записи</b>\nКлиент: <b>%s</b>\nЗанятие: <b>%s</b>\nВремя: <b>%s</b>\n%s",
		who, sessionTitle, startAt.Format("02.01 15:04"), reason))
}

func (s *Service) RentPaid(ctx context.Context, fullName, phone, location string, slotStart time.Time, amountRub int) {
	s.Send(ctx, fmt.Sprintf(
		"🔑 <b>Аренда оплачена</b>\nКлиент: <b>%s</b>\nТелефон: %s\nЗал: %s\nСлот: <b>%s</b>\nСумма: <b>%d ₽</b>",
		fullName, phone, location, slotStart.Format("02.01 15:04"), amountRub))
}

// RentSlotConflict is the staff escalation for a payment that succeeded
// upstream while the slot was taken locally. Needs a manual refund.
func (s *Service) RentSlotConflict(ctx context.Context, intentID int, fullName, phone string, slotStart time.Time) {
	s.Send(ctx, fmt.Sprintf(
		"⚠️ <b>Конфликт слота при оплате аренды!</b>\nИнтент: <b>#%d</b>\nКлиент: <b>%s</b>\nТелефон: %s\nСлот: <b>%s</b>\nПлатёж прошёл, слот занят — нужен возврат вручную.",
		intentID, fullName, phone, slotStart.Format("02.01 15:04")))
}

func (s *Service) OrderPaid(ctx context.Context, who string, orderID, totalRub int) {
	s.Send(ctx, fmt.Sprintf(
		"🛒 <b>Заказ оплачен</b>\nКлиент: <b>%s</b>\nЗаказ: <b>#%d</b>\nСумма: <b>%d ₽</b>",
		who, orderID, totalRub))
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}
