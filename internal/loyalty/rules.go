package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CashbackPercent = 5
	BonusCapPercent = 30
	BonusTTLMonths  = 4
)

var (
	cashbackRate = decimal.New(int64(CashbackPercent), -2)
	bonusCapRate = decimal.New(int64(BonusCapPercent), -2)

	tierThresholds = []struct {
		Spent   decimal.Decimal
		Percent int
	}{
		{decimal.NewFromInt(100_000), 10},
		{decimal.NewFromInt(50_000), 7},
		{decimal.NewFromInt(25_000), 5},
		{decimal.NewFromInt(10_000), 3},
	}
)

func tierFor(spentTotal decimal.Decimal) int {
	for _, t := range tierThresholds {
		if spentTotal.GreaterThanOrEqual(t.Spent) {
			return t.Percent
		}
	}
	return 0
}

func cashbackAmount(baseAmount decimal.Decimal) decimal.Decimal {
	return baseAmount.Mul(cashbackRate).Round(2)
}

// planBonus считает план оплаты: бонусами закрывается не больше 30% бонусной
// части покупки; bonus_used округляется вниз — кап не округляем в пользу клиента.
func planBonus(available, total, eligible decimal.Decimal) BonusPaymentPlan {
	if eligible.GreaterThan(total) {
		eligible = total
	}
	cap := eligible.Mul(bonusCapRate).RoundDown(2)

	used := available
	if used.GreaterThan(cap) {
		used = cap
	}
	used = used.RoundDown(2)
	if used.IsNegative() {
		used = decimal.Zero
	}

	return BonusPaymentPlan{
		BonusAvailable: available,
		BonusCap:       cap,
		BonusUsed:      used,
		CashNeeded:     total.Sub(used).Round(2),
	}
}

// ApplyDiscount применяет процент скидки лояльности к цене.
func ApplyDiscount(amount decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		return amount
	}
	factor := decimal.NewFromInt(int64(100 - percent)).Div(decimal.NewFromInt(100))
	return amount.Mul(factor).Round(2)
}

// addMonths — календарное прибавление месяцев: 31 октября + 4 мес даёт
// последний день февраля, а не начало марта, как у AddDate.
func addMonths(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()

	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
