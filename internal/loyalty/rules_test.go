package loyalty

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestTierFor(t *testing.T) {
	cases := []struct {
		spent   string
		percent int
	}{
		{"0", 0},
		{"9999.99", 0},
		{"10000", 3},
		{"24999.99", 3},
		{"25000", 5},
		{"50000", 7},
		{"99999.99", 7},
		{"100000", 10},
		{"250000", 10},
	}

	for _, tc := range cases {
		require.Equal(t, tc.percent, tierFor(d(tc.spent)), "spent=%s", tc.spent)
	}
}

func TestPlanBonus_CapIsThirtyPercentOfEligible(t *testing.T) {
	// 10000 на счету бонусов, покупка 5000, бонусная часть 3000 -> кап 900.
	plan := planBonus(d("10000"), d("5000"), d("3000"))

	require.True(t, plan.BonusCap.Equal(d("900")))
	require.True(t, plan.BonusUsed.Equal(d("900")))
	require.True(t, plan.CashNeeded.Equal(d("4100")))
}

func TestPlanBonus_LimitedByAvailable(t *testing.T) {
	plan := planBonus(d("150.50"), d("5000"), d("5000"))

	require.True(t, plan.BonusCap.Equal(d("1500")))
	require.True(t, plan.BonusUsed.Equal(d("150.50")))
	require.True(t, plan.CashNeeded.Equal(d("4849.50")))
}

func TestPlanBonus_RoundsUsedDown(t *testing.T) {
	// 30% от 333.33 = 99.999 -> кап 99.99, вниз, не в пользу клиента.
	plan := planBonus(d("1000"), d("333.33"), d("333.33"))

	require.True(t, plan.BonusCap.Equal(d("99.99")))
	require.True(t, plan.BonusUsed.Equal(d("99.99")))
	require.True(t, plan.CashNeeded.Equal(d("233.34")))
}

func TestPlanBonus_EligibleClampedToTotal(t *testing.T) {
	plan := planBonus(d("1000"), d("500"), d("700"))

	require.True(t, plan.BonusCap.Equal(d("150")))
}

func TestPlanBonus_NothingEligible(t *testing.T) {
	plan := planBonus(d("1000"), d("700"), decimal.Zero)

	require.True(t, plan.BonusUsed.IsZero())
	require.True(t, plan.CashNeeded.Equal(d("700")))
}

func TestCashbackAmount(t *testing.T) {
	require.True(t, cashbackAmount(d("700")).Equal(d("35")))
	require.True(t, cashbackAmount(d("333.33")).Equal(d("16.67")))
}

func TestApplyDiscount(t *testing.T) {
	require.True(t, ApplyDiscount(d("700"), 0).Equal(d("700")))
	require.True(t, ApplyDiscount(d("700"), 5).Equal(d("665")))
	require.True(t, ApplyDiscount(d("999"), 3).Equal(d("969.03")))
}

func TestAddMonths_ClampsToShorterMonth(t *testing.T) {
	// 31 октября + 4 месяца -> 28/29 февраля, а не 2-3 марта.
	from := time.Date(2025, time.October, 31, 12, 0, 0, 0, time.UTC)
	got := addMonths(from, 4)
	require.Equal(t, time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC), got)

	leap := addMonths(time.Date(2023, time.October, 31, 0, 0, 0, 0, time.UTC), 4)
	require.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), leap)
}

func TestAddMonths_PlainCase(t *testing.T) {
	from := time.Date(2025, time.March, 15, 9, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, time.July, 15, 9, 30, 0, 0, time.UTC), addMonths(from, 4))
}
