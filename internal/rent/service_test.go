package rent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dobrv4er/woomfit/internal/config"
)

func testService() *Service {
	return &Service{cfg: &config.Config{
		RentOpenHour:  8,
		RentCloseHour: 22,
		RentSlotMin:   60,
		RentPriceRub:  650,
	}}
}

func TestValidateSlot(t *testing.T) {
	svc := testService()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	day := func(h, m int) time.Time {
		return time.Date(2026, time.March, 11, h, m, 0, 0, time.UTC)
	}

	require.NoError(t, svc.validateSlot(day(8, 0), now))
	require.NoError(t, svc.validateSlot(day(21, 0), now), "last slot ends exactly at closing")

	require.ErrorIs(t, svc.validateSlot(day(7, 0), now), ErrSlotOutOfHours)
	require.ErrorIs(t, svc.validateSlot(day(22, 0), now), ErrSlotOutOfHours)
	require.ErrorIs(t, svc.validateSlot(day(10, 30), now), ErrSlotOutOfHours, "slots are hour-aligned")

	past := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
	require.ErrorIs(t, svc.validateSlot(past, now), ErrSlotInPast)
}
