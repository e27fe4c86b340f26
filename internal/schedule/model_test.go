package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)
	hour := time.Hour

	// встык — не пересечение
	require.False(t, Overlaps(base, base.Add(hour), base.Add(hour), base.Add(2*hour)))
	require.False(t, Overlaps(base.Add(hour), base.Add(2*hour), base, base.Add(hour)))

	// частичное и полное перекрытие
	require.True(t, Overlaps(base, base.Add(hour), base.Add(30*time.Minute), base.Add(90*time.Minute)))
	require.True(t, Overlaps(base, base.Add(2*hour), base.Add(30*time.Minute), base.Add(hour)))
	require.True(t, Overlaps(base, base.Add(hour), base, base.Add(hour)))
}

func TestNormAddr(t *testing.T) {
	require.Equal(t, NormAddr("Сакко и Ванцетти, 93а"), NormAddr("сакко и ванцетти 93А"))
	require.Equal(t, NormAddr("Семёновская, 1"), NormAddr("семеновская 1"))
	require.NotEqual(t, NormAddr("Ленина, 5"), NormAddr("Ленина, 7"))
	require.Equal(t, "ленина5", NormAddr(" Ленина, 5! "))
}

func TestSessionEndAt(t *testing.T) {
	s := Session{
		StartAt:     time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC),
		DurationMin: 50,
	}
	require.Equal(t, time.Date(2026, time.March, 10, 10, 50, 0, 0, time.UTC), s.EndAt())
}

func TestInviteExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	b := Booking{BookingStatus: StatusInvited, InviteExpiresAt: &past}
	require.True(t, b.InviteExpired(now))

	b.InviteExpiresAt = &future
	require.False(t, b.InviteExpired(now))

	b = Booking{BookingStatus: StatusBooked, InviteExpiresAt: &past}
	require.False(t, b.InviteExpired(now), "only invited bookings expire")
}
