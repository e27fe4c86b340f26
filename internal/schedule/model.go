package schedule

import (
	"strings"
	"time"
	"unicode"
)

const (
	SessionGroup    = "group"
	SessionPersonal = "personal"
	SessionRent     = "rent"

	StatusBooked   = "booked"
	StatusWaitlist = "waitlist"
	StatusInvited  = "invited"
	StatusCanceled = "canceled"

	AttendanceNotMarked = "not_marked"
	AttendanceAttended  = "attended"
	AttendanceMissed    = "missed"

	// Отменить бронь можно не позже, чем за 2 часа до начала.
	CancelCutoff = 2 * time.Hour
	// Приглашение из листа ожидания живёт час.
	InviteWindow = time.Hour
)

type Trainer struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type Workout struct {
	ID                 int       `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Level              string    `db:"level" json:"level"`
	Description        string    `db:"description" json:"description"`
	DefaultDurationMin int       `db:"default_duration_min" json:"default_duration_min"`
	DefaultCapacity    int       `db:"default_capacity" json:"default_capacity"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// Session — занятие в расписании: групповое, персональное или аренда зала.
// У аренды client_id указывает на владельца слота.
type Session struct {
	ID          int       `db:"id" json:"id"`
	WorkoutID   *int      `db:"workout_id" json:"workout_id"`
	Title       string    `db:"title" json:"title"`
	Kind        string    `db:"kind" json:"kind"`
	ClientID    *int      `db:"client_id" json:"client_id,omitempty"`
	StartAt     time.Time `db:"start_at" json:"start_at"`
	DurationMin int       `db:"duration_min" json:"duration_min"`
	Location    string    `db:"location" json:"location"`
	TrainerID   *int      `db:"trainer_id" json:"trainer_id"` // аренда идёт без тренера
	Capacity    int       `db:"capacity" json:"capacity"`
}

func (s *Session) EndAt() time.Time {
	return s.StartAt.Add(time.Duration(s.DurationMin) * time.Minute)
}

type Booking struct {
	ID               int        `db:"id" json:"id"`
	UserID           int        `db:"user_id" json:"user_id"`
	SessionID        int        `db:"session_id" json:"session_id"`
	MembershipID     *int       `db:"membership_id" json:"membership_id"`
	BookingStatus    string     `db:"booking_status" json:"booking_status"`
	AttendanceStatus string     `db:"attendance_status" json:"attendance_status"`
	MarkedAt         *time.Time `db:"marked_at" json:"marked_at"`
	CanceledAt       *time.Time `db:"canceled_at" json:"canceled_at"`
	InviteSentAt     *time.Time `db:"invite_sent_at" json:"invite_sent_at"`
	InviteExpiresAt  *time.Time `db:"invite_expires_at" json:"invite_expires_at"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

func (b *Booking) InviteExpired(now time.Time) bool {
	return b.BookingStatus == StatusInvited &&
		b.InviteExpiresAt != nil && now.After(*b.InviteExpiresAt)
}

// Overlaps — пересечение полуоткрытых интервалов [startA, endA) и [startB, endB).
func Overlaps(startA, endA, startB, endB time.Time) bool {
	return startA.Before(endB) && startB.Before(endA)
}

// NormAddr нормализует адрес студии для сравнения:
// регистр, ё/е и пунктуация не должны разводить один адрес на два.
func NormAddr(addr string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(addr) {
		if r == 'ё' {
			r = 'е'
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
