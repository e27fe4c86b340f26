package membership

import "time"

const (
	KindVisits    = "visits"
	KindTime      = "time"
	KindUnlimited = "unlimited"

	ScopeAny      = ""
	ScopeGroup    = "group"
	ScopePersonal = "personal"
)

// Membership — абонемент клиента. Абонемент с validity_days и пустым
// start_date ждёт активации: срок пойдёт с первого посещения.
type Membership struct {
	ID           int        `db:"id" json:"id"`
	UserID       int        `db:"user_id" json:"user_id"`
	Title        string     `db:"title" json:"title"`
	Kind         string     `db:"kind" json:"kind"`   // visits, time, unlimited
	Scope        string     `db:"scope" json:"scope"` // "", group, personal
	TotalVisits  *int       `db:"total_visits" json:"total_visits"`
	LeftVisits   *int       `db:"left_visits" json:"left_visits"`
	StartDate    *time.Time `db:"start_date" json:"start_date"`
	EndDate      *time.Time `db:"end_date" json:"end_date"`
	ValidityDays *int       `db:"validity_days" json:"validity_days"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

func (m *Membership) IsPendingActivation() bool {
	return m.ValidityDays != nil && *m.ValidityDays > 0 && m.StartDate == nil
}

// ActiveByDate проверяет попадание today в [start_date, end_date].
// Отсутствующая граница не ограничивает.
func (m *Membership) ActiveByDate(today time.Time) bool {
	day := dateOnly(today)
	if m.StartDate != nil && day.Before(dateOnly(*m.StartDate)) {
		return false
	}
	if m.EndDate != nil && day.After(dateOnly(*m.EndDate)) {
		return false
	}
	return true
}

func (m *Membership) CanBookGroup(today time.Time) bool {
	if !m.IsActive {
		return false
	}
	if m.Scope != ScopeAny && m.Scope != ScopeGroup {
		return false
	}
	if !m.IsPendingActivation() && !m.ActiveByDate(today) {
		return false
	}
	if m.Kind == KindVisits && m.LeftVisits != nil && *m.LeftVisits <= 0 {
		return false
	}
	return true
}

// ConsumeVisit списывает посещение. Активация по первому визиту происходит
// здесь же: срок действия стартует в день списания. Возвращает false без
// изменений, если списывать нечего.
func (m *Membership) ConsumeVisit(today time.Time) bool {
	if m.Kind == KindVisits && m.LeftVisits != nil && *m.LeftVisits <= 0 {
		return false
	}

	if m.IsPendingActivation() {
		start := dateOnly(today)
		end := start.AddDate(0, 0, *m.ValidityDays-1)
		m.StartDate = &start
		m.EndDate = &end
	}

	if m.Kind == KindVisits && m.LeftVisits != nil {
		*m.LeftVisits--
		if *m.LeftVisits <= 0 {
			m.IsActive = false
		}
	}
	return true
}

// RefundVisit возвращает посещение после отмены брони. Для time/unlimited
// ничего не делает: продление срока за отменённую бронь не моделируется.
func (m *Membership) RefundVisit() {
	if m.Kind != KindVisits || m.LeftVisits == nil {
		return
	}

	*m.LeftVisits++
	if m.TotalVisits != nil && *m.LeftVisits > *m.TotalVisits {
		*m.LeftVisits = *m.TotalVisits
	}
	if *m.LeftVisits > 0 {
		m.IsActive = true
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
