package membership

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrNoVisitsLeft        = errors.New("no visits left on membership")
	ErrMembershipNotUsable = errors.New("membership cannot pay for group session")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, id int) (*Membership, error) {
	m := &Membership{}
	err := r.db.GetContext(ctx, m, `SELECT * FROM memberships WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID int) ([]Membership, error) {
	var ms []Membership
	err := r.db.SelectContext(ctx, &ms,
		`SELECT * FROM memberships
		 WHERE user_id = $1
		 ORDER BY is_active DESC, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return ms, nil
}

// ListGroupBookable возвращает абонементы, которыми можно оплатить групповое
// занятие, ближайшие к окончанию первыми, чтобы сгорающие тратились раньше.
func (r *Repository) ListGroupBookable(ctx context.Context, userID int, today time.Time) ([]Membership, error) {
	var ms []Membership
	err := r.db.SelectContext(ctx, &ms,
		`SELECT * FROM memberships
		 WHERE user_id = $1 AND is_active = TRUE
		 ORDER BY end_date NULLS LAST, created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	bookable := ms[:0]
	for _, m := range ms {
		if m.CanBookGroup(today) {
			bookable = append(bookable, m)
		}
	}
	return bookable, nil
}

func lockMembership(ctx context.Context, tx *sqlx.Tx, id int) (*Membership, error) {
	m := &Membership{}
	err := tx.QueryRowxContext(ctx,
		`SELECT id, user_id, title, kind, scope, total_visits, left_visits,
		        start_date, end_date, validity_days, is_active, created_at
		 FROM memberships
		 WHERE id = $1
		 FOR UPDATE`,
		id,
	).StructScan(m)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return m, nil
}

func saveState(ctx context.Context, tx *sqlx.Tx, m *Membership) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE memberships
		 SET left_visits = $1, start_date = $2, end_date = $3, is_active = $4
		 WHERE id = $5`,
		m.LeftVisits, m.StartDate, m.EndDate, m.IsActive, m.ID,
	)
	return err
}

// ConsumeVisitTx списывает посещение под блокировкой строки абонемента.
func (r *Repository) ConsumeVisitTx(ctx context.Context, tx *sqlx.Tx, id int, today time.Time) (*Membership, error) {
	m, err := lockMembership(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if !m.CanBookGroup(today) {
		if m.Kind == KindVisits && m.LeftVisits != nil && *m.LeftVisits <= 0 {
			return nil, ErrNoVisitsLeft
		}
		return nil, ErrMembershipNotUsable
	}

	if !m.ConsumeVisit(today) {
		return nil, ErrNoVisitsLeft
	}

	if err := saveState(ctx, tx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) RefundVisitTx(ctx context.Context, tx *sqlx.Tx, id int) (*Membership, error) {
	m, err := lockMembership(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	m.RefundVisit()

	if err := saveState(ctx, tx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Create выдаёт абонемент; validity_days без start_date означает ожидание
// активации первым визитом.
func (r *Repository) Create(ctx context.Context, tx *sqlx.Tx, m *Membership) (*Membership, error) {
	query := `INSERT INTO memberships (user_id, title, kind, scope, total_visits, left_visits,
	                                   start_date, end_date, validity_days, is_active)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
	          RETURNING id, user_id, title, kind, scope, total_visits, left_visits,
	                    start_date, end_date, validity_days, is_active, created_at`
	args := []interface{}{
		m.UserID, m.Title, m.Kind, m.Scope, m.TotalVisits, m.LeftVisits,
		m.StartDate, m.EndDate, m.ValidityDays,
	}

	created := &Membership{}
	var err error
	if tx != nil {
		err = tx.QueryRowxContext(ctx, query, args...).StructScan(created)
	} else {
		err = r.db.QueryRowxContext(ctx, query, args...).StructScan(created)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GrantSingleVisit — разовый «абонемент» на одно групповое посещение,
// создаётся при оплате одиночного занятия.
func (r *Repository) GrantSingleVisit(ctx context.Context, tx *sqlx.Tx, userID int, title string) (*Membership, error) {
	one := 1
	return r.Create(ctx, tx, &Membership{
		UserID:      userID,
		Title:       title,
		Kind:        KindVisits,
		Scope:       ScopeGroup,
		TotalVisits: &one,
		LeftVisits:  &one,
	})
}

func (r *Repository) Deactivate(ctx context.Context, tx *sqlx.Tx, id int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE memberships SET is_active = FALSE WHERE id = $1`, id)
	return err
}
