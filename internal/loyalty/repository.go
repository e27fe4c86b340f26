package loyalty

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	// ErrBonusBalanceChanged — между расчётом плана и списанием бонусов
	// параллельная операция успела потратить часть остатка.
	ErrBonusBalanceChanged = errors.New("bonus balance changed during payment")
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) EnsureProfile(ctx context.Context, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO loyalty_profiles (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	return err
}

func (r *Repository) GetProfile(ctx context.Context, userID int) (*Profile, error) {
	p := &Profile{}
	err := r.db.GetContext(ctx, p, `SELECT * FROM loyalty_profiles WHERE user_id = $1`, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO loyalty_profiles (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id, user_id, spent_total, discount_percent, updated_at`,
		userID,
	).StructScan(p)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// GrantCashback начисляет 5% от базы. Повторный вызов с тем же источником —
// no-op: побеждает первое начисление, даже если суммы разошлись.
func (r *Repository) GrantCashback(ctx context.Context, userID int, baseAmount decimal.Decimal, sourceType string, sourceID int64, reason string) (*CashbackBonus, error) {
	if baseAmount.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}

	amount := cashbackAmount(baseAmount)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil
	}
	expiresAt := addMonths(time.Now(), BonusTTLMonths)

	b := &CashbackBonus{}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO cashback_bonuses (user_id, source_type, source_id, base_amount, amount, remaining_amount, reason, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $5, $6, $7)
		 ON CONFLICT (user_id, source_type, source_id) DO NOTHING
		 RETURNING id, user_id, source_type, source_id, base_amount, amount, remaining_amount, reason, expires_at, created_at`,
		userID, sourceType, sourceID, baseAmount, amount, reason, expiresAt,
	).StructScan(b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// уже начисляли с этого источника
			return nil, nil
		}
		return nil, err
	}

	return b, nil
}

func (r *Repository) GetBonusBalance(ctx context.Context, userID int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.GetContext(ctx, &balance,
		`SELECT COALESCE(SUM(remaining_amount), 0)
		 FROM cashback_bonuses
		 WHERE user_id = $1 AND remaining_amount > 0 AND expires_at > NOW()`,
		userID,
	)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *Repository) ListBonuses(ctx context.Context, userID int) ([]CashbackBonus, error) {
	var bonuses []CashbackBonus
	err := r.db.SelectContext(ctx, &bonuses,
		`SELECT * FROM cashback_bonuses
		 WHERE user_id = $1 AND remaining_amount > 0 AND expires_at > NOW()
		 ORDER BY expires_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return bonuses, nil
}

// SpentBySourceTx — сколько бонусов ушло на конкретную оплату. Нужен при
// возвратах, чтобы деньгами вернуть только денежную часть.
func (r *Repository) SpentBySourceTx(ctx context.Context, tx *sqlx.Tx, sourceType string, sourceID int64) (decimal.Decimal, error) {
	var spent decimal.Decimal
	err := tx.GetContext(ctx, &spent,
		`SELECT COALESCE(SUM(amount), 0)
		 FROM cashback_bonus_spends
		 WHERE source_type = $1 AND source_id = $2`,
		sourceType, sourceID,
	)
	if err != nil {
		return decimal.Zero, err
	}
	return spent, nil
}

// spendBonusesTx списывает amount с неистёкших бонусов, ближайшие к сгоранию
// первыми, под блокировкой строк. По записи в cashback_bonus_spends на каждый
// затронутый бонус.
func (r *Repository) spendBonusesTx(ctx context.Context, tx *sqlx.Tx, userID int, amount decimal.Decimal, sourceType string, sourceID int64, reason string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	var bonuses []CashbackBonus
	err := tx.SelectContext(ctx, &bonuses,
		`SELECT id, user_id, source_type, source_id, base_amount, amount, remaining_amount, reason, expires_at, created_at
		 FROM cashback_bonuses
		 WHERE user_id = $1 AND remaining_amount > 0 AND expires_at > NOW()
		 ORDER BY expires_at
		 FOR UPDATE`,
		userID,
	)
	if err != nil {
		return err
	}

	left := amount
	for _, b := range bonuses {
		if left.LessThanOrEqual(decimal.Zero) {
			break
		}

		take := b.RemainingAmount
		if take.GreaterThan(left) {
			take = left
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE cashback_bonuses
			 SET remaining_amount = remaining_amount - $1
			 WHERE id = $2`,
			take, b.ID,
		)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO cashback_bonus_spends (user_id, bonus_id, source_type, source_id, amount, reason)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			userID, b.ID, sourceType, sourceID, take, reason,
		)
		if err != nil {
			return err
		}

		left = left.Sub(take)
	}

	if left.GreaterThan(decimal.Zero) {
		return ErrBonusBalanceChanged
	}
	return nil
}

// AddSpentTx под блокировкой профиля прибавляет сумму к накопленным тратам и
// пересчитывает процент скидки. Вызывать ровно один раз на подтверждённый платёж.
func (r *Repository) AddSpentTx(ctx context.Context, tx *sqlx.Tx, userID int, amount decimal.Decimal) (int, error) {
	p := &Profile{}
	err := tx.QueryRowxContext(ctx,
		`SELECT id, user_id, spent_total, discount_percent, updated_at
		 FROM loyalty_profiles
		 WHERE user_id = $1
		 FOR UPDATE`,
		userID,
	).StructScan(p)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO loyalty_profiles (user_id)
			 VALUES ($1)
			 RETURNING id, user_id, spent_total, discount_percent, updated_at`,
			userID,
		).StructScan(p)
		if err != nil {
			return 0, err
		}
	}

	newTotal := p.SpentTotal.Add(amount)
	percent := tierFor(newTotal)

	_, err = tx.ExecContext(ctx,
		`UPDATE loyalty_profiles
		 SET spent_total = $1, discount_percent = $2, updated_at = NOW()
		 WHERE id = $3`,
		newTotal, percent, p.ID,
	)
	if err != nil {
		return 0, err
	}

	return percent, nil
}

func (r *Repository) AddSpent(ctx context.Context, userID int, amount decimal.Decimal) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	percent, err := r.AddSpentTx(ctx, tx, userID, amount)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return percent, nil
}

func (r *Repository) DiscountPercent(ctx context.Context, userID int) (int, error) {
	var percent int
	err := r.db.GetContext(ctx, &percent,
		`SELECT discount_percent FROM loyalty_profiles WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return percent, nil
}
