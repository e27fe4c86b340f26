package loyalty

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dobrv4er/woomfit/internal/wallet"
)

type Service struct {
	db      *sqlx.DB
	repo    *Repository
	wallets wallet.Store
}

func NewService(db *sqlx.DB, wallets wallet.Store) *Service {
	return &Service{
		db:      db,
		repo:    NewRepository(db),
		wallets: wallets,
	}
}

func (s *Service) Repo() *Repository {
	return s.repo
}

func (s *Service) BuildBonusPaymentPlan(ctx context.Context, userID int, total, eligible decimal.Decimal) (*BonusPaymentPlan, error) {
	available, err := s.repo.GetBonusBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan := planBonus(available, total, eligible)
	return &plan, nil
}

// PayWithWalletBonusTx закрывает покупку бонусами и кошельком внутри чужой
// транзакции. Кошелёк блокируется раньше бонусов — этот порядок одинаков во
// всех платёжных потоках.
func (s *Service) PayWithWalletBonusTx(ctx context.Context, tx *sqlx.Tx, userID int, total, eligible decimal.Decimal, reason, sourceType string, sourceID int64) (*PaymentBreakdown, error) {
	available, err := s.repo.GetBonusBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan := planBonus(available, total, eligible)

	if plan.CashNeeded.GreaterThan(decimal.Zero) {
		if _, err := s.wallets.DebitTx(ctx, tx, userID, plan.CashNeeded, reason); err != nil {
			return nil, err
		}
	}

	if err := s.repo.spendBonusesTx(ctx, tx, userID, plan.BonusUsed, sourceType, sourceID, reason); err != nil {
		return nil, err
	}

	return &PaymentBreakdown{
		BonusUsed: plan.BonusUsed,
		CashPaid:  plan.CashNeeded,
	}, nil
}

func (s *Service) PayWithWalletBonus(ctx context.Context, userID int, total, eligible decimal.Decimal, reason, sourceType string, sourceID int64) (*PaymentBreakdown, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	breakdown, err := s.PayWithWalletBonusTx(ctx, tx, userID, total, eligible, reason, sourceType, sourceID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return breakdown, nil
}
