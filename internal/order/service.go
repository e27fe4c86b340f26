package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dobrv4er/woomfit/internal/config"
	"github.com/dobrv4er/woomfit/internal/logger"
	"github.com/dobrv4er/woomfit/internal/loyalty"
	"github.com/dobrv4er/woomfit/internal/membership"
	"github.com/dobrv4er/woomfit/internal/metrics"
	"github.com/dobrv4er/woomfit/internal/notify"
	"github.com/dobrv4er/woomfit/internal/tbank"
	"github.com/dobrv4er/woomfit/internal/user"
	"github.com/dobrv4er/woomfit/internal/wallet"
)

var (
	ErrEmptyOrder      = errors.New("order has no items")
	ErrOrderNotPaid    = errors.New("order is not paid")
	ErrUnknownPayment  = errors.New("unknown payment method")
	ErrGatewayDisabled = errors.New("online payments are not configured")
)

const (
	detailWalletPaid = "WALLET_PAID"
	detailInitFailed = "INIT_FAILED"
	detailRevoked    = "REVOKED"
)

type Service struct {
	db          *sqlx.DB
	repo        *Repository
	memberships *membership.Repository
	users       *user.Repository
	wallets     wallet.Store
	loyalty     *loyalty.Service
	notifier    *notify.Service
	gateway     *tbank.Client
	cfg         *config.Config
}

func NewService(db *sqlx.DB, cfg *config.Config, wallets wallet.Store, loyaltySvc *loyalty.Service, notifier *notify.Service, gateway *tbank.Client) *Service {
	return &Service{
		db:          db,
		repo:        NewRepository(db),
		memberships: membership.NewRepository(db),
		users:       user.NewRepository(db),
		wallets:     wallets,
		loyalty:     loyaltySvc,
		notifier:    notifier,
		gateway:     gateway,
		cfg:         cfg,
	}
}

func (s *Service) Repo() *Repository {
	return s.repo
}

type CheckoutLine struct {
	ProductID int `json:"product_id" binding:"required"`
	Qty       int `json:"qty" binding:"required,min=1"`
}

type CheckoutResult struct {
	Order      *Order `json:"order"`
	Items      []Item `json:"items"`
	PaymentURL string `json:"payment_url,omitempty"`
}

// Checkout собирает заказ по витрине. Цены снимаются в заказ с учётом
// персональной скидки лояльности. Заказ с нулевым итогом считается оплаченным
// сразу.
func (s *Service) Checkout(ctx context.Context, userID int, lines []CheckoutLine, payFromWallet bool) (*CheckoutResult, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	discount, err := s.loyalty.Repo().DiscountPercent(ctx, userID)
	if err != nil {
		return nil, err
	}

	type pricedLine struct {
		product *Product
		qty     int
		unitRub int
	}
	priced := make([]pricedLine, 0, len(lines))
	totalRub := 0
	eligibleRub := 0

	for _, line := range lines {
		p, err := s.repo.FindProduct(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if !p.IsActive {
			return nil, ErrProductInactive
		}

		unit := int(loyalty.ApplyDiscount(decimal.NewFromInt(int64(p.PriceRub)), discount).IntPart())
		priced = append(priced, pricedLine{product: p, qty: line.Qty, unitRub: unit})
		totalRub += unit * line.Qty
		if p.BonusEligible {
			eligibleRub += unit * line.Qty
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	o, err := s.repo.CreateOrderTx(ctx, tx, &userID, totalRub)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(priced))
	for _, pl := range priced {
		item, err := s.repo.AddItemTx(ctx, tx, &Item{
			OrderID:      o.ID,
			ProductID:    &pl.product.ID,
			ProductName:  pl.product.Name,
			UnitPriceRub: pl.unitRub,
			Qty:          pl.qty,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	if totalRub == 0 {
		// бесплатный заказ (полная скидка, промо) исполняется на месте
		if err := s.fulfillTx(ctx, tx, o, items); err != nil {
			return nil, err
		}
		if err := s.repo.MarkPaidTx(ctx, tx, o.ID, "FREE"); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		o.Status = StatusPaid
		metrics.RecordPaymentIntent("order", StatusPaid)
		return &CheckoutResult{Order: o, Items: items}, nil
	}

	if payFromWallet {
		return s.payFromWalletTx(ctx, tx, o, items, totalRub, eligibleRub)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.initOnlinePayment(ctx, o, items)
}

// payFromWalletTx закрывает заказ бонусами и кошельком и исполняет его в той
// же транзакции, в которой создан.
func (s *Service) payFromWalletTx(ctx context.Context, tx *sqlx.Tx, o *Order, items []Item, totalRub, eligibleRub int) (*CheckoutResult, error) {
	total := decimal.NewFromInt(int64(totalRub))
	eligible := decimal.NewFromInt(int64(eligibleRub))
	reason := fmt.Sprintf("Заказ №%d", o.ID)

	if _, err := s.loyalty.PayWithWalletBonusTx(ctx, tx, *o.UserID, total, eligible, reason, "order", int64(o.ID)); err != nil {
		return nil, err
	}

	if err := s.fulfillTx(ctx, tx, o, items); err != nil {
		return nil, err
	}
	if err := s.repo.MarkPaidTx(ctx, tx, o.ID, detailWalletPaid); err != nil {
		return nil, err
	}
	if _, err := s.loyalty.Repo().AddSpentTx(ctx, tx, *o.UserID, total); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	o.Status = StatusPaid
	metrics.RecordPaymentIntent("order", StatusPaid)
	s.afterPaid(ctx, o, eligibleRub)
	return &CheckoutResult{Order: o, Items: items}, nil
}

func (s *Service) initOnlinePayment(ctx context.Context, o *Order, items []Item) (*CheckoutResult, error) {
	if !s.gateway.Configured() {
		if err := s.repo.SetStatus(ctx, o.ID, StatusCanceled); err != nil {
			logger.Errorf("Failed to cancel order %d: %v", o.ID, err)
		}
		return nil, ErrGatewayDisabled
	}

	u, err := s.users.FindByID(ctx, *o.UserID)
	if err != nil {
		return nil, err
	}

	desc := itemsSummary(items)
	resp, err := s.gateway.Init(ctx, tbank.InitRequest{
		Amount:          tbank.KopeksFromRub(o.TotalRub),
		OrderID:         strconv.Itoa(o.ID),
		Description:     desc,
		NotificationURL: s.cfg.BaseURL + "/api/payments/tbank/webhook",
		SuccessURL:      s.cfg.BaseURL + "/shop/success",
		FailURL:         s.cfg.BaseURL + "/shop/fail",
		Receipt:         tbank.NewReceipt(u.EmailString(), tbank.NormalizePhone(u.Phone), desc, o.TotalRub),
	})
	if err != nil {
		logger.Errorf("T-Bank init failed for order %d: %v", o.ID, err)
		if stErr := s.repo.SetGatewayInfo(ctx, o.ID, StatusCanceled, "", detailInitFailed); stErr != nil {
			logger.Errorf("Failed to cancel order %d after init error: %v", o.ID, stErr)
		}
		metrics.RecordPaymentIntent("order", StatusCanceled)
		return nil, err
	}

	if err := s.repo.SetGatewayInfo(ctx, o.ID, StatusPaymentPending, resp.PaymentID, resp.Status); err != nil {
		return nil, err
	}

	metrics.RecordPaymentIntent("order", StatusPaymentPending)
	o.Status = StatusPaymentPending
	return &CheckoutResult{Order: o, Items: items, PaymentURL: resp.PaymentURL}, nil
}

// fulfillTx выдаёт купленное: абонементы по шаблону товара с записью в
// membership_grants, пополнения — в кошелёк.
func (s *Service) fulfillTx(ctx context.Context, tx *sqlx.Tx, o *Order, items []Item) error {
	if o.UserID == nil {
		return nil
	}
	userID := *o.UserID

	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		p, err := s.repo.FindProduct(ctx, *item.ProductID)
		if err != nil {
			return err
		}

		for n := 0; n < item.Qty; n++ {
			switch p.GrantKind {
			case GrantMembership:
				m, err := s.memberships.Create(ctx, tx, &membership.Membership{
					UserID:       userID,
					Title:        p.Name,
					Kind:         orDefault(p.MembershipKind, membership.KindVisits),
					Scope:        p.MembershipScope,
					TotalVisits:  p.MembershipVisits,
					LeftVisits:   p.MembershipVisits,
					ValidityDays: p.MembershipDays,
				})
				if err != nil {
					return err
				}
				if err := s.repo.AddGrantTx(ctx, tx, item.ID, m.ID); err != nil {
					return err
				}
			case GrantWalletTopup:
				if p.WalletTopupRub == nil {
					continue
				}
				amount := decimal.NewFromInt(int64(*p.WalletTopupRub))
				reason := fmt.Sprintf("Пополнение по заказу №%d: %s", o.ID, p.Name)
				if _, err := s.wallets.TopupTx(ctx, tx, userID, amount, reason); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// FinalizeFromWebhook применяет решение шлюза к заказу. Повторный вебхук по
// терминальному заказу ничего не перевыдаёт.
func (s *Service) FinalizeFromWebhook(ctx context.Context, orderID int, gatewayStatus string, success bool) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	o, err := s.repo.LockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if o.Terminal() {
		return tx.Commit()
	}

	if !success || tbank.DeclineStatus(gatewayStatus) {
		if err := s.repo.MarkCanceledTx(ctx, tx, o.ID, gatewayStatus); err != nil {
			return err
		}
		metrics.RecordPaymentIntent("order", StatusCanceled)
		return tx.Commit()
	}
	if gatewayStatus != tbank.StatusConfirmed {
		return tx.Commit()
	}

	items, err := s.repo.ListItems(ctx, tx, o.ID)
	if err != nil {
		return err
	}

	if err := s.fulfillTx(ctx, tx, o, items); err != nil {
		return err
	}
	if err := s.repo.MarkPaidTx(ctx, tx, o.ID, gatewayStatus); err != nil {
		return err
	}

	eligibleRub := 0
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		p, err := s.repo.FindProduct(ctx, *item.ProductID)
		if err != nil {
			return err
		}
		if p.BonusEligible {
			eligibleRub += item.UnitPriceRub * item.Qty
		}
	}

	if o.UserID != nil {
		total := decimal.NewFromInt(int64(o.TotalRub))
		if _, err := s.loyalty.Repo().AddSpentTx(ctx, tx, *o.UserID, total); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	o.Status = StatusPaid
	metrics.RecordPaymentIntent("order", StatusPaid)
	s.afterPaid(ctx, o, eligibleRub)
	return nil
}

// afterPaid — побочные эффекты после коммита: кэшбэк (идемпотентен по
// источнику) и уведомление персонала.
func (s *Service) afterPaid(ctx context.Context, o *Order, eligibleRub int) {
	if o.UserID == nil {
		return
	}

	if eligibleRub > 0 {
		base := decimal.NewFromInt(int64(eligibleRub))
		reason := fmt.Sprintf("Кэшбэк за заказ №%d", o.ID)
		if _, err := s.loyalty.Repo().GrantCashback(ctx, *o.UserID, base, "order", int64(o.ID), reason); err != nil {
			logger.Errorf("Failed to grant cashback for order %d: %v", o.ID, err)
		}
	}

	s.notifier.OrderPaid(ctx, s.userName(ctx, *o.UserID), o.ID, o.TotalRub)
}

// RevokeOrder отзывает оплаченный заказ: выданные по нему абонементы
// деактивируются по связи membership_grants, пополнения кошелька снимаются
// обратно.
func (s *Service) RevokeOrder(ctx context.Context, orderID int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	o, err := s.repo.LockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if o.Status != StatusPaid {
		return ErrOrderNotPaid
	}

	grants, err := s.repo.ListGrants(ctx, tx, o.ID)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if err := s.memberships.Deactivate(ctx, tx, g.MembershipID); err != nil {
			return err
		}
	}

	if o.UserID != nil {
		items, err := s.repo.ListItems(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.ProductID == nil {
				continue
			}
			p, err := s.repo.FindProduct(ctx, *item.ProductID)
			if err != nil {
				return err
			}
			if p.GrantKind != GrantWalletTopup || p.WalletTopupRub == nil {
				continue
			}
			amount := decimal.NewFromInt(int64(*p.WalletTopupRub * item.Qty))
			reason := fmt.Sprintf("Отзыв заказа №%d", o.ID)
			if _, err := s.wallets.DebitTx(ctx, tx, *o.UserID, amount, reason); err != nil {
				return err
			}
		}
	}

	// Оплаченное кошельком возвращается на кошелёк; бонусная часть сгорает.
	var refunded, balance decimal.Decimal
	refundReason := fmt.Sprintf("Возврат по заказу №%d", o.ID)
	if o.UserID != nil && o.TBStatus == detailWalletPaid {
		bonusUsed, err := s.loyalty.Repo().SpentBySourceTx(ctx, tx, "order", int64(o.ID))
		if err != nil {
			return err
		}
		cash := decimal.NewFromInt(int64(o.TotalRub)).Sub(bonusUsed)
		if cash.IsPositive() {
			balance, err = s.wallets.RefundTx(ctx, tx, *o.UserID, cash, refundReason)
			if err != nil {
				return err
			}
			refunded = cash
		}
	}

	if err := s.repo.MarkCanceledTx(ctx, tx, o.ID, detailRevoked); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if refunded.IsPositive() {
		s.notifier.WalletRefund(ctx, s.userName(ctx, *o.UserID), refunded, balance, refundReason)
	}
	return nil
}

func (s *Service) userName(ctx context.Context, userID int) string {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "клиент"
	}
	return u.Name
}

func itemsSummary(items []Item) string {
	if len(items) == 0 {
		return "Заказ"
	}
	summary := items[0].ProductName
	if len(items) > 1 {
		summary = fmt.Sprintf("%s и ещё %d поз.", summary, len(items)-1)
	}
	return summary
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
