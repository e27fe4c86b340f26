package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dobrv4er/woomfit/internal/config"
	"github.com/dobrv4er/woomfit/internal/logger"
	"github.com/dobrv4er/woomfit/internal/loyalty"
	"github.com/dobrv4er/woomfit/internal/membership"
	"github.com/dobrv4er/woomfit/internal/metrics"
	"github.com/dobrv4er/woomfit/internal/notify"
	"github.com/dobrv4er/woomfit/internal/order"
	"github.com/dobrv4er/woomfit/internal/rent"
	"github.com/dobrv4er/woomfit/internal/schedule"
	"github.com/dobrv4er/woomfit/internal/tbank"
	"github.com/dobrv4er/woomfit/internal/user"
	"github.com/dobrv4er/woomfit/internal/wallet"
)

var (
	ErrBadPayload      = errors.New("webhook payload is not valid json")
	ErrBadToken        = errors.New("webhook token mismatch")
	ErrUnknownOrder    = errors.New("webhook references unknown order id")
	ErrGatewayDisabled = errors.New("online payments are not configured")
)

type Service struct {
	db          *sqlx.DB
	repo        *Repository
	schedule    *schedule.Service
	memberships *membership.Repository
	users       *user.Repository
	wallets     wallet.Store
	loyalty     *loyalty.Service
	orders      *order.Service
	rents       *rent.Service
	notifier    *notify.Service
	gateway     *tbank.Client
	cfg         *config.Config
}

func NewService(db *sqlx.DB, cfg *config.Config, scheduleSvc *schedule.Service, wallets wallet.Store, loyaltySvc *loyalty.Service, orders *order.Service, rents *rent.Service, notifier *notify.Service, gateway *tbank.Client) *Service {
	return &Service{
		db:          db,
		repo:        NewRepository(db),
		schedule:    scheduleSvc,
		memberships: membership.NewRepository(db),
		users:       user.NewRepository(db),
		wallets:     wallets,
		loyalty:     loyaltySvc,
		orders:      orders,
		rents:       rents,
		notifier:    notifier,
		gateway:     gateway,
		cfg:         cfg,
	}
}

func (s *Service) Repo() *Repository {
	return s.repo
}

// dropinPrice — цена разового группового занятия с учётом скидки лояльности.
func (s *Service) dropinPrice(ctx context.Context, userID int) (int, error) {
	discount, err := s.loyalty.Repo().DiscountPercent(ctx, userID)
	if err != nil {
		return 0, err
	}
	price := loyalty.ApplyDiscount(decimal.NewFromInt(int64(s.cfg.DropinGroupPriceRub)), discount)
	return int(price.IntPart()), nil
}

type BuySessionResult struct {
	Intent     *Intent           `json:"intent"`
	Booking    *schedule.Booking `json:"booking,omitempty"`
	PaymentURL string            `json:"payment_url,omitempty"`
}

// BuySessionWallet оплачивает разовое занятие с кошелька: списание, выдача
// одноразового абонемента, списание посещения и бронь — одна транзакция.
func (s *Service) BuySessionWallet(ctx context.Context, userID, sessionID int) (*BuySessionResult, error) {
	sess, err := s.schedule.Repo().FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Kind != schedule.SessionGroup {
		return nil, schedule.ErrNotGroupSession
	}

	price, err := s.dropinPrice(ctx, userID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	intent, err := s.repo.CreateIntentTx(ctx, tx, userID, sessionID, price, StatusNew)
	if err != nil {
		return nil, err
	}

	amount := decimal.NewFromInt(int64(price))
	reason := fmt.Sprintf("Разовое занятие: %s", sess.Title)
	if _, err := s.wallets.DebitTx(ctx, tx, userID, amount, reason); err != nil {
		return nil, err
	}

	booking, err := s.grantAndBookTx(ctx, tx, userID, sess)
	if err != nil {
		return nil, err
	}

	if err := s.repo.MarkPaidTx(ctx, tx, intent.ID, DetailWalletPaid); err != nil {
		return nil, err
	}
	if _, err := s.loyalty.Repo().AddSpentTx(ctx, tx, userID, amount); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	intent.Status = StatusPaid
	intent.TBStatus = DetailWalletPaid
	metrics.RecordPaymentIntent("session", StatusPaid)
	metrics.RecordBooking(schedule.StatusBooked, "wallet")
	s.grantCashback(ctx, intent, sess.Title)
	s.notifier.BookingCreated(ctx, s.userName(ctx, userID), sess.Title, sess.StartAt, "кошелёк")

	return &BuySessionResult{Intent: intent, Booking: booking}, nil
}

// BuySessionOnline создаёт интент и платёжную ссылку. Место не резервируется
// до подтверждения оплаты — загруженность перепроверит вебхук.
func (s *Service) BuySessionOnline(ctx context.Context, userID, sessionID int) (*BuySessionResult, error) {
	if !s.gateway.Configured() {
		return nil, ErrGatewayDisabled
	}

	sess, err := s.schedule.Repo().FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Kind != schedule.SessionGroup {
		return nil, schedule.ErrNotGroupSession
	}

	price, err := s.dropinPrice(ctx, userID)
	if err != nil {
		return nil, err
	}

	intent, err := s.repo.CreateIntent(ctx, userID, sessionID, price)
	if err != nil {
		return nil, err
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("Разовое занятие: %s, %s", sess.Title, sess.StartAt.Format("02.01.2006 15:04"))
	resp, err := s.gateway.Init(ctx, tbank.InitRequest{
		Amount:          tbank.KopeksFromRub(price),
		OrderID:         "S-" + strconv.Itoa(intent.ID),
		Description:     desc,
		NotificationURL: s.cfg.BaseURL + "/api/payments/tbank/webhook",
		SuccessURL:      s.cfg.BaseURL + "/schedule/success",
		FailURL:         s.cfg.BaseURL + "/schedule/fail",
		Receipt:         tbank.NewReceipt(u.EmailString(), tbank.NormalizePhone(u.Phone), desc, price),
	})
	if err != nil {
		logger.Errorf("T-Bank init failed for session intent %d: %v", intent.ID, err)
		if stErr := s.repo.SetGatewayInfo(ctx, intent.ID, StatusCanceled, "", DetailInitFailed); stErr != nil {
			logger.Errorf("Failed to cancel session intent %d after init error: %v", intent.ID, stErr)
		}
		metrics.RecordPaymentIntent("session", StatusCanceled)
		return nil, err
	}

	if err := s.repo.SetGatewayInfo(ctx, intent.ID, StatusPending, resp.PaymentID, resp.Status); err != nil {
		return nil, err
	}

	metrics.RecordPaymentIntent("session", StatusPending)
	intent.Status = StatusPending
	return &BuySessionResult{Intent: intent, PaymentURL: resp.PaymentURL}, nil
}

// grantAndBookTx — доменный эффект оплаченного занятия: одноразовый
// абонемент, списанное с него посещение и бронь.
func (s *Service) grantAndBookTx(ctx context.Context, tx *sqlx.Tx, userID int, sess *schedule.Session) (*schedule.Booking, error) {
	m, err := s.memberships.GrantSingleVisit(ctx, tx, userID, "Разовое занятие: "+sess.Title)
	if err != nil {
		return nil, err
	}
	if _, err := s.memberships.ConsumeVisitTx(ctx, tx, m.ID, sess.StartAt); err != nil {
		return nil, err
	}
	return s.schedule.CreateBookedTx(ctx, tx, userID, sess.ID, &m.ID)
}

// finalizeSessionIntent применяет вебхук к оплате разового занятия.
func (s *Service) finalizeSessionIntent(ctx context.Context, intentID int, gatewayStatus string, success bool) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	intent, err := s.repo.LockIntent(ctx, tx, intentID)
	if err != nil {
		return err
	}
	if intent.Terminal() {
		return tx.Commit()
	}

	if !success || tbank.DeclineStatus(gatewayStatus) {
		if err := s.repo.MarkCanceledTx(ctx, tx, intent.ID, gatewayStatus); err != nil {
			return err
		}
		metrics.RecordPaymentIntent("session", StatusCanceled)
		return tx.Commit()
	}
	if gatewayStatus != tbank.StatusConfirmed {
		return tx.Commit()
	}

	sess, err := s.schedule.Repo().LockSession(ctx, tx, intent.SessionID)
	if err != nil {
		return err
	}

	_, err = s.grantAndBookTx(ctx, tx, intent.UserID, sess)
	if err != nil {
		if !errors.Is(err, schedule.ErrSessionFull) && !errors.Is(err, schedule.ErrAlreadyBooked) {
			return err
		}
		// оплата прошла, а мест уже нет — закрываем с эскалацией на возврат
		if err := s.repo.MarkCanceledTx(ctx, tx, intent.ID, DetailSessionFull); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		metrics.RecordPaymentIntent("session", StatusCanceled)
		u, uerr := s.users.FindByID(ctx, intent.UserID)
		phone := ""
		if uerr == nil {
			phone = u.Phone
		}
		s.notifier.RentSlotConflict(ctx, intent.ID, s.userName(ctx, intent.UserID), phone, sess.StartAt)
		return nil
	}

	if err := s.repo.MarkPaidTx(ctx, tx, intent.ID, gatewayStatus); err != nil {
		return err
	}

	amount := decimal.NewFromInt(int64(intent.AmountRub))
	if _, err := s.loyalty.Repo().AddSpentTx(ctx, tx, intent.UserID, amount); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	metrics.RecordPaymentIntent("session", StatusPaid)
	metrics.RecordBooking(schedule.StatusBooked, "online")
	s.grantCashback(ctx, intent, sess.Title)
	s.notifier.BookingCreated(ctx, s.userName(ctx, intent.UserID), sess.Title, sess.StartAt, "онлайн-оплата")
	return nil
}

// grantCashback идемпотентен по (user, source, id): повторный вебхук не
// начислит бонус второй раз. Сбой начисления оплату не откатывает.
func (s *Service) grantCashback(ctx context.Context, intent *Intent, sessionTitle string) {
	base := decimal.NewFromInt(int64(intent.AmountRub))
	reason := "Кэшбэк за разовое занятие: " + sessionTitle
	if _, err := s.loyalty.Repo().GrantCashback(ctx, intent.UserID, base, "session", int64(intent.ID), reason); err != nil {
		logger.Errorf("Failed to grant cashback for session intent %d: %v", intent.ID, err)
	}
}

// HandleNotification — точка приёма вебхука эквайринга. Сырой payload
// сохраняется до любой проверки; токен пересчитывается по корневым скалярам;
// OrderId маршрутизируется по форме: голое число — заказ витрины, S-<id> —
// разовое занятие, R-<id> — аренда.
func (s *Service) HandleNotification(ctx context.Context, body []byte) error {
	if err := s.repo.LogWebhook(ctx, body); err != nil {
		logger.Errorf("Failed to log payment webhook: %v", err)
	}

	n, err := tbank.ParseNotification(body)
	if err != nil {
		metrics.RecordWebhook("bad_payload")
		return ErrBadPayload
	}

	if !n.Valid(s.cfg.TBankPassword) {
		metrics.RecordWebhook("bad_token")
		return ErrBadToken
	}

	// Несуществующий id — терминальный ответ: ретраи шлюза его не вылечат.
	switch {
	case strings.HasPrefix(n.OrderID, "S-"):
		id, err := strconv.Atoi(strings.TrimPrefix(n.OrderID, "S-"))
		if err != nil {
			metrics.RecordWebhook("unknown_order")
			return ErrUnknownOrder
		}
		if err := s.finalizeSessionIntent(ctx, id, n.Status, n.Success); err != nil {
			if errors.Is(err, ErrIntentNotFound) {
				metrics.RecordWebhook("unknown_order")
				return ErrUnknownOrder
			}
			metrics.RecordWebhook("error")
			return err
		}
	case strings.HasPrefix(n.OrderID, "R-"):
		id, err := strconv.Atoi(strings.TrimPrefix(n.OrderID, "R-"))
		if err != nil {
			metrics.RecordWebhook("unknown_order")
			return ErrUnknownOrder
		}
		if err := s.rents.FinalizeFromWebhook(ctx, id, n.Status, n.Success); err != nil {
			if errors.Is(err, rent.ErrIntentNotFound) {
				metrics.RecordWebhook("unknown_order")
				return ErrUnknownOrder
			}
			metrics.RecordWebhook("error")
			return err
		}
	default:
		id, err := strconv.Atoi(n.OrderID)
		if err != nil {
			metrics.RecordWebhook("unknown_order")
			return ErrUnknownOrder
		}
		if err := s.orders.FinalizeFromWebhook(ctx, id, n.Status, n.Success); err != nil {
			if errors.Is(err, order.ErrOrderNotFound) {
				metrics.RecordWebhook("unknown_order")
				return ErrUnknownOrder
			}
			metrics.RecordWebhook("error")
			return err
		}
	}

	metrics.RecordWebhook("ok")
	return nil
}

func (s *Service) userName(ctx context.Context, userID int) string {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "клиент"
	}
	return u.Name
}
