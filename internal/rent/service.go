package rent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/dobrv4er/woomfit/internal/config"
	"github.com/dobrv4er/woomfit/internal/logger"
	"github.com/dobrv4er/woomfit/internal/loyalty"
	"github.com/dobrv4er/woomfit/internal/metrics"
	"github.com/dobrv4er/woomfit/internal/notify"
	"github.com/dobrv4er/woomfit/internal/schedule"
	"github.com/dobrv4er/woomfit/internal/tbank"
	"github.com/dobrv4er/woomfit/internal/wallet"
)

var (
	ErrSlotBusy        = errors.New("slot is busy")
	ErrSlotOutOfHours  = errors.New("slot is outside working hours")
	ErrSlotInPast      = errors.New("slot is in the past")
	ErrGatewayDisabled = errors.New("online payments are not configured")
)

type Service struct {
	db       *sqlx.DB
	repo     *Repository
	sessions *schedule.Repository
	wallets  wallet.Store
	loyalty  *loyalty.Service
	notifier *notify.Service
	gateway  *tbank.Client
	cfg      *config.Config
}

func NewService(db *sqlx.DB, cfg *config.Config, wallets wallet.Store, loyaltySvc *loyalty.Service, notifier *notify.Service, gateway *tbank.Client) *Service {
	return &Service{
		db:       db,
		repo:     NewRepository(db),
		sessions: schedule.NewRepository(db),
		wallets:  wallets,
		loyalty:  loyaltySvc,
		notifier: notifier,
		gateway:  gateway,
		cfg:      cfg,
	}
}

func (s *Service) Repo() *Repository {
	return s.repo
}

// BusyStatesForWeek собирает недельную сетку слотов. Чужая оплаченная аренда
// видна как обезличенное busy, собственная — как rent_paid.
func (s *Service) BusyStatesForWeek(ctx context.Context, weekStart time.Time, viewerID *int) (map[string]string, error) {
	if err := s.repo.ExpireStale(ctx); err != nil {
		return nil, err
	}

	weekEnd := weekStart.AddDate(0, 0, 7)
	loc := schedule.NormAddr(s.cfg.RentLocation)
	grid := make(map[string]string)

	sessions, err := s.repo.ListWeekSessions(ctx, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if schedule.NormAddr(sess.Location) != loc {
			continue
		}
		state := SlotTraining
		if sess.Kind == schedule.SessionRent {
			state = SlotBusy
			if viewerID != nil && sess.ClientID != nil && *sess.ClientID == *viewerID {
				state = SlotRentPaid
			}
		}
		markSlots(grid, sess.StartAt, sess.EndAt(), state)
	}

	intents, err := s.repo.ListWeekIntents(ctx, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}
	for _, i := range intents {
		if schedule.NormAddr(i.Location) != loc {
			continue
		}
		markSlots(grid, i.SlotStart, i.SlotEnd(), SlotPending)
	}

	return grid, nil
}

type ReserveInput struct {
	UserID        *int
	SlotStart     time.Time
	FullName      string
	Email         string
	Phone         string
	SocialHandle  string
	Comment       string
	PromoCode     string
	PayFromWallet bool
}

type ReserveResult struct {
	Intent     *Intent `json:"intent"`
	PaymentURL string  `json:"payment_url,omitempty"`
}

// Reserve бронирует слот аренды. Проверка занятости и создание интента идут в
// одной транзакции под блокировками пересекающихся занятий и интентов — две
// параллельные заявки не могут одновременно увидеть слот свободным.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (*ReserveResult, error) {
	now := time.Now()
	if err := s.validateSlot(in.SlotStart, now); err != nil {
		metrics.RecordRentReservation("rejected")
		return nil, err
	}

	if err := s.repo.ExpireStale(ctx); err != nil {
		return nil, err
	}

	if in.PayFromWallet {
		return s.reserveWithWallet(ctx, in, now)
	}
	return s.reserveOnline(ctx, in, now)
}

func (s *Service) validateSlot(slotStart, now time.Time) error {
	if !slotStart.After(now) {
		return ErrSlotInPast
	}
	if slotStart.Minute() != 0 || slotStart.Second() != 0 {
		return ErrSlotOutOfHours
	}
	hour := slotStart.Hour()
	if hour < s.cfg.RentOpenHour || hour+1 > s.cfg.RentCloseHour {
		return ErrSlotOutOfHours
	}
	return nil
}

// checkSlotFreeTx — интервальный тест занятости под блокировками. Сначала
// блокируются занятия (по start_at), затем чужие интенты.
func (s *Service) checkSlotFreeTx(ctx context.Context, tx *sqlx.Tx, slotStart, slotEnd time.Time, skipIntentID int) error {
	loc := schedule.NormAddr(s.cfg.RentLocation)

	sessions, err := s.sessions.LockSessionsInWindow(ctx, tx, slotStart, slotEnd)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if schedule.NormAddr(sess.Location) != loc {
			continue
		}
		if schedule.Overlaps(slotStart, slotEnd, sess.StartAt, sess.EndAt()) {
			return ErrSlotBusy
		}
	}

	intents, err := s.repo.LockPendingIntents(ctx, tx, slotStart, slotEnd)
	if err != nil {
		return err
	}
	for _, i := range intents {
		if i.ID == skipIntentID {
			continue
		}
		if schedule.NormAddr(i.Location) != loc {
			continue
		}
		if schedule.Overlaps(slotStart, slotEnd, i.SlotStart, i.SlotEnd()) {
			return ErrSlotBusy
		}
	}
	return nil
}

func (s *Service) newIntent(in ReserveInput, status string, now time.Time) *Intent {
	return &Intent{
		UserID:       in.UserID,
		Location:     s.cfg.RentLocation,
		SlotStart:    in.SlotStart,
		DurationMin:  s.cfg.RentSlotMin,
		FullName:     in.FullName,
		Email:        in.Email,
		Phone:        tbank.NormalizePhone(in.Phone),
		SocialHandle: in.SocialHandle,
		Comment:      in.Comment,
		PromoCode:    in.PromoCode,
		AmountRub:    s.cfg.RentPriceRub,
		Status:       status,
		ExpiresAt:    now.Add(time.Duration(s.cfg.RentPaymentTTLMin) * time.Minute),
	}
}

// reserveWithWallet списывает кошелёк и материализует аренду сразу: занятие,
// контактная заявка и оплаченный интент создаются одной транзакцией.
func (s *Service) reserveWithWallet(ctx context.Context, in ReserveInput, now time.Time) (*ReserveResult, error) {
	if in.UserID == nil {
		return nil, wallet.ErrInsufficientBalance
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	slotEnd := in.SlotStart.Add(time.Duration(s.cfg.RentSlotMin) * time.Minute)
	if err := s.checkSlotFreeTx(ctx, tx, in.SlotStart, slotEnd, 0); err != nil {
		metrics.RecordRentReservation("conflict")
		return nil, err
	}

	intent, err := s.repo.CreateIntentTx(ctx, tx, s.newIntent(in, StatusNew, now))
	if err != nil {
		return nil, err
	}

	amount := decimal.NewFromInt(int64(intent.AmountRub))
	reason := fmt.Sprintf("Аренда зала %s", in.SlotStart.Format("02.01 15:04"))
	if _, err := s.wallets.DebitTx(ctx, tx, *in.UserID, amount, reason); err != nil {
		return nil, err
	}

	sess, err := s.sessions.CreateSessionTx(ctx, tx, &schedule.Session{
		Title:       "Аренда зала",
		Kind:        schedule.SessionRent,
		ClientID:    in.UserID,
		StartAt:     in.SlotStart,
		DurationMin: s.cfg.RentSlotMin,
		Location:    s.cfg.RentLocation,
		Capacity:    1,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.CreateRequestTx(ctx, tx, s.requestFromIntent(intent, sess.ID)); err != nil {
		return nil, err
	}

	if err := s.repo.MarkPaidTx(ctx, tx, intent.ID, sess.ID, DetailWalletPaid); err != nil {
		return nil, err
	}

	if _, err := s.loyalty.Repo().AddSpentTx(ctx, tx, *in.UserID, amount); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordRentReservation("wallet_paid")
	metrics.RecordPaymentIntent("rent", StatusPaid)
	s.notifier.RentPaid(ctx, intent.FullName, intent.Phone, intent.Location, intent.SlotStart, intent.AmountRub)

	intent.Status = StatusPaid
	intent.SessionID = &sess.ID
	intent.TBStatus = DetailWalletPaid
	return &ReserveResult{Intent: intent}, nil
}

// reserveOnline создаёт интент и уводит клиента на платёжную форму. Неудачный
// Init не оставляет интент висеть в new.
func (s *Service) reserveOnline(ctx context.Context, in ReserveInput, now time.Time) (*ReserveResult, error) {
	if !s.gateway.Configured() {
		return nil, ErrGatewayDisabled
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	slotEnd := in.SlotStart.Add(time.Duration(s.cfg.RentSlotMin) * time.Minute)
	if err := s.checkSlotFreeTx(ctx, tx, in.SlotStart, slotEnd, 0); err != nil {
		metrics.RecordRentReservation("conflict")
		return nil, err
	}

	intent, err := s.repo.CreateIntentTx(ctx, tx, s.newIntent(in, StatusNew, now))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("Аренда зала %s, %s", intent.Location, intent.SlotStart.Format("02.01.2006 15:04"))
	resp, err := s.gateway.Init(ctx, tbank.InitRequest{
		Amount:          tbank.KopeksFromRub(intent.AmountRub),
		OrderID:         "R-" + strconv.Itoa(intent.ID),
		Description:     desc,
		NotificationURL: s.cfg.BaseURL + "/api/payments/tbank/webhook",
		SuccessURL:      s.cfg.BaseURL + "/rent/success",
		FailURL:         s.cfg.BaseURL + "/rent/fail",
		Receipt:         tbank.NewReceipt(intent.Email, intent.Phone, desc, intent.AmountRub),
	})
	if err != nil {
		logger.Errorf("T-Bank init failed for rent intent %d: %v", intent.ID, err)
		if stErr := s.repo.SetGatewayInfo(ctx, intent.ID, StatusCanceled, "", DetailInitFailed); stErr != nil {
			logger.Errorf("Failed to cancel rent intent %d after init error: %v", intent.ID, stErr)
		}
		metrics.RecordRentReservation("init_failed")
		metrics.RecordPaymentIntent("rent", StatusCanceled)
		return nil, err
	}

	if err := s.repo.SetGatewayInfo(ctx, intent.ID, StatusPending, resp.PaymentID, resp.Status); err != nil {
		return nil, err
	}

	metrics.RecordRentReservation("pending")
	metrics.RecordPaymentIntent("rent", StatusPending)

	intent.Status = StatusPending
	intent.TBPaymentID = resp.PaymentID
	return &ReserveResult{Intent: intent, PaymentURL: resp.PaymentURL}, nil
}

func (s *Service) requestFromIntent(i *Intent, sessionID int) *Request {
	return &Request{
		SessionID:    sessionID,
		UserID:       i.UserID,
		FullName:     i.FullName,
		Email:        i.Email,
		Phone:        i.Phone,
		SocialHandle: i.SocialHandle,
		Comment:      i.Comment,
		PromoCode:    i.PromoCode,
		PriceRub:     i.AmountRub,
	}
}

// FinalizeFromWebhook закрывает интент по уведомлению шлюза. Повторная
// доставка терминального статуса — no-op. Занятость слота перепроверяется на
// момент подтверждения: между созданием интента и вебхуком слот могли занять.
func (s *Service) FinalizeFromWebhook(ctx context.Context, intentID int, gatewayStatus string, success bool) error {
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
		metrics.RecordPaymentIntent("rent", StatusCanceled)
		return tx.Commit()
	}
	if gatewayStatus != tbank.StatusConfirmed {
		// промежуточный статус (AUTHORIZED и т.п.) — ждём финальный
		return tx.Commit()
	}

	slotEnd := intent.SlotEnd()
	if err := s.checkSlotFreeTx(ctx, tx, intent.SlotStart, slotEnd, intent.ID); err != nil {
		if !errors.Is(err, ErrSlotBusy) {
			return err
		}
		// деньги уже списаны, а слот заняли — эскалация персоналу на возврат
		if err := s.repo.MarkCanceledTx(ctx, tx, intent.ID, DetailSlotConflict); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		metrics.RecordPaymentIntent("rent", StatusCanceled)
		s.notifier.RentSlotConflict(ctx, intent.ID, intent.FullName, intent.Phone, intent.SlotStart)
		return nil
	}

	sess, err := s.sessions.CreateSessionTx(ctx, tx, &schedule.Session{
		Title:       "Аренда зала",
		Kind:        schedule.SessionRent,
		ClientID:    intent.UserID,
		StartAt:     intent.SlotStart,
		DurationMin: intent.DurationMin,
		Location:    intent.Location,
		Capacity:    1,
	})
	if err != nil {
		return err
	}

	if _, err := s.repo.CreateRequestTx(ctx, tx, s.requestFromIntent(intent, sess.ID)); err != nil {
		return err
	}

	if err := s.repo.MarkPaidTx(ctx, tx, intent.ID, sess.ID, gatewayStatus); err != nil {
		return err
	}

	if intent.UserID != nil {
		amount := decimal.NewFromInt(int64(intent.AmountRub))
		if _, err := s.loyalty.Repo().AddSpentTx(ctx, tx, *intent.UserID, amount); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	metrics.RecordPaymentIntent("rent", StatusPaid)
	s.notifier.RentPaid(ctx, intent.FullName, intent.Phone, intent.Location, intent.SlotStart, intent.AmountRub)
	return nil
}
