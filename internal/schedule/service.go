package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dobrv4er/woomfit/internal/membership"
	"github.com/dobrv4er/woomfit/internal/metrics"
	"github.com/dobrv4er/woomfit/internal/notify"
	"github.com/dobrv4er/woomfit/internal/user"
)

var (
	ErrSessionFull            = errors.New("no seats left")
	ErrSessionStarted         = errors.New("session already started")
	ErrCancellationWindow     = errors.New("cancellation window has closed")
	ErrNotYourBooking         = errors.New("booking belongs to another user")
	ErrNotYourMembership      = errors.New("membership belongs to another user")
	ErrMembershipIncompatible = errors.New("membership cannot pay for this session")
	ErrInviteExpired          = errors.New("invite has expired")
	ErrNotGroupSession        = errors.New("only group sessions are bookable")
	ErrSeatsAvailable         = errors.New("seats are available, book directly")
)

type Service struct {
	db          *sqlx.DB
	repo        *Repository
	memberships *membership.Repository
	users       *user.Repository
	notifier    *notify.Service
}

func NewService(db *sqlx.DB, notifier *notify.Service) *Service {
	return &Service{
		db:          db,
		repo:        NewRepository(db),
		memberships: membership.NewRepository(db),
		users:       user.NewRepository(db),
		notifier:    notifier,
	}
}

func (s *Service) Repo() *Repository {
	return s.repo
}

// BookWithMembership записывает клиента на группу, списывая посещение.
// Любая ошибка валидации откатывает транзакцию целиком, так что счётчик
// посещений не трогается на неудачных попытках.
func (s *Service) BookWithMembership(ctx context.Context, userID, sessionID, membershipID int) (*Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sess, err := s.repo.LockSession(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Kind != SessionGroup {
		return nil, ErrNotGroupSession
	}

	now := time.Now()
	if !sess.StartAt.After(now) {
		return nil, ErrSessionStarted
	}

	if err := s.repo.ExpireInvitesTx(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	taken, err := s.repo.SeatsTaken(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if taken >= sess.Capacity {
		return nil, ErrSessionFull
	}

	m, err := s.memberships.ConsumeVisitTx(ctx, tx, membershipID, now)
	if err != nil {
		if errors.Is(err, membership.ErrMembershipNotUsable) {
			return nil, ErrMembershipIncompatible
		}
		return nil, err
	}
	if m.UserID != userID {
		return nil, ErrNotYourMembership
	}

	booking, err := s.rebookOrCreateTx(ctx, tx, userID, sessionID, &membershipID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordBooking(StatusBooked, "membership")
	s.notifier.BookingCreated(ctx, s.userName(ctx, userID), sess.Title, sess.StartAt, "абонемент")
	return booking, nil
}

// CreateBookedTx создаёт бронь внутри чужой платёжной транзакции — для
// разовых занятий, оплаченных кошельком или картой.
func (s *Service) CreateBookedTx(ctx context.Context, tx *sqlx.Tx, userID, sessionID int, membershipID *int) (*Booking, error) {
	sess, err := s.repo.LockSession(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ExpireInvitesTx(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	taken, err := s.repo.SeatsTaken(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Kind == SessionGroup && taken >= sess.Capacity {
		return nil, ErrSessionFull
	}

	return s.rebookOrCreateTx(ctx, tx, userID, sessionID, membershipID)
}

func (s *Service) rebookOrCreateTx(ctx context.Context, tx *sqlx.Tx, userID, sessionID int, membershipID *int) (*Booking, error) {
	existing, err := s.repo.FindUserBooking(ctx, userID, sessionID)
	if err != nil && !errors.Is(err, ErrBookingNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.BookingStatus != StatusCanceled {
			return nil, ErrAlreadyBooked
		}
		if err := s.repo.SetBookedWithMembershipTx(ctx, tx, existing.ID, membershipID); err != nil {
			return nil, err
		}
		existing.BookingStatus = StatusBooked
		existing.MembershipID = membershipID
		return existing, nil
	}

	return s.repo.CreateBookingTx(ctx, tx, userID, sessionID, membershipID, StatusBooked)
}

func (s *Service) JoinWaitlist(ctx context.Context, userID, sessionID int) (*Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sess, err := s.repo.LockSession(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Kind != SessionGroup {
		return nil, ErrNotGroupSession
	}
	if !sess.StartAt.After(time.Now()) {
		return nil, ErrSessionStarted
	}

	if err := s.repo.ExpireInvitesTx(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	taken, err := s.repo.SeatsTaken(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if taken < sess.Capacity {
		return nil, ErrSeatsAvailable
	}

	existing, err := s.repo.FindUserBooking(ctx, userID, sessionID)
	if err != nil && !errors.Is(err, ErrBookingNotFound) {
		return nil, err
	}
	if existing != nil && existing.BookingStatus != StatusCanceled {
		return nil, ErrAlreadyBooked
	}
	if existing != nil {
		if err := s.repo.SetBookingStatusTx(ctx, tx, existing.ID, StatusWaitlist); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		existing.BookingStatus = StatusWaitlist
		metrics.RecordBooking(StatusWaitlist, "none")
		return existing, nil
	}

	booking, err := s.repo.CreateBookingTx(ctx, tx, userID, sessionID, nil, StatusWaitlist)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	metrics.RecordBooking(StatusWaitlist, "none")
	return booking, nil
}

// Cancel отменяет бронь. Для booked действует отсечка за 2 часа до начала;
// из листа ожидания можно выйти в любой момент.
func (s *Service) Cancel(ctx context.Context, userID, bookingID int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	b, err := s.repo.LockBooking(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return ErrNotYourBooking
	}
	if b.BookingStatus == StatusCanceled {
		return nil
	}

	sess, err := s.repo.LockSession(ctx, tx, b.SessionID)
	if err != nil {
		return err
	}

	now := time.Now()
	if b.BookingStatus == StatusBooked && now.After(sess.StartAt.Add(-CancelCutoff)) {
		return ErrCancellationWindow
	}

	wasBooked := b.BookingStatus == StatusBooked
	heldSeat := wasBooked || b.BookingStatus == StatusInvited
	if err := s.repo.SetBookingStatusTx(ctx, tx, b.ID, StatusCanceled); err != nil {
		return err
	}

	if wasBooked && b.MembershipID != nil {
		if _, err := s.memberships.RefundVisitTx(ctx, tx, *b.MembershipID); err != nil {
			return err
		}
	}

	// Приглашение тоже держало место, после отказа оно уходит следующему.
	var invited *Booking
	if heldSeat {
		invited, err = s.inviteNextWaiterTx(ctx, tx, sess)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	metrics.RecordBookingCancellation()
	s.notifier.BookingCanceled(ctx, s.userName(ctx, userID), sess.Title, sess.StartAt, "отмена клиентом")
	if invited != nil {
		s.notifier.BookingCreated(ctx, s.userName(ctx, invited.UserID), sess.Title, sess.StartAt, "приглашение из листа ожидания")
	}
	return nil
}

// inviteNextWaiterTx продвигает самого раннего из листа ожидания, если место
// освободилось и нет другого живого приглашения. Одно приглашение на занятие
// за раз — рассылка всем ожидающим разом привела бы к перепродаже мест.
func (s *Service) inviteNextWaiterTx(ctx context.Context, tx *sqlx.Tx, sess *Session) (*Booking, error) {
	if err := s.repo.ExpireInvitesTx(ctx, tx, sess.ID); err != nil {
		return nil, err
	}

	taken, err := s.repo.SeatsTaken(ctx, tx, sess.ID)
	if err != nil {
		return nil, err
	}
	if taken >= sess.Capacity {
		return nil, nil
	}

	live, err := s.repo.HasLiveInvite(ctx, tx, sess.ID)
	if err != nil {
		return nil, err
	}
	if live {
		return nil, nil
	}

	waiter, err := s.repo.OldestWaiterTx(ctx, tx, sess.ID)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := s.repo.MarkInvitedTx(ctx, tx, waiter.ID, time.Now()); err != nil {
		return nil, err
	}
	waiter.BookingStatus = StatusInvited
	return waiter, nil
}

// AcceptInvite подтверждает приглашение из листа ожидания, списывая посещение
// с выбранного абонемента в том же окне, что и перевод в booked.
func (s *Service) AcceptInvite(ctx context.Context, userID, bookingID, membershipID int) (*Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b, err := s.repo.LockBooking(ctx, tx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, ErrNotYourBooking
	}
	if b.BookingStatus != StatusInvited {
		return nil, ErrInviteExpired
	}

	now := time.Now()
	if b.InviteExpired(now) {
		if err := s.repo.ExpireInvitesTx(ctx, tx, b.SessionID); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, ErrInviteExpired
	}

	sess, err := s.repo.LockSession(ctx, tx, b.SessionID)
	if err != nil {
		return nil, err
	}

	m, err := s.memberships.ConsumeVisitTx(ctx, tx, membershipID, now)
	if err != nil {
		if errors.Is(err, membership.ErrMembershipNotUsable) {
			return nil, ErrMembershipIncompatible
		}
		return nil, err
	}
	if m.UserID != userID {
		return nil, ErrNotYourMembership
	}

	if err := s.repo.SetBookedWithMembershipTx(ctx, tx, b.ID, &membershipID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.RecordBooking(StatusBooked, "membership")
	s.notifier.BookingCreated(ctx, s.userName(ctx, userID), sess.Title, sess.StartAt, "подтверждение приглашения")

	b.BookingStatus = StatusBooked
	b.MembershipID = &membershipID
	return b, nil
}

func (s *Service) DeclineInvite(ctx context.Context, userID, bookingID int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	b, err := s.repo.LockBooking(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	if b.UserID != userID {
		return ErrNotYourBooking
	}
	if b.BookingStatus != StatusInvited {
		return ErrInviteExpired
	}

	if err := s.repo.SetBookingStatusTx(ctx, tx, b.ID, StatusCanceled); err != nil {
		return err
	}

	sess, err := s.repo.LockSession(ctx, tx, b.SessionID)
	if err != nil {
		return err
	}
	if _, err := s.inviteNextWaiterTx(ctx, tx, sess); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Service) userName(ctx context.Context, userID int) string {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "клиент"
	}
	return u.Name
}
