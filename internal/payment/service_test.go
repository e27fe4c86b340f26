package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/dobrv4er/woomfit/internal/config"
	"github.com/dobrv4er/woomfit/internal/tbank"
)

func setupWebhookMock(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "postgres")
	svc := &Service{
		db:   db,
		repo: NewRepository(db),
		cfg:  &config.Config{TBankPassword: "secret"},
	}
	return svc, mock
}

func expectWebhookLog(mock sqlmock.Sqlmock, body string) {
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO payment_webhook_logs (payload) VALUES ($1)`)).
		WithArgs(body).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func signedNotification(t *testing.T, fields map[string]interface{}, password string) []byte {
	t.Helper()

	fields["Token"] = tbank.Token(fields, password)
	body, err := json.Marshal(fields)
	require.NoError(t, err)
	return body
}

func TestHandleNotification_GarbagePayloadIsLoggedAndRejected(t *testing.T) {
	svc, mock := setupWebhookMock(t)

	body := []byte("not json at all")
	expectWebhookLog(mock, string(body))

	err := svc.HandleNotification(context.Background(), body)
	require.ErrorIs(t, err, ErrBadPayload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleNotification_ForgedTokenRejected(t *testing.T) {
	svc, mock := setupWebhookMock(t)

	body := signedNotification(t, map[string]interface{}{
		"TerminalKey": "term1",
		"OrderId":     "42",
		"Status":      tbank.StatusConfirmed,
		"Success":     true,
		"PaymentId":   "777",
	}, "wrong-password")
	expectWebhookLog(mock, string(body))

	err := svc.HandleNotification(context.Background(), body)
	require.ErrorIs(t, err, ErrBadToken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleNotification_UnparsableOrderID(t *testing.T) {
	svc, mock := setupWebhookMock(t)

	body := signedNotification(t, map[string]interface{}{
		"TerminalKey": "term1",
		"OrderId":     "garbage-id",
		"Status":      tbank.StatusConfirmed,
		"Success":     true,
		"PaymentId":   "777",
	}, "secret")
	expectWebhookLog(mock, string(body))

	err := svc.HandleNotification(context.Background(), body)
	require.ErrorIs(t, err, ErrUnknownOrder)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleNotification_SessionIntentRedelivery(t *testing.T) {
	svc, mock := setupWebhookMock(t)

	body := signedNotification(t, map[string]interface{}{
		"TerminalKey": "term1",
		"OrderId":     "S-15",
		"Status":      tbank.StatusConfirmed,
		"Success":     true,
		"PaymentId":   "777",
	}, "secret")
	expectWebhookLog(mock, string(body))

	// интент уже оплачен — повторная доставка завершается без эффектов
	mock.ExpectBegin()
	paidAt := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "session_id", "amount_rub", "status", "tb_payment_id", "tb_status", "created_at", "paid_at"}).
		AddRow(15, 3, 9, 700, StatusPaid, "777", tbank.StatusConfirmed, time.Now(), paidAt)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM payment_intents WHERE id = $1 FOR UPDATE`)).
		WithArgs(15).
		WillReturnRows(rows)
	mock.ExpectCommit()

	err := svc.HandleNotification(context.Background(), body)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleNotification_DeclineCancelsIntent(t *testing.T) {
	svc, mock := setupWebhookMock(t)

	body := signedNotification(t, map[string]interface{}{
		"TerminalKey": "term1",
		"OrderId":     "S-21",
		"Status":      tbank.StatusRejected,
		"Success":     false,
		"PaymentId":   "778",
	}, "secret")
	expectWebhookLog(mock, string(body))

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "user_id", "session_id", "amount_rub", "status", "tb_payment_id", "tb_status", "created_at", "paid_at"}).
		AddRow(21, 3, 9, 700, StatusPending, "778", "AUTHORIZED", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM payment_intents WHERE id = $1 FOR UPDATE`)).
		WithArgs(21).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`SET status = 'canceled', tb_status = $1`)).
		WithArgs(tbank.StatusRejected, 21).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.HandleNotification(context.Background(), body)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Корректно подписанный вебхук про несуществующий интент должен получать
// терминальный отказ: шлюз перестаёт ретраить только на 4xx.
func TestHandleNotification_MissingIntentIsTerminal(t *testing.T) {
	svc, mock := setupWebhookMock(t)

	body := signedNotification(t, map[string]interface{}{
		"TerminalKey": "term1",
		"OrderId":     "S-404",
		"Status":      tbank.StatusConfirmed,
		"Success":     true,
		"PaymentId":   "779",
	}, "secret")
	expectWebhookLog(mock, string(body))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM payment_intents WHERE id = $1 FOR UPDATE`)).
		WithArgs(404).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := svc.HandleNotification(context.Background(), body)
	require.ErrorIs(t, err, ErrUnknownOrder)
	require.NoError(t, mock.ExpectationsWereMet())
}
