package tbank

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToken_SortsKeysAndInjectsPassword(t *testing.T) {
	params := map[string]interface{}{
		"TerminalKey": "term1",
		"Amount":      int64(65000),
		"OrderId":     "R-12",
	}

	// Amount=65000, OrderId=R-12, Password=secret, TerminalKey=term1
	// sha256("65000R-12secretterm1")
	require.Equal(t,
		"d91dcfb3128cd3195a9c62bca37d83ba17894ebd238f891d34716d525eeba0ee",
		Token(params, "secret"))
}

func TestToken_BooleansSerializeLowercase(t *testing.T) {
	withBool := map[string]interface{}{
		"TerminalKey": "t",
		"Success":     true,
	}
	withString := map[string]interface{}{
		"TerminalKey": "t",
		"Success":     "true",
	}
	require.Equal(t, Token(withString, "p"), Token(withBool, "p"))

	withFalse := map[string]interface{}{
		"TerminalKey": "t",
		"Success":     false,
	}
	require.NotEqual(t, Token(withBool, "p"), Token(withFalse, "p"))
}

func TestToken_IgnoresNestedObjectsAndToken(t *testing.T) {
	base := map[string]interface{}{
		"TerminalKey": "t",
		"OrderId":     "42",
	}
	noisy := map[string]interface{}{
		"TerminalKey": "t",
		"OrderId":     "42",
		"Token":       "stale-token",
		"Receipt":     map[string]interface{}{"Email": "a@b"},
		"DATA":        []interface{}{"x"},
	}
	require.Equal(t, Token(base, "p"), Token(noisy, "p"))
}

func TestToken_JSONNumbersKeepIntegerForm(t *testing.T) {
	// float64(65000) из json.Unmarshal должен дать "65000", не "65000.000000"
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"Amount": 65000, "TerminalKey": "t"}`), &raw))

	direct := map[string]interface{}{
		"Amount":      "65000",
		"TerminalKey": "t",
	}
	require.Equal(t, Token(direct, "p"), Token(raw, "p"))
}

func TestParseNotification_ValidatesToken(t *testing.T) {
	payload := map[string]interface{}{
		"TerminalKey": "term1",
		"OrderId":     "S-7",
		"Status":      StatusConfirmed,
		"Success":     true,
		"PaymentId":   123456,
	}
	payload["Token"] = Token(payload, "pass")

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	n, err := ParseNotification(body)
	require.NoError(t, err)
	require.Equal(t, "S-7", n.OrderID)
	require.Equal(t, StatusConfirmed, n.Status)
	require.True(t, n.Success)
	require.Equal(t, "123456", n.PaymentID)

	require.True(t, n.Valid("pass"))
	require.False(t, n.Valid("wrong"))
}

func TestParseNotification_RejectsMissingOrderID(t *testing.T) {
	_, err := ParseNotification([]byte(`{"Status": "CONFIRMED"}`))
	require.Error(t, err)
}

func TestDeclineStatus(t *testing.T) {
	require.True(t, DeclineStatus(StatusCanceled))
	require.True(t, DeclineStatus(StatusRejected))
	require.True(t, DeclineStatus(StatusDeadlineExpired))
	require.False(t, DeclineStatus(StatusConfirmed))
	require.False(t, DeclineStatus("AUTHORIZED"))
}

func TestNewReceipt_ContactFallback(t *testing.T) {
	r := NewReceipt("", "", "Аренда зала", 650)
	require.Equal(t, fallbackEmail, r.Email)
	require.Empty(t, r.Phone)

	r = NewReceipt("", "79990001122", "Аренда зала", 650)
	require.Equal(t, "79990001122", r.Phone)
	require.Empty(t, r.Email)

	r = NewReceipt("client@mail.ru", "79990001122", "Аренда зала", 650)
	require.Equal(t, "client@mail.ru", r.Email)
}

func TestNewReceipt_AmountsInKopeks(t *testing.T) {
	r := NewReceipt("a@b.ru", "", "Разовое занятие", 700)
	require.Equal(t, int64(70000), r.Items[0].Price)
	require.Equal(t, int64(70000), r.Items[0].Amount)
	require.Equal(t, 1, r.Items[0].Quantity)
}

func TestNewReceipt_TruncatesLongItemName(t *testing.T) {
	long := make([]rune, 0, 200)
	for i := 0; i < 200; i++ {
		long = append(long, 'я')
	}
	r := NewReceipt("a@b.ru", "", string(long), 650)
	require.Len(t, []rune(r.Items[0].Name), maxItemName)
}

func TestNormalizePhone(t *testing.T) {
	require.Equal(t, "79990001122", NormalizePhone("+7 (999) 000-11-22"))
	require.Equal(t, "79990001122", NormalizePhone("8 999 000 11 22"))
	require.Equal(t, "79990001122", NormalizePhone("9990001122"))
}
