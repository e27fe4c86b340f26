package tbank

import "strings"

const (
	taxation = "usn_income"
	itemTax  = "none"

	// Контакт обязателен в чеке; если клиент не оставил ни почты, ни
	// телефона, чек уходит на адрес студии.
	fallbackEmail = "info@woomfit.ru"

	maxItemName = 128
)

// KopeksFromRub переводит рубли в минимальные единицы шлюза.
func KopeksFromRub(rub int) int64 {
	return int64(rub) * 100
}

// NewReceipt собирает чек на одну позицию.
func NewReceipt(email, phone, itemName string, amountRub int) *Receipt {
	name := []rune(strings.TrimSpace(itemName))
	if len(name) > maxItemName {
		name = name[:maxItemName]
	}

	r := &Receipt{
		Taxation: taxation,
		Items: []ReceiptItem{{
			Name:     string(name),
			Price:    KopeksFromRub(amountRub),
			Quantity: 1,
			Amount:   KopeksFromRub(amountRub),
			Tax:      itemTax,
		}},
	}

	switch {
	case email != "":
		r.Email = email
	case phone != "":
		r.Phone = phone
	default:
		r.Email = fallbackEmail
	}
	return r
}

// NormalizePhone приводит номер к виду 7XXXXXXXXXX.
func NormalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	if len(d) == 11 && d[0] == '8' {
		d = "7" + d[1:]
	}
	if len(d) == 10 {
		d = "7" + d
	}
	return d
}
