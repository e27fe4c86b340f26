package tbank

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"
)

const DefaultBaseURL = "https://securepay.tinkoff.ru/v2"

// Статусы уведомлений шлюза.
const (
	StatusConfirmed       = "CONFIRMED"
	StatusCanceled        = "CANCELED"
	StatusRejected        = "REJECTED"
	StatusDeadlineExpired = "DEADLINE_EXPIRED"
)

var ErrInitRejected = errors.New("tbank init rejected")

// DeclineStatus — статус, закрывающий платёж как неуспешный.
func DeclineStatus(status string) bool {
	switch status {
	case StatusCanceled, StatusRejected, StatusDeadlineExpired:
		return true
	}
	return false
}

type Client struct {
	baseURL     string
	terminalKey string
	password    string
	httpClient  *http.Client
}

func NewClient(baseURL, terminalKey, password string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		terminalKey: terminalKey,
		password:    password,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c.terminalKey != "" && c.password != ""
}

type ReceiptItem struct {
	Name     string `json:"Name"`
	Price    int64  `json:"Price"` // копейки
	Quantity int    `json:"Quantity"`
	Amount   int64  `json:"Amount"` // копейки
	Tax      string `json:"Tax"`
}

type Receipt struct {
	Email    string        `json:"Email,omitempty"`
	Phone    string        `json:"Phone,omitempty"`
	Taxation string        `json:"Taxation"`
	Items    []ReceiptItem `json:"Items"`
}

type InitRequest struct {
	Amount          int64 // копейки
	OrderID         string
	Description     string
	NotificationURL string
	SuccessURL      string
	FailURL         string
	Receipt         *Receipt
}

type InitResponse struct {
	Success    bool   `json:"Success"`
	ErrorCode  string `json:"ErrorCode"`
	Message    string `json:"Message"`
	Details    string `json:"Details"`
	Status     string `json:"Status"`
	PaymentID  string `json:"PaymentId"`
	PaymentURL string `json:"PaymentURL"`
}

// Token считает подпись запроса: пароль подмешивается как обычный параметр,
// параметры сортируются по имени ключа, значения конкатенируются и хэшируются.
// В подпись входят только скалярные корневые поля — Receipt и DATA не
// участвуют. Булевы значения сериализуются строго как "true"/"false": шлюз
// считает свой токен от JSON-представления, и "True" ломает сверку.
func Token(params map[string]interface{}, password string) string {
	values := make(map[string]string, len(params)+1)
	for k, v := range params {
		if k == "Token" {
			continue
		}
		s, ok := scalarString(v)
		if !ok {
			continue
		}
		values[k] = s
	}
	values["Password"] = password

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	for _, k := range keys {
		b.WriteString(values[k])
	}

	sum := sha256.Sum256(b.Bytes())
	return hex.EncodeToString(sum[:])
}

func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case nil:
		return "", false
	default:
		// вложенные объекты и массивы в токен не входят
		return "", false
	}
}

func (c *Client) Init(ctx context.Context, req InitRequest) (*InitResponse, error) {
	payload := map[string]interface{}{
		"TerminalKey": c.terminalKey,
		"Amount":      req.Amount,
		"OrderId":     req.OrderID,
		"Description": req.Description,
	}
	if req.NotificationURL != "" {
		payload["NotificationURL"] = req.NotificationURL
	}
	if req.SuccessURL != "" {
		payload["SuccessURL"] = req.SuccessURL
	}
	if req.FailURL != "" {
		payload["FailURL"] = req.FailURL
	}

	payload["Token"] = Token(payload, c.password)
	if req.Receipt != nil {
		payload["Receipt"] = req.Receipt
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Init", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var initResp InitResponse
	if err := json.NewDecoder(resp.Body).Decode(&initResp); err != nil {
		return nil, err
	}

	if !initResp.Success {
		return &initResp, fmt.Errorf("%w: code=%s message=%s details=%s",
			ErrInitRejected, initResp.ErrorCode, initResp.Message, initResp.Details)
	}
	return &initResp, nil
}

// Notification — разобранное webhook-уведомление плюс сырая корневая карта
// для проверки токена.
type Notification struct {
	TerminalKey string
	OrderID     string
	Status      string
	Success     bool
	PaymentID   string
	Token       string

	raw map[string]interface{}
}

func ParseNotification(body []byte) (*Notification, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	n := &Notification{raw: raw}
	n.TerminalKey, _ = raw["TerminalKey"].(string)
	n.OrderID, _ = raw["OrderId"].(string)
	n.Status, _ = raw["Status"].(string)
	n.Success, _ = raw["Success"].(bool)
	n.Token, _ = raw["Token"].(string)

	switch v := raw["PaymentId"].(type) {
	case string:
		n.PaymentID = v
	case float64:
		n.PaymentID = strconv.FormatFloat(v, 'f', -1, 64)
	}

	if n.OrderID == "" {
		return nil, errors.New("notification without OrderId")
	}
	return n, nil
}

// Valid сверяет токен уведомления с пересчитанным по корневым скалярам.
func (n *Notification) Valid(password string) bool {
	if n.Token == "" {
		return false
	}
	return Token(n.raw, password) == n.Token
}
