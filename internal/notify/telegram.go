package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dobrv4er/woomfit/internal/logger"
	"github.com/dobrv4er/woomfit/internal/metrics"
)

const (
	queueKey  = "tg_messages"
	failedKey = "tg_messages:failed"

	maxTries = 3
)

type Message struct {
	Text    string    `json:"text"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

// Service queues staff notifications in redis and drains them in the
// background. Every call is best-effort: a full queue, a broken redis or a
// rejected Telegram request never bubbles up to the caller.
type Service struct {
	redis    *redis.Client
	botToken string
	chatID   string
	client   *http.Client
}

func New(botToken, chatID, redisAddr string) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// NewWithClient is used by tests to inject a redis mock.
func NewWithClient(rdb *redis.Client, botToken, chatID string) *Service {
	return &Service{
		redis:    rdb,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Send enqueues a message. Errors are swallowed by design: notifications must
// never fail the financial operation that triggered them.
func (s *Service) Send(ctx context.Context, text string) {
	if s == nil || text == "" {
		return
	}

	msg := Message{Text: text, Created: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("Failed to marshal telegram message: %v", err)
		return
	}

	if err := s.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		logger.Errorf("Failed to queue telegram message: %v", err)
		metrics.RecordNotification("enqueue_failed")
		return
	}
	metrics.RecordNotification("queued")
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Telegram notification service started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Telegram notification service stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		logger.Errorf("Bad telegram message data: %v", err)
		return
	}

	msg.Tries++
	if err := s.sendNow(ctx, msg); err != nil {
		logger.Errorf("Failed to send telegram message: %v", err)
		metrics.RecordNotification("send_failed")

		if msg.Tries < maxTries {
			time.Sleep(5 * time.Second)
			data, _ := json.Marshal(msg)
			s.redis.LPush(context.Background(), queueKey, data)
		} else {
			s.saveFailed(msg, err)
		}
		return
	}

	metrics.RecordNotification("sent")
}

func (s *Service) sendNow(ctx context.Context, msg Message) error {
	if s.botToken == "" || s.chatID == "" {
		// Not configured; drop silently like the original does.
		return nil
	}

	payload := map[string]interface{}{
		"chat_id":                  s.chatID,
		"text":                     msg.Text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram responded %s", resp.Status)
	}
	return nil
}

func (s *Service) saveFailed(msg Message, sendErr error) {
	failed := map[string]interface{}{
		"message": msg,
		"error":   sendErr.Error(),
		"time":    time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedKey, data)
	logger.Error("Telegram message moved to failed queue")
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}
