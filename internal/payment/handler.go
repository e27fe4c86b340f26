package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dobrv4er/woomfit/internal/logger"
	"github.com/dobrv4er/woomfit/internal/schedule"
	"github.com/dobrv4er/woomfit/internal/wallet"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type buySessionRequest struct {
	SessionID  int  `json:"session_id" binding:"required"`
	FromWallet bool `json:"from_wallet"`
}

// BuySession — покупка разового группового занятия.
func (h *Handler) BuySession(c *gin.Context) {
	userID := c.GetInt("user_id")

	var req buySessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		result *BuySessionResult
		err    error
	)
	if req.FromWallet {
		result, err = h.service.BuySessionWallet(c.Request.Context(), userID, req.SessionID)
	} else {
		result, err = h.service.BuySessionOnline(c.Request.Context(), userID, req.SessionID)
	}
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, schedule.ErrNotGroupSession):
			c.JSON(http.StatusBadRequest, gin.H{"error": "only group sessions can be bought"})
		case errors.Is(err, schedule.ErrSessionFull):
			c.JSON(http.StatusConflict, gin.H{"error": "no seats left"})
		case errors.Is(err, schedule.ErrSessionStarted):
			c.JSON(http.StatusConflict, gin.H{"error": "session already started"})
		case errors.Is(err, schedule.ErrAlreadyBooked):
			c.JSON(http.StatusConflict, gin.H{"error": "already booked"})
		case errors.Is(err, wallet.ErrInsufficientBalance):
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient wallet balance"})
		case errors.Is(err, ErrGatewayDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "online payments are unavailable"})
		default:
			logger.Errorf("Failed to buy session %d for user %d: %v", req.SessionID, userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to buy session"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// TBankWebhook принимает уведомления эквайринга. Банк ретраит всё, что не
// ответило 200 OK, поэтому успешная и повторная доставка отвечают одинаково.
func (h *Handler) TBankWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "BAD REQUEST")
		return
	}

	if err := h.service.HandleNotification(c.Request.Context(), body); err != nil {
		switch {
		case errors.Is(err, ErrBadPayload):
			c.String(http.StatusBadRequest, "BAD REQUEST")
		case errors.Is(err, ErrBadToken):
			c.String(http.StatusBadRequest, "INVALID TOKEN")
		case errors.Is(err, ErrUnknownOrder):
			c.String(http.StatusBadRequest, "BAD REQUEST")
		default:
			logger.Errorf("Failed to process payment webhook: %v", err)
			c.String(http.StatusInternalServerError, "ERROR")
		}
		return
	}

	c.String(http.StatusOK, "OK")
}
