package rent

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dobrv4er/woomfit/internal/auth"
	"github.com/dobrv4er/woomfit/internal/wallet"
)

func paramInt(c *gin.Context, name string) (int, error) {
	return strconv.Atoi(c.Param(name))
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetWeekGrid — сетка занятости на неделю. week_start — понедельник в формате
// 2006-01-02; авторизация не обязательна, но залогиненный видит свои
// оплаченные слоты как rent_paid.
func (h *Handler) GetWeekGrid(c *gin.Context) {
	raw := c.Query("week_start")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "week_start is required"})
		return
	}

	weekStart, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "week_start must be YYYY-MM-DD"})
		return
	}

	var viewerID *int
	if id, ok := auth.GetUserID(c); ok {
		viewerID = &id
	}

	grid, err := h.svc.BusyStatesForWeek(c.Request.Context(), weekStart, viewerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load slot grid"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"week_start": weekStart.Format("2006-01-02"),
		"location":   h.svc.cfg.RentLocation,
		"price_rub":  h.svc.cfg.RentPriceRub,
		"open_hour":  h.svc.cfg.RentOpenHour,
		"close_hour": h.svc.cfg.RentCloseHour,
		"slots":      grid,
	})
}

type reserveRequest struct {
	SlotStart     time.Time `json:"slot_start" binding:"required"`
	FullName      string    `json:"full_name" binding:"required"`
	Phone         string    `json:"phone" binding:"required,ruphone"`
	Email         string    `json:"email" binding:"omitempty,email"`
	SocialHandle  string    `json:"social_handle"`
	Comment       string    `json:"comment"`
	PromoCode     string    `json:"promo_code"`
	PayFromWallet bool      `json:"pay_from_wallet"`
}

func (h *Handler) Reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var userID *int
	if id, ok := auth.GetUserID(c); ok {
		userID = &id
	}
	if req.PayFromWallet && userID == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet payment requires login"})
		return
	}

	result, err := h.svc.Reserve(c.Request.Context(), ReserveInput{
		UserID:        userID,
		SlotStart:     req.SlotStart,
		FullName:      req.FullName,
		Email:         req.Email,
		Phone:         req.Phone,
		SocialHandle:  req.SocialHandle,
		Comment:       req.Comment,
		PromoCode:     req.PromoCode,
		PayFromWallet: req.PayFromWallet,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSlotBusy):
			c.JSON(http.StatusConflict, gin.H{"error": "slot is busy"})
		case errors.Is(err, ErrSlotOutOfHours), errors.Is(err, ErrSlotInPast):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, wallet.ErrInsufficientBalance):
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient wallet balance"})
		case errors.Is(err, ErrGatewayDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reserve slot"})
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetMyIntent — детали собственной заявки; чужие заявки недоступны.
func (h *Handler) GetMyIntent(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	intentID, err := paramInt(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid intent id"})
		return
	}

	intent, err := h.svc.repo.FindIntent(c.Request.Context(), intentID)
	if err != nil {
		if errors.Is(err, ErrIntentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "intent not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load intent"})
		return
	}

	role, _ := c.Get("user_role")
	if (intent.UserID == nil || *intent.UserID != userID) && role != "admin" {
		c.JSON(http.StatusNotFound, gin.H{"error": "intent not found"})
		return
	}

	c.JSON(http.StatusOK, intent)
}
