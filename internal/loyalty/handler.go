package loyalty

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dobrv4er/woomfit/internal/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) GetProfile(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	profile, err := h.svc.repo.GetProfile(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load loyalty profile"})
		return
	}

	balance, err := h.svc.repo.GetBonusBalance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bonus balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":       profile,
		"bonus_balance": balance,
	})
}

func (h *Handler) ListBonuses(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bonuses, err := h.svc.repo.ListBonuses(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bonuses"})
		return
	}

	c.JSON(http.StatusOK, bonuses)
}

type planQuery struct {
	Total    decimal.Decimal `form:"total" binding:"required"`
	Eligible decimal.Decimal `form:"eligible"`
}

// GetPaymentPlan показывает клиенту раскладку «бонусы + кошелёк» до оплаты.
func (h *Handler) GetPaymentPlan(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var q planQuery
	if err := c.ShouldBindQuery(&q); err != nil || !q.Total.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "total must be positive"})
		return
	}

	plan, err := h.svc.BuildBonusPaymentPlan(c.Request.Context(), userID, q.Total, q.Eligible)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build payment plan"})
		return
	}

	c.JSON(http.StatusOK, plan)
}
