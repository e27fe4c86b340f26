package membership

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/dobrv4er/woomfit/internal/auth"
)

type Handler struct {
	repo *Repository
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{repo: NewRepository(db)}
}

func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ms, err := h.repo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load memberships"})
		return
	}

	c.JSON(http.StatusOK, ms)
}

// ListBookable — абонементы, пригодные для записи на группу, для платёжного
// экрана клиента.
func (h *Handler) ListBookable(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	ms, err := h.repo.ListGroupBookable(c.Request.Context(), userID, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load memberships"})
		return
	}

	c.JSON(http.StatusOK, ms)
}

type grantRequest struct {
	UserID       int    `json:"user_id" binding:"required"`
	Title        string `json:"title" binding:"required"`
	Kind         string `json:"kind" binding:"required,oneof=visits time unlimited"`
	Scope        string `json:"scope" binding:"omitempty,oneof=group personal"`
	TotalVisits  *int   `json:"total_visits"`
	ValidityDays *int   `json:"validity_days"`
}

// AdminGrant выдаёт абонемент вручную (продажа на ресепшене, компенсация).
func (h *Handler) AdminGrant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m := &Membership{
		UserID:       req.UserID,
		Title:        req.Title,
		Kind:         req.Kind,
		Scope:        req.Scope,
		TotalVisits:  req.TotalVisits,
		LeftVisits:   req.TotalVisits,
		ValidityDays: req.ValidityDays,
	}

	created, err := h.repo.Create(c.Request.Context(), nil, m)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create membership"})
		return
	}

	c.JSON(http.StatusCreated, created)
}
