package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/dobrv4er/woomfit/internal/auth"
	"github.com/dobrv4er/woomfit/internal/metrics"
	"github.com/dobrv4er/woomfit/internal/notify"
	"github.com/dobrv4er/woomfit/internal/user"
)

type Handler struct {
	repo     *Repository
	users    *user.Repository
	notifier *notify.Service
}

func NewHandler(db *sqlx.DB, notifier *notify.Service) *Handler {
	return &Handler{
		repo:     NewRepository(db),
		users:    user.NewRepository(db),
		notifier: notifier,
	}
}

func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	w, err := h.repo.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, w)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txs, err := h.repo.GetTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, txs)
}

// AdminTopup — пополнение менеджером; клиенты не пополняют кошелёк сами.
func (h *Handler) AdminTopup(c *gin.Context) {
	var req TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	balance, err := h.repo.Topup(c.Request.Context(), req.UserID, req.Amount, req.Reason)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to top up wallet"})
		return
	}

	metrics.RecordWalletOp(TxTopup)
	h.notifier.WalletTopup(c.Request.Context(), h.userName(c, req.UserID), req.Amount, balance, req.Reason)

	c.JSON(http.StatusOK, gin.H{
		"message": "wallet recharged",
		"balance": balance,
	})
}

func (h *Handler) AdminDebit(c *gin.Context) {
	var req DebitRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	balance, err := h.repo.Debit(c.Request.Context(), req.UserID, req.Amount, req.Reason)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient balance"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to debit wallet"})
		return
	}

	metrics.RecordWalletOp(TxDebit)
	h.notifier.WalletDebit(c.Request.Context(), h.userName(c, req.UserID), req.Amount, balance, req.Reason)

	c.JSON(http.StatusOK, gin.H{
		"message": "wallet debited",
		"balance": balance,
	})
}

func (h *Handler) userName(c *gin.Context, userID int) string {
	u, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		return "id " + strconv.Itoa(userID)
	}
	return u.Name
}
