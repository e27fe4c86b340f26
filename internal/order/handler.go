package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dobrv4er/woomfit/internal/auth"
	"github.com/dobrv4er/woomfit/internal/loyalty"
	"github.com/dobrv4er/woomfit/internal/wallet"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListProducts(c *gin.Context) {
	ps, err := h.svc.repo.ListActiveProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load products"})
		return
	}
	c.JSON(http.StatusOK, ps)
}

type checkoutRequest struct {
	Lines         []CheckoutLine `json:"lines" binding:"required,min=1,dive"`
	PayFromWallet bool           `json:"pay_from_wallet"`
}

func (h *Handler) Checkout(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.Checkout(c.Request.Context(), userID, req.Lines, req.PayFromWallet)
	if err != nil {
		switch {
		case errors.Is(err, ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, ErrProductInactive), errors.Is(err, ErrEmptyOrder):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, wallet.ErrInsufficientBalance):
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient wallet balance"})
		case errors.Is(err, loyalty.ErrBonusBalanceChanged):
			c.JSON(http.StatusConflict, gin.H{"error": "bonus balance changed, retry the payment"})
		case errors.Is(err, ErrGatewayDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to place order"})
		}
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListMyOrders(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	orders, err := h.svc.repo.ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load orders"})
		return
	}

	c.JSON(http.StatusOK, orders)
}

func (h *Handler) GetOrder(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	o, err := h.svc.repo.FindOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load order"})
		return
	}

	role, _ := c.Get("user_role")
	if (o.UserID == nil || *o.UserID != userID) && role != "admin" {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	items, err := h.svc.repo.ListItems(c.Request.Context(), h.svc.db, o.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load order items"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": o, "items": items})
}

type createProductRequest struct {
	Name             string `json:"name" binding:"required"`
	Description      string `json:"description"`
	PriceRub         int    `json:"price_rub" binding:"min=0"`
	GrantKind        string `json:"grant_kind" binding:"required,oneof=none membership wallet_topup"`
	MembershipKind   string `json:"membership_kind" binding:"omitempty,oneof=visits time unlimited"`
	MembershipScope  string `json:"membership_scope" binding:"omitempty,oneof=group personal"`
	MembershipVisits *int   `json:"membership_visits"`
	MembershipDays   *int   `json:"membership_days"`
	WalletTopupRub   *int   `json:"wallet_topup_rub"`
	BonusEligible    bool   `json:"bonus_eligible"`
}

func (h *Handler) AdminCreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.svc.repo.CreateProduct(c.Request.Context(), &Product{
		Name:             req.Name,
		Description:      req.Description,
		PriceRub:         req.PriceRub,
		GrantKind:        req.GrantKind,
		MembershipKind:   req.MembershipKind,
		MembershipScope:  req.MembershipScope,
		MembershipVisits: req.MembershipVisits,
		MembershipDays:   req.MembershipDays,
		WalletTopupRub:   req.WalletTopupRub,
		BonusEligible:    req.BonusEligible,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create product"})
		return
	}

	c.JSON(http.StatusCreated, p)
}

func (h *Handler) AdminRevokeOrder(c *gin.Context) {
	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	if err := h.svc.RevokeOrder(c.Request.Context(), orderID); err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		case errors.Is(err, ErrOrderNotPaid):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, wallet.ErrInsufficientBalance):
			c.JSON(http.StatusConflict, gin.H{"error": "wallet balance too low to revoke top-up"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke order"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "order revoked"})
}
