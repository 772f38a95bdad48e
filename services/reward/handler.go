package reward

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.GET("/rewards", h.listItems)
	v1.POST("/rewards/:item_id/purchase", h.purchase)
	v1.GET("/coin-packs", h.listPacks)
	v1.POST("/coin-packs/:pack_id/credit", h.creditPack)
	v1.GET("/users/:user_id/purchases", h.listPurchases)
	v1.PATCH("/purchases/:id/status", h.updateStatus)
}

func (h *Handler) listItems(c *gin.Context) {
	items, err := h.svc.ListRewardItems(c.Request.Context(), c.Query("category"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": items})
}

type purchaseRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *Handler) purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	p, err := h.svc.PurchaseReward(c.Request.Context(), req.UserID, c.Param("item_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"purchase": p})
}

func (h *Handler) listPacks(c *gin.Context) {
	packs, err := h.svc.ListCoinPacks(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coin_packs": packs})
}

type creditPackRequest struct {
	UserID           string `json:"user_id" binding:"required"`
	PaymentReference string `json:"payment_reference" binding:"required"`
}

func (h *Handler) creditPack(c *gin.Context) {
	var req creditPackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	result, err := h.svc.CreditCoinPack(c.Request.Context(), req.UserID, c.Param("pack_id"), req.PaymentReference)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"balance":     result.Balance,
		"transaction": result.Transaction,
	})
}

func (h *Handler) listPurchases(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	purchases, err := h.svc.GetUserPurchases(c.Request.Context(), c.Param("user_id"), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}

type statusRequest struct {
	Status      PurchaseStatus `json:"status" binding:"required"`
	Fulfillment map[string]any `json:"fulfillment"`
}

func (h *Handler) updateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	p, err := h.svc.UpdatePurchaseStatus(c.Request.Context(), c.Param("id"), req.Status, req.Fulfillment)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchase": p})
}
