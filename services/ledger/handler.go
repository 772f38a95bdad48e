package ledger

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"refhire-rewards/services/wallet"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.GET("/wallets/:user_id", h.getWallet)
	v1.GET("/wallets/:user_id/transactions", h.listTransactions)
	v1.POST("/wallets/:user_id/credits", h.credit)
}

func (h *Handler) getWallet(c *gin.Context) {
	info, err := h.svc.GetWalletInfo(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) listTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	txns, err := h.svc.GetTransactionHistory(c.Request.Context(), c.Param("user_id"), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

type creditRequest struct {
	Currency         wallet.Currency `json:"currency" binding:"required"`
	Amount           int64           `json:"amount" binding:"required"`
	Type             TransactionType `json:"type"`
	Source           string          `json:"source" binding:"required"`
	SourceID         string          `json:"source_id"`
	Description      string          `json:"description"`
	Metadata         map[string]any  `json:"metadata"`
	PaymentReference string          `json:"payment_reference"`
}

func (h *Handler) credit(c *gin.Context) {
	var req creditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	result, err := h.svc.AddCoins(c.Request.Context(), MutationParams{
		UserID:           c.Param("user_id"),
		Currency:         req.Currency,
		Amount:           req.Amount,
		Type:             req.Type,
		Source:           req.Source,
		SourceID:         req.SourceID,
		Description:      req.Description,
		Metadata:         req.Metadata,
		PaymentReference: req.PaymentReference,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"balance":     result.Balance,
		"transaction": result.Transaction,
	})
}
