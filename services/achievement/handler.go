package achievement

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"refhire-rewards/pkg/task"
)

type Handler struct {
	svc      *Service
	enqueuer task.Enqueuer
}

func NewHandler(svc *Service, enqueuer task.Enqueuer) *Handler {
	return &Handler{svc: svc, enqueuer: enqueuer}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")
	v1.POST("/events", h.postEvent)
	v1.GET("/users/:user_id/achievements", h.listAchievements)
	v1.GET("/users/:user_id/opportunities", h.listOpportunities)
}

type eventRequest struct {
	UserID  string         `json:"user_id" binding:"required"`
	Action  string         `json:"action" binding:"required"`
	Context map[string]any `json:"context"`
	Async   bool           `json:"async"`
}

// postEvent ingests one activity event. Synchronous by default so callers
// see the completions; async hands the event to the worker queue.
func (h *Handler) postEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	if req.Async {
		t, err := NewCheckAwardTask(ActivityEventPayload{
			UserID:     req.UserID,
			Action:     req.Action,
			Context:    req.Context,
			OccurredAt: time.Now(),
		})
		if err != nil {
			c.Error(err)
			return
		}
		if _, err := h.enqueuer.Enqueue(t); err != nil {
			zap.L().Error("failed to enqueue activity event", zap.Error(err))
			c.Error(err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
		return
	}

	results, err := h.svc.CheckAndAward(c.Request.Context(), req.UserID, req.Action, req.Context)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completions": results})
}

func (h *Handler) listAchievements(c *gin.Context) {
	out, err := h.svc.GetUserAchievements(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": out})
}

func (h *Handler) listOpportunities(c *gin.Context) {
	out, err := h.svc.GetEarningOpportunities(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"opportunities": out})
}
