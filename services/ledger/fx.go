package ledger

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(func(h *Handler, r *gin.Engine) {
		h.RegisterRoutes(r)
	}),
)
