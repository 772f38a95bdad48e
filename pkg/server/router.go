package server

import (
	"refhire-rewards/pkg/config"
	"refhire-rewards/pkg/health"
	"refhire-rewards/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// ProvideRouter builds the shared gin engine. Feature packages register
// their own routes on it through fx.Invoke hooks.
func ProvideRouter(cfg *config.Config, h health.HealthService) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Trace())
	r.Use(middleware.Error())

	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	return r
}

var RouterModule = fx.Module("http.router",
	fx.Provide(ProvideRouter),
)
