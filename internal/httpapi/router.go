package httpapi

import (
	"net/http"
	"time"

	"contaminer/pkg/config"
	"contaminer/pkg/health"
	"contaminer/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewHandler,
		NewRouter,
	),
)

const maxUploadBytes = 256 << 20

type RouterParams struct {
	fx.In

	Config  *config.Config
	Handler *Handler
	Health  health.HealthService `optional:"true"`
}

// NewRouter builds the gin engine serving the JSON API, health probes and
// prometheus metrics.
func NewRouter(p RouterParams) http.Handler {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = maxUploadBytes
	router.Use(gin.Recovery(), requestLogger(), middleware.Error(), middleware.RemoteUser())

	if p.Health != nil {
		router.GET("/health/liveness", p.Health.Liveness)
		router.GET("/health/readiness", p.Health.Readiness)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	p.Handler.Register(router.Group("/api"))
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		zap.L().Info("[HTTP] request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
