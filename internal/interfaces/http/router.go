// Package http exposes the prediction service over a gin router.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ChemPredict/internal/interfaces/http/handlers"
	"github.com/turtacn/ChemPredict/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.  Nil handlers leave their routes unregistered.
type RouterConfig struct {
	PredictionHandler *handlers.PredictionHandler
	HealthHandler     *handlers.HealthHandler

	CORS      *middleware.CORSConfig
	Logging   middleware.LoggingConfig
	RateLimit *middleware.RateLimiter

	Logger           logging.Logger
	MetricsCollector prometheus.MetricsCollector
	Metrics          *prometheus.AppMetrics
	// MaxBodySize caps request bodies in bytes; 0 disables the cap.
	MaxBodySize int64
}

// NewRouter builds the complete route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(cfg.Logger))
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging, cfg.Metrics))
	if cfg.RateLimit != nil {
		r.Use(middleware.RateLimit(cfg.RateLimit))
	}
	if cfg.MaxBodySize > 0 {
		r.Use(limitBody(cfg.MaxBodySize))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Health)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	api.GET("/catalog", handlers.Catalog)
	registerPredictionRoutes(api, cfg.PredictionHandler)

	return r
}

func registerPredictionRoutes(r *gin.RouterGroup, h *handlers.PredictionHandler) {
	if h == nil {
		return
	}
	r.POST("/predict", h.Predict)
	r.POST("/rules/evaluate", h.EvaluateRules)
	r.GET("/model", h.Model)
	r.GET("/history", h.History)
	r.GET("/history/stats", h.Stats)
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
