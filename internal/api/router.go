package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"contractWatch/internal/control"
)

// RouterConfig configures the HTTP control plane.
type RouterConfig struct {
	CORSOrigins []string
}

// NewRouter builds the gin engine serving the control-plane routes.
func NewRouter(service *control.Service, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(accessLog(logger))

	if len(cfg.CORSOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", requestIDHeader}
		corsCfg.ExposeHeaders = []string{requestIDHeader}
		corsCfg.AllowCredentials = true
		corsCfg.MaxAge = 12 * time.Hour
		r.Use(cors.New(corsCfg))
	}

	h := &handlers{service: service, logger: logger}

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/add_contract", h.addContract)
	r.GET("/get_events", h.getEvents)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/targets", h.upsertTarget)
		v1.GET("/targets", h.listTargets)
		v1.GET("/targets/:address", h.getTarget)
		v1.DELETE("/targets/:address", h.removeTarget)
		v1.GET("/events", h.recentEvents)
		v1.POST("/reload", h.reload)
		v1.GET("/status", h.status)
	}

	return r
}
