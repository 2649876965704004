package handlers

import (
	"time"

	"visit-summary-service/config"
	"visit-summary-service/metrics"
	"visit-summary-service/middleware"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

const (
	EndPointHealth  = "/health"
	EndPointVersion = "/version"
	EndPointMetrics = "/metrics"
	EndPointAPI     = "/api"
)

// NewRouter wires middleware and routes. The event stream route is excluded
// from gzip so every event reaches the client as soon as it is flushed;
// promhttp compresses /metrics itself.
func NewRouter(cfg *config.Config, verifier *middleware.TokenVerifier, completer Completer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{EndPointAPI, EndPointMetrics})))

	router.GET(EndPointHealth, HealthCheck)
	router.GET(EndPointVersion, Version)
	router.GET(EndPointMetrics, gin.WrapH(metrics.Handler()))

	visitHandler := NewVisitHandler(completer)

	protected := router.Group("/")
	protected.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, time.Minute))
	protected.Use(middleware.AuthMiddleware(verifier))
	{
		protected.POST(EndPointAPI, visitHandler.Summarize)
	}

	return router
}
