package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"capture-service/internal/service"
	"capture-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PassRunner triggers one capture batch pass.
// Implemented by *service.BatchOrchestrator.
type PassRunner interface {
	RunPass(ctx context.Context) (*service.PassSummary, error)
}

// Handler contains HTTP handlers
type Handler struct {
	orchestrator PassRunner
	cronKey      string
}

// NewHandler creates a new HTTP handler
func NewHandler(orchestrator PassRunner, cronKey string) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		cronKey:      cronKey,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/cron/capture", h.runCapturePass)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// runCapturePass triggers one capture batch pass. The external scheduler
// authenticates with a shared secret; individual order failures still yield
// a 200 with the per-order counters.
func (h *Handler) runCapturePass(c *gin.Context) {
	if !h.authenticateTrigger(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "Invalid or missing cron key",
		})
		return
	}

	summary, err := h.orchestrator.RunPass(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Capture pass failed",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Capture pass completed",
		"data":    summary,
	})
}

// authenticateTrigger compares the trigger secret in constant time
func (h *Handler) authenticateTrigger(c *gin.Context) bool {
	if h.cronKey == "" {
		return false
	}

	provided := c.GetHeader("x-cron-key")
	if provided == "" {
		provided = c.GetHeader("x-api-key")
	}

	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.cronKey)) == 1
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
