// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"

	"lead-pipeline/internal/common/logger"
	"lead-pipeline/internal/orchestrator"
	"lead-pipeline/internal/queue"
)

// NewRouter wires the public ingress endpoints.
func NewRouter(orch *orchestrator.Orchestrator, q *queue.Queue, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	h := &handlers{orch: orch, queue: q, logger: log}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/applications", h.submitApplication)
		v1.POST("/calls", h.submitCall)
		v1.POST("/activities", h.trackActivity)
		v1.GET("/health", h.health)
	}

	return router
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Info("http request", map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})
	}
}
