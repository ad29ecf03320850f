package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/veritas/internal/handler"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/veritas/infrastructure/sse"
)

// Handlers groups the route handlers.
type Handlers struct {
	Messages *handler.MessageHandler
	Settings *handler.SettingsHandler
	Events   sse.Broker
	Metrics  http.Handler
}

// SetupRoutes configures all API routes.
// Health routes are registered by the infrastructure gin builder.
func SetupRoutes(router *gin.Engine, h Handlers, log infralogger.Logger) {
	v1 := router.Group("/api/v1")

	contexts := v1.Group("/contexts/:" + handler.ContextIDParam)
	contexts.POST("/messages", h.Messages.HandleMessage)
	contexts.GET("/events", sse.ContextHandler(h.Events, log, handler.ContextIDParam))

	v1.GET("/settings", h.Settings.GetSettings)
	v1.PUT("/settings", h.Settings.UpdateSettings)

	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics))
	}
}
