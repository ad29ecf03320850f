package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/veritas/internal/config"
	infragin "github.com/jonesrussell/north-cloud/veritas/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/veritas/infrastructure/logger"
)

// noWriteTimeout keeps event streams open indefinitely.
const noWriteTimeout = 0

// NewServer creates a new HTTP server. redisPing adds a Redis health check
// when non-nil. Shutdown stops the event broker first so open streams end.
func NewServer(
	h Handlers,
	cfg *config.Config,
	log infralogger.Logger,
	redisPing func() error,
) *infragin.Server {
	builder := infragin.NewServerBuilder(cfg.Service.Name, cfg.Service.Port).
		WithLogger(log).
		WithDebug(cfg.Service.Debug).
		WithVersion(cfg.Service.Version).
		WithCORSOrigins(cfg.Service.CORSOrigins).
		WithTimeouts(cfg.Service.ReadTimeout, noWriteTimeout, cfg.Service.IdleTimeout).
		WithShutdownTimeout(cfg.Service.ShutdownTimeout).
		WithShutdownHook(func() {
			if err := h.Events.Stop(); err != nil {
				log.Warn("Failed to stop SSE broker", infralogger.Error(err))
			}
		}).
		WithRoutes(func(router *gin.Engine) {
			SetupRoutes(router, h, log)
		})

	if redisPing != nil {
		builder = builder.WithRedisHealthCheck(redisPing)
	}

	return builder.Build()
}
