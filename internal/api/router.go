package api

import (
	"github.com/gin-gonic/gin"

	"github.com/TRob9/claude-github-buddy/internal/common/logger"
	"github.com/TRob9/claude-github-buddy/internal/events/bus"
	"github.com/TRob9/claude-github-buddy/internal/history"
	"github.com/TRob9/claude-github-buddy/internal/session"
	"github.com/TRob9/claude-github-buddy/internal/transport/ws"
)

// apiRequestsPerSecond bounds the shared token bucket for /api/v1.
const apiRequestsPerSecond = 50

// SetupRouter builds the gin engine with middleware and all routes.
func SetupRouter(registry *session.Registry, runner Runner, store history.Store, events bus.EventBus, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		Recovery(log),
		RequestLogger(log),
		ErrorHandler(log),
		CORS(),
	)

	handler := NewHandler(registry, runner, store, events, log)
	stream := ws.NewHandler(registry, log)

	router.GET("/health", handler.Health)

	api := router.Group("/api/v1")
	api.Use(RateLimit(apiRequestsPerSecond))
	{
		sessions := api.Group("/sessions")
		{
			sessions.POST("", handler.CreateSession)
			sessions.GET("/:id", handler.GetSession)
			sessions.DELETE("/:id", handler.DeleteSession)
			sessions.POST("/:id/run", handler.RunTask)
			sessions.GET("/:id/stream", stream.Stream)
		}

		runs := api.Group("/runs")
		{
			runs.GET("", handler.ListRuns)
			runs.GET("/:runId", handler.GetRun)
		}
	}

	return router
}
