package server

import (
	"github.com/gin-gonic/gin"

	"github.com/foremanhq/foreman/internal/metrics"
)

// NewRouter builds the full HTTP surface around the core context.
func NewRouter(core *Core) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(Recovery(core.Log))
	router.Use(RequestLogger(core.Log))
	router.Use(CORS())

	handler := NewHandler(core)

	api := router.Group("/api/v1")
	{
		tasks := api.Group("/tasks")
		{
			tasks.POST("", handler.CreateTask)
			tasks.GET("", handler.ListTasks)
			tasks.GET("/:taskId", handler.GetTask)
			tasks.PUT("/:taskId", handler.UpdateTask)
			tasks.DELETE("/:taskId", handler.DeleteTask)
			tasks.POST("/:taskId/dispatch", handler.DispatchTask)
			tasks.POST("/:taskId/poll", handler.PollTask)
			tasks.POST("/:taskId/retry", handler.RetryTask)
			tasks.POST("/:taskId/cancel", handler.CancelTask)
		}

		agents := api.Group("/agents")
		{
			agents.GET("", handler.ListAgents)
			agents.POST("/refresh", handler.RefreshAgents)
			agents.GET("/:name", handler.GetAgent)
			agents.POST("/:name/ping", handler.PingAgent)
		}

		api.GET("/status", handler.Status)
		api.GET("/health", handler.Health)
		api.GET("/logs", handler.Logs)
		api.GET("/routing", handler.Routing)
		api.GET("/queue", handler.Queue)

		debates := api.Group("/debate")
		{
			debates.POST("/start", handler.StartDebate)
			debates.GET("/history", handler.DebateHistory)
			debates.GET("/:sessionId", handler.GetDebate)
			debates.GET("/:sessionId/report", handler.DebateReport)
		}
	}

	router.GET("/ws/feed", handler.Feed)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router
}
