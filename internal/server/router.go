package server

import (
	"github.com/cloudwego/hertz/pkg/app/server"
)

// RegisterRoutes wires the handlers onto the hertz server.
func RegisterRoutes(h *server.Hertz, agent *AgentHandler, cacheHandler *CacheHandler) {
	h.Use(Recovery())
	h.Use(AccessLog())

	h.GET("/healthz", Healthz)

	v1 := h.Group("/v1")
	{
		runs := v1.Group("/agent/runs")
		{
			runs.POST("", agent.Run)
			runs.POST("/stream", agent.RunStream)
		}

		contents := v1.Group("/cache")
		{
			contents.POST("/contents", cacheHandler.Store)
			contents.GET("/contents/:id", cacheHandler.Get)
			contents.GET("/stats", cacheHandler.Stats)
		}
	}
}
