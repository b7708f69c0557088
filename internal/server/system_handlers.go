package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/foremanhq/foreman/internal/dispatch"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// Status returns the operational summary.
// GET /api/v1/status
func (h *Handler) Status(c *gin.Context) {
	agents := h.core.Registry.List()
	byStatus := make(map[string]int)
	for _, a := range agents {
		byStatus[string(a.Status)]++
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "online",
		"version":        h.core.Version,
		"uptime_seconds": h.core.Uptime(),
		"tasks":          h.core.Tasks.Stats(),
		"agents": gin.H{
			"total":     len(agents),
			"by_status": byStatus,
		},
	})
}

// Health probes the inference service and reports component counts.
// GET /api/v1/health
func (h *Handler) Health(c *gin.Context) {
	ollamaOK := h.core.Bridges.Ollama().Health(c.Request.Context())
	models := []string{}
	if ollamaOK {
		if list, err := h.core.Bridges.Ollama().ListModels(c.Request.Context()); err == nil {
			models = list
		}
	}

	agents := h.core.Registry.List()
	active := 0
	for _, a := range agents {
		if a.Status != v1.AgentStatusOffline {
			active++
		}
	}

	ollamaStatus := "offline"
	if ollamaOK {
		ollamaStatus = "online"
	}
	stats := h.core.Tasks.Stats()

	c.JSON(http.StatusOK, gin.H{
		"builder":        "online",
		"version":        h.core.Version,
		"ollama":         ollamaStatus,
		"ollama_models":  models,
		"agents_total":   len(agents),
		"agents_active":  active,
		"tasks_pending":  stats["pending"],
		"tasks_running":  stats["running"],
		"uptime_seconds": h.core.Uptime(),
	})
}

// Logs returns recent audit entries.
// GET /api/v1/logs?limit=
func (h *Handler) Logs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	lines := h.core.Audit.ReadRecent(limit)
	c.JSON(http.StatusOK, gin.H{"logs": lines, "count": len(lines)})
}

// Routing returns the static routing table. Availability is deliberately
// absent here; only dispatch consults the live registry.
// GET /api/v1/routing
func (h *Handler) Routing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"routing_table": dispatch.RoutingTable})
}

// Queue returns the ready pending tasks in dispatch order.
// GET /api/v1/queue
func (h *Handler) Queue(c *gin.Context) {
	queue := h.core.Tasks.PendingQueue()
	c.JSON(http.StatusOK, gin.H{"queue": queue, "count": len(queue)})
}
