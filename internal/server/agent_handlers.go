package server

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/foremanhq/foreman/internal/audit"
	"github.com/foremanhq/foreman/internal/metrics"
	"github.com/foremanhq/foreman/internal/registry"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// ListAgents returns the registry contents without descriptor bodies.
// GET /api/v1/agents
func (h *Handler) ListAgents(c *gin.Context) {
	agents := h.core.Registry.List()
	for _, a := range agents {
		a.Descriptor = ""
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents, "total": len(agents)})
}

// GetAgent returns one agent including its full descriptor text.
// GET /api/v1/agents/:name
func (h *Handler) GetAgent(c *gin.Context) {
	agent, err := h.core.Registry.Get(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// PingAgent checks whether an agent is reachable. Inference-backed agents
// get a health probe, humans are always present, file-drop agents count as
// alive when their state log was touched within the last day.
// POST /api/v1/agents/:name/ping
func (h *Handler) PingAgent(c *gin.Context) {
	name := c.Param("name")
	agent, err := h.core.Registry.Get(name)
	if err != nil {
		respondError(c, err)
		return
	}

	alive := false
	switch agent.BridgeType {
	case v1.BridgeTypeOllama:
		alive = h.core.Bridges.Ollama().Health(c.Request.Context())
	case v1.BridgeTypeHuman:
		alive = true
	default:
		if info, err := os.Stat(h.core.Registry.StateLogPath(name)); err == nil {
			alive = time.Since(info.ModTime()) < registry.StateLogFreshness
		}
	}

	status := "online"
	newStatus := v1.AgentStatusIdle
	if !alive {
		status = "offline"
		newStatus = v1.AgentStatusOffline
	}
	if err := h.core.Registry.UpdateStatus(name, newStatus, ""); err != nil {
		respondError(c, err)
		return
	}
	h.core.Audit.Write(audit.ActionPing, name, "", status, "")

	c.JSON(http.StatusOK, gin.H{"agent": name, "alive": alive, "status": status})
}

// RefreshAgents forces a registry rescan.
// POST /api/v1/agents/refresh
func (h *Handler) RefreshAgents(c *gin.Context) {
	h.core.Registry.Scan()
	agents := h.core.Registry.List()
	for _, a := range agents {
		a.Descriptor = ""
	}

	metrics.AgentsRegistered.Set(float64(len(agents)))
	h.core.Audit.Write(audit.ActionAgentsRefresh, "", "", "",
		fmt.Sprintf("Found %d agents", len(agents)))
	c.JSON(http.StatusOK, gin.H{"agents": agents, "total": len(agents)})
}
