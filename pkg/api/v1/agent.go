package v1

import "time"

// AgentStatus represents the liveness status of a registered agent.
type AgentStatus string

const (
	AgentStatusActive  AgentStatus = "active"
	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusOffline AgentStatus = "offline"
)

// BridgeType identifies the transport that carries a task to an agent.
type BridgeType string

const (
	BridgeTypeOllama BridgeType = "ollama"
	BridgeTypeClaude BridgeType = "claude"
	BridgeTypeCodex  BridgeType = "codex"
	BridgeTypeGemini BridgeType = "gemini"
	BridgeTypeHuman  BridgeType = "human"
	BridgeTypeFile   BridgeType = "file"
)

// Agent represents a worker discovered by the registry scan.
type Agent struct {
	Name         string      `json:"name"`
	Role         string      `json:"role"`
	Status       AgentStatus `json:"status"`
	Capabilities []string    `json:"capabilities"`
	BridgeType   BridgeType  `json:"bridge_type"`
	LastSeen     *time.Time  `json:"last_seen"`
	CurrentTask  *string     `json:"current_task"`
	Descriptor   string      `json:"descriptor,omitempty"`
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	c := *a
	if a.LastSeen != nil {
		v := *a.LastSeen
		c.LastSeen = &v
	}
	if a.CurrentTask != nil {
		v := *a.CurrentTask
		c.CurrentTask = &v
	}
	if a.Capabilities != nil {
		c.Capabilities = append([]string(nil), a.Capabilities...)
	}
	return &c
}
