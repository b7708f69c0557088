// Package dispatch classifies tasks by content and decides which agent and
// bridge should carry them.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/bridge"
	"github.com/foremanhq/foreman/internal/common/logger"
	"github.com/foremanhq/foreman/internal/registry"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// Overrides are per-call replacements for parts of the routing decision.
type Overrides struct {
	Agent  string
	Bridge string
	Model  string
}

// Dispatcher produces routing decisions. The registry is optional: without
// one the decision reflects the static table alone; with one, agent
// availability is checked and a busy primary falls back to the universal
// ollama worker.
type Dispatcher struct {
	registry *registry.Registry
	ollama   *bridge.Ollama
	log      *logger.Logger
}

// New creates a dispatcher. registry and ollama may be nil.
func New(reg *registry.Registry, ollama *bridge.Ollama, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{registry: reg, ollama: ollama, log: log}
}

// Classify runs the keyword classifier and returns the type with confidence.
func (d *Dispatcher) Classify(task *v1.Task) (string, float64) {
	taskType, matches := Classify(task.Title, task.Description)
	return taskType, Confidence(matches)
}

// Decide classifies the task and resolves it against the routing table and
// the live registry. The optional LLM second opinion only runs when the
// keyword classifier fell back with zero matches.
func (d *Dispatcher) Decide(ctx context.Context, task *v1.Task, ov Overrides) *v1.RoutingDecision {
	taskType, matches := Classify(task.Title, task.Description)
	confidence := Confidence(matches)
	if taskType == FallbackType && matches == 0 {
		taskType = classifyWithSecondOpinion(ctx, d.ollama, d.log, task.Title, task.Description)
	}

	rule := Route(taskType)
	decision := &v1.RoutingDecision{
		TaskType:     taskType,
		Agent:        rule.Agent,
		Bridge:       rule.Bridge,
		Confidence:   confidence,
		Model:        rule.Model,
		Temperature:  rule.Temperature,
		SystemPrompt: rule.SystemPrompt,
	}

	explicitAgent := ov.Agent != ""
	if ov.Agent != "" {
		decision.Agent = ov.Agent
	}
	if ov.Bridge != "" {
		decision.Bridge = ov.Bridge
	}
	if ov.Model != "" {
		decision.Model = ov.Model
	}

	if d.registry != nil && !explicitAgent {
		d.applyAvailability(decision)
	}

	d.log.Info("routing decision",
		zap.String("task_id", task.ID),
		zap.String("task_type", decision.TaskType),
		zap.String("agent", decision.Agent),
		zap.String("bridge", decision.Bridge),
		zap.Bool("fallback", decision.Fallback),
		zap.Bool("busy", decision.Busy))

	return decision
}

// applyAvailability swaps a busy or offline primary for the fallback worker,
// or flags the decision busy when even the fallback cannot take the task.
func (d *Dispatcher) applyAvailability(decision *v1.RoutingDecision) {
	if available(d.registry, decision.Agent) {
		return
	}
	if decision.Agent != FallbackAgent && available(d.registry, FallbackAgent) {
		decision.Agent = FallbackAgent
		decision.Bridge = "ollama"
		decision.Fallback = true
		return
	}
	decision.Busy = true
}

func available(reg *registry.Registry, name string) bool {
	agent, err := reg.Get(name)
	if err != nil {
		return false
	}
	if agent.Status == v1.AgentStatusOffline || agent.BridgeType == v1.BridgeTypeHuman {
		return false
	}
	return agent.CurrentTask == nil
}
