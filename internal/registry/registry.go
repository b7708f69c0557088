// Package registry maintains a live, directory-backed map of worker agents.
// Each immediate subdirectory of the agents directory that contains a
// descriptor file is an agent; capabilities are derived from the descriptor
// text and liveness is tracked externally by dispatch and completion.
package registry

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/foremanhq/foreman/internal/common/errors"
	"github.com/foremanhq/foreman/internal/common/logger"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

const (
	// DescriptorFile marks a subdirectory as an agent and describes it.
	DescriptorFile = "WHO_AM_I.md"
	// StateLogFile is the optional per-agent activity log; its mtime is the
	// agent's last_seen.
	StateLogFile = "STATE.log"

	// StateLogFreshness is how recent a state-log write must be for a
	// file-drop agent to count as alive on ping.
	StateLogFreshness = 24 * time.Hour
)

// capabilityPatterns maps capability tags to descriptor keywords.
// Order is fixed so derived capability lists are deterministic.
var capabilityPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"code", regexp.MustCompile(`(?i)\b(code|program|implement|build|engineer|daemon|interpreter)\b`)},
	{"review", regexp.MustCompile(`(?i)\b(review|audit|security|quality)\b`)},
	{"architecture", regexp.MustCompile(`(?i)\b(architect|structure|design|system)\b`)},
	{"docs", regexp.MustCompile(`(?i)\b(doc|documentation|write|manifest)\b`)},
	{"test", regexp.MustCompile(`(?i)\b(test|coverage|qa)\b`)},
	{"reasoning", regexp.MustCompile(`(?i)\b(reason|think|analy|logic)\b`)},
}

// bridgeMap assigns a transport to well-known agent names; everything else
// defaults to ollama.
var bridgeMap = map[string]v1.BridgeType{
	"CLAUDE_LUSTRO":    v1.BridgeTypeClaude,
	"GEMINI_ARCHITECT": v1.BridgeTypeGemini,
	"CODEX":            v1.BridgeTypeCodex,
	"SHAD":             v1.BridgeTypeHuman,
}

var roleKeywords = []string{"the ", "architect", "engineer", "builder", "source", "mirror"}

// Registry owns the agent map. Scans rebuild the map from the filesystem but
// preserve status and current task for agents that are still present.
type Registry struct {
	mu     sync.RWMutex
	dir    string
	agents map[string]*v1.Agent
	log    *logger.Logger
}

// New creates a registry over the given agents directory and performs an
// initial scan.
func New(dir string, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Default()
	}
	r := &Registry{
		dir:    dir,
		agents: make(map[string]*v1.Agent),
		log:    log,
	}
	r.Scan()
	return r
}

// Dir returns the scanned agents directory.
func (r *Registry) Dir() string {
	return r.dir
}

// StateLogPath returns the path of the agent's state log.
func (r *Registry) StateLogPath(name string) string {
	return filepath.Join(r.dir, name, StateLogFile)
}

// Scan rebuilds the agent map from the agents directory. Status and current
// task of still-present agents survive the rescan; liveness is external
// knowledge, not re-derived from the filesystem.
func (r *Registry) Scan() map[string]*v1.Agent {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.log.Warn("agents dir not readable", zap.String("dir", r.dir), zap.Error(err))
		entries = nil
	}

	scanned := make(map[string]*v1.Agent)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		folder := filepath.Join(r.dir, name)

		data, err := os.ReadFile(filepath.Join(folder, DescriptorFile))
		if err != nil {
			continue
		}
		text := string(data)

		bridge, ok := bridgeMap[name]
		if !ok {
			bridge = v1.BridgeTypeOllama
		}

		agent := &v1.Agent{
			Name:         name,
			Role:         extractRole(text),
			Status:       v1.AgentStatusIdle,
			Capabilities: extractCapabilities(text),
			BridgeType:   bridge,
			Descriptor:   text,
		}
		if info, err := os.Stat(filepath.Join(folder, StateLogFile)); err == nil {
			mtime := info.ModTime()
			agent.LastSeen = &mtime
		}
		scanned[name] = agent
	}

	r.mu.Lock()
	for name, agent := range scanned {
		if prev, ok := r.agents[name]; ok {
			agent.Status = prev.Status
			agent.CurrentTask = prev.CurrentTask
			if agent.LastSeen == nil {
				agent.LastSeen = prev.LastSeen
			}
		} else {
			r.log.Info("registered agent",
				zap.String("agent", name),
				zap.String("role", agent.Role),
				zap.String("bridge", string(agent.BridgeType)))
		}
	}
	r.agents = scanned
	r.mu.Unlock()

	return r.GetAll()
}

// GetAll returns all agents keyed by name.
func (r *Registry) GetAll() map[string]*v1.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*v1.Agent, len(r.agents))
	for name, agent := range r.agents {
		out[name] = agent.Clone()
	}
	return out
}

// List returns all agents sorted by name.
func (r *Registry) List() []*v1.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*v1.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, agent.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the named agent, or NotFound.
func (r *Registry) Get(name string) (*v1.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[name]
	if !ok {
		return nil, apperrors.NotFound("agent", name)
	}
	return agent.Clone(), nil
}

// GetAvailable returns agents that can accept a task right now: not offline,
// not human-typed, not already occupied, and holding the capability if one is
// requested.
func (r *Registry) GetAvailable(capability string) []*v1.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*v1.Agent
	for _, agent := range r.agents {
		if agent.Status == v1.AgentStatusOffline {
			continue
		}
		if agent.BridgeType == v1.BridgeTypeHuman {
			continue
		}
		if agent.CurrentTask != nil {
			continue
		}
		if capability != "" && !hasCapability(agent, capability) {
			continue
		}
		out = append(out, agent.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpdateStatus records a liveness change, typically after dispatch or
// completion. An empty taskID clears the current task.
func (r *Registry) UpdateStatus(name string, status v1.AgentStatus, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[name]
	if !ok {
		return apperrors.NotFound("agent", name)
	}
	agent.Status = status
	if taskID == "" {
		agent.CurrentTask = nil
	} else {
		agent.CurrentTask = &taskID
	}
	now := time.Now()
	agent.LastSeen = &now
	return nil
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func hasCapability(agent *v1.Agent, capability string) bool {
	for _, c := range agent.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// extractRole picks the first heading among the descriptor's opening lines
// that carries a role keyword.
func extractRole(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	for _, line := range lines {
		if !strings.Contains(line, "##") {
			continue
		}
		lower := strings.ToLower(line)
		for _, kw := range roleKeywords {
			if strings.Contains(lower, kw) {
				return strings.TrimSpace(strings.Trim(line, "# "))
			}
		}
	}
	return "agent"
}

// extractCapabilities matches the descriptor text against the capability
// pattern set; agents with no match get the "general" tag.
func extractCapabilities(text string) []string {
	var caps []string
	for _, cp := range capabilityPatterns {
		if cp.pattern.MatchString(text) {
			caps = append(caps, cp.name)
		}
	}
	if len(caps) == 0 {
		caps = []string{"general"}
	}
	return caps
}
