package bridge

import (
	"sort"

	"github.com/foremanhq/foreman/internal/common/config"
	apperrors "github.com/foremanhq/foreman/internal/common/errors"
	"github.com/foremanhq/foreman/internal/common/logger"
)

// Set is the bridge lookup used by dispatch and poll.
type Set struct {
	bridges map[string]Bridge
	ollama  *Ollama
}

// NewSet builds the four standard bridges from configuration.
func NewSet(cfg *config.Config, log *logger.Logger) *Set {
	ollama := NewOllama(cfg.Ollama, log)
	s := &Set{
		bridges: map[string]Bridge{},
		ollama:  ollama,
	}
	s.Register(ollama)
	s.Register(NewClaude(cfg.Paths.InboxDir, log))
	s.Register(NewGemini(cfg.Paths.InboxDir, log))
	s.Register(NewCodex(cfg.Codex, log))
	return s
}

// Register adds a bridge under its name.
func (s *Set) Register(b Bridge) {
	s.bridges[b.Name()] = b
}

// Get returns the named bridge or a Validation error.
func (s *Set) Get(name string) (Bridge, error) {
	b, ok := s.bridges[name]
	if !ok {
		return nil, apperrors.Validation("unknown bridge: " + name)
	}
	return b, nil
}

// Ollama returns the inference bridge for callers that need raw Generate
// access (classifier second opinion, debate engine).
func (s *Set) Ollama() *Ollama {
	return s.ollama
}

// Names returns the registered bridge names sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.bridges))
	for name := range s.bridges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
