// Package boot collects startup diagnostics and renders the status banner.
// None of the probes is load-bearing: a failing probe degrades the banner
// but never aborts startup.
package boot

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/foremanhq/foreman/internal/bridge"
	"github.com/foremanhq/foreman/internal/common/config"
	"github.com/foremanhq/foreman/internal/common/logger"
	"github.com/foremanhq/foreman/internal/registry"
	"github.com/foremanhq/foreman/internal/task"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// SupervisorAgent is the agent whose state log carries the system checkpoint.
const SupervisorAgent = "SHAD"

const probeTimeout = 2 * time.Second

// Diagnostics is the result of the startup probes.
type Diagnostics struct {
	OllamaOnline   bool
	Models         []string
	AgentCount     int
	LastCheckpoint string
	PendingTasks   int
	DiskFreeMB     uint64
	PortBound      bool
}

// Run executes every probe and never returns an error.
func Run(ctx context.Context, cfg *config.Config, ollama *bridge.Ollama, log *logger.Logger) *Diagnostics {
	if log == nil {
		log = logger.Default()
	}
	d := &Diagnostics{}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	d.OllamaOnline = ollama.Health(probeCtx)
	if d.OllamaOnline {
		if models, err := ollama.ListModels(probeCtx); err == nil {
			d.Models = models
		}
	}

	d.AgentCount = countAgents(cfg.Paths.AgentsDir)
	d.LastCheckpoint = lastCheckpoint(filepath.Join(cfg.Paths.AgentsDir, SupervisorAgent, registry.StateLogFile))
	d.PendingTasks = countPending(cfg.Paths.TasksFile(), log)
	d.DiskFreeMB = diskFreeMB(cfg.Paths.StateDir)
	d.PortBound = portBound(cfg.Server.Host, cfg.Server.Port)

	return d
}

// countAgents walks the agents directory for folders carrying a descriptor.
func countAgents(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, entry.Name(), registry.DescriptorFile)); err == nil {
			count++
		}
	}
	return count
}

// lastCheckpoint returns the final non-empty line of the supervisor's state log.
func lastCheckpoint(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func countPending(tasksFile string, log *logger.Logger) int {
	store := task.NewStore(tasksFile, log)
	tasks, err := store.Load()
	if err != nil {
		return 0
	}
	count := 0
	for _, t := range tasks {
		if t.Status == v1.TaskStatusPending {
			count++
		}
	}
	return count
}

func diskFreeMB(dir string) uint64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0
	}
	return stat.Bavail * uint64(stat.Bsize) / (1024 * 1024)
}

// portBound reports whether something already listens on the HTTP port.
func portBound(host string, port int) bool {
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", host, port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
