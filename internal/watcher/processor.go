package watcher

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/audit"
	"github.com/foremanhq/foreman/internal/common/logger"
	"github.com/foremanhq/foreman/internal/feed"
	"github.com/foremanhq/foreman/internal/registry"
	"github.com/foremanhq/foreman/internal/task"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

var (
	resultPattern = regexp.MustCompile(`^RESULT_([a-f0-9]+)_FROM_(\w+)\.md$`)
	codexPattern  = regexp.MustCompile(`^CODEX_RESULT_(\d{8}_\d{6})\.md$`)
)

// DoneDir is the archive subdirectory of the inbox.
const DoneDir = "DONE"

// Processor is the single consumer of watcher events. All task mutations and
// feed broadcasts happen here, never on the filesystem notification path.
type Processor struct {
	tasks    *task.Manager
	registry *registry.Registry
	audit    *audit.Log
	hub      *feed.Hub
	inboxDir string
	log      *logger.Logger
}

// NewProcessor wires the consumer to the rest of the system.
func NewProcessor(tasks *task.Manager, reg *registry.Registry, auditLog *audit.Log, hub *feed.Hub, inboxDir string, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Default()
	}
	return &Processor{
		tasks:    tasks,
		registry: reg,
		audit:    auditLog,
		hub:      hub,
		inboxDir: inboxDir,
		log:      log,
	}
}

// Run consumes events until the channel closes.
func (p *Processor) Run(events <-chan Event) {
	for ev := range events {
		switch ev.Kind {
		case InboxFile:
			p.HandleInboxFile(ev.Path)
		case StateChange:
			p.HandleStateChange(ev.Path)
		}
	}
}

// HandleInboxFile inspects a new inbox file and completes the matching task
// when it is a result drop. Files for tasks that are no longer running are
// left alone; a late result for a cancelled task must not resurrect it.
func (p *Processor) HandleInboxFile(path string) {
	name := filepath.Base(path)
	p.log.Info("inbox file detected", zap.String("file", name))
	p.audit.Write(audit.ActionInboxFile, "", "", "", name)

	if m := resultPattern.FindStringSubmatch(name); m != nil {
		p.pickupResult(path, m[1], strings.ToUpper(m[2]))
		return
	}
	if codexPattern.MatchString(name) {
		p.pickupCodexResult(path)
	}
}

// HandleStateChange re-scans the agents directory after a state-log write.
func (p *Processor) HandleStateChange(path string) {
	agentName := filepath.Base(filepath.Dir(path))
	p.log.Info("agent state changed", zap.String("agent", agentName))
	p.registry.Scan()
	p.audit.Write(audit.ActionStateChange, agentName, "", "", "")
}

func (p *Processor) pickupResult(path, taskID, agentTag string) {
	t, err := p.tasks.Get(taskID)
	if err != nil {
		p.log.Debug("result for unknown task", zap.String("task_id", taskID))
		return
	}
	if t.Status != v1.TaskStatusRunning {
		p.log.Info("ignoring late result",
			zap.String("task_id", taskID),
			zap.String("status", string(t.Status)))
		return
	}

	agentName := agentTag
	if t.AssignedTo != nil {
		agentName = *t.AssignedTo
	}
	p.complete(path, t.ID, agentName, "Picked up from inbox", nil)
}

func (p *Processor) pickupCodexResult(path string) {
	// Codex results carry a timestamp, not a task id: complete the first
	// running codex task. Concurrent codex tasks are order-dependent here.
	for _, t := range p.tasks.List(v1.TaskStatusRunning, "", "") {
		if t.AssignedTo != nil && *t.AssignedTo == "CODEX" {
			p.complete(path, t.ID, "CODEX", "Codex result picked up", []string{path})
			return
		}
	}
	p.log.Info("codex result with no running codex task", zap.String("file", path))
}

func (p *Processor) complete(path, taskID, agentName, details string, extraFiles []string) {
	data, err := os.ReadFile(path)
	if err != nil {
		p.log.Error("failed to read result file", zap.String("file", path), zap.Error(err))
		return
	}
	content := strings.ToValidUTF8(string(data), "�")

	if _, err := p.tasks.Complete(taskID, content); err != nil {
		p.log.Error("failed to complete task", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	if err := p.registry.UpdateStatus(agentName, v1.AgentStatusIdle, ""); err != nil {
		p.log.Debug("agent not in registry", zap.String("agent", agentName))
	}
	p.audit.Write(audit.ActionAutoComplete, agentName, taskID, "done", details)
	p.log.Info("auto-completed task",
		zap.String("task_id", taskID),
		zap.String("agent", agentName))

	p.Archive(taskID, extraFiles...)

	if p.hub != nil {
		p.hub.Broadcast(feed.EventTaskComplete, map[string]any{
			"task_id": taskID,
			"agent":   agentName,
			"status":  "done",
		})
	}
}

// Archive moves the TASK and RESULT files of a completed task into the
// inbox's DONE subdirectory, along with any extra files named explicitly
// (codex drops carry no task id). Failures are logged and do not fail
// completion.
func (p *Processor) Archive(taskID string, extra ...string) {
	doneDir := filepath.Join(p.inboxDir, DoneDir)
	if err := os.MkdirAll(doneDir, 0755); err != nil {
		p.log.Warn("cannot create archive dir", zap.Error(err))
		return
	}

	patterns := []string{
		"TASK_" + taskID + "_FOR_*.md",
		"RESULT_" + taskID + "_FROM_*.md",
	}
	files := make([]string, 0, 4)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(p.inboxDir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	files = append(files, extra...)

	for _, src := range files {
		dest := filepath.Join(doneDir, filepath.Base(src))
		if err := os.Rename(src, dest); err != nil {
			p.log.Warn("failed to archive file",
				zap.String("file", filepath.Base(src)), zap.Error(err))
			continue
		}
		p.log.Info("archived file", zap.String("file", filepath.Base(src)))
	}
}
