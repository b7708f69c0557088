// Package audit implements the append-only operations log, rotated daily.
// Lines use a fixed-width layout so the files stay grep- and eyeball-friendly.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/common/logger"
)

// Action names recorded by the orchestrator.
const (
	ActionStartup        = "startup"
	ActionShutdown       = "shutdown"
	ActionTaskCreate     = "task_create"
	ActionTaskUpdate     = "task_update"
	ActionTaskDelete     = "task_delete"
	ActionDispatch       = "dispatch"
	ActionDispatchedFile = "dispatched_file"
	ActionComplete       = "complete"
	ActionAutoComplete   = "auto_complete"
	ActionPing           = "ping"
	ActionAgentsRefresh  = "agents_refresh"
	ActionStateChange    = "state_change"
	ActionInboxFile      = "inbox_file"
	ActionCancel         = "cancel"
	ActionRetry          = "retry"
)

// Log appends operation records to one file per day under the logs directory.
type Log struct {
	mu  sync.Mutex
	dir string
	log *logger.Logger
	now func() time.Time
}

// New creates an audit log writing under dir.
func New(dir string, log *logger.Logger) *Log {
	if log == nil {
		log = logger.Default()
	}
	return &Log{dir: dir, log: log, now: time.Now}
}

// Write appends one entry to today's file. Empty agent, task id and status
// fall back to placeholder values so columns stay aligned.
func (l *Log) Write(action, agent, taskID, status, details string) {
	if agent == "" {
		agent = "-"
	}
	if taskID == "" {
		taskID = "-"
	}
	if status == "" {
		status = "ok"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	line := fmt.Sprintf("%s | %-20s | %-20s | %-14s | %-8s | %s\n",
		now.Format("2006-01-02 15:04:05"), action, agent, taskID, status, details)

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		l.log.Warn("audit dir not writable", zap.String("dir", l.dir), zap.Error(err))
		return
	}

	path := filepath.Join(l.dir, now.Format("2006-01-02")+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.log.Warn("audit write failed", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		l.log.Warn("audit write failed", zap.String("path", path), zap.Error(err))
	}
}

// ReadToday returns up to limit entries from today's file, oldest first.
func (l *Log) ReadToday(limit int) []string {
	path := filepath.Join(l.dir, l.now().Format("2006-01-02")+".log")
	lines := readLines(path)
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

// ReadRecent returns the most recent entries across all daily files, oldest
// first within the returned window.
func (l *Log) ReadRecent(limit int) []string {
	files, err := filepath.Glob(filepath.Join(l.dir, "*.log"))
	if err != nil || len(files) == 0 {
		return nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	var collected []string
	for _, file := range files {
		lines := readLines(file)
		// newest files first; prepend so the result stays chronological
		collected = append(lines, collected...)
		if limit > 0 && len(collected) >= limit {
			break
		}
	}
	if limit > 0 && len(collected) > limit {
		collected = collected[len(collected)-limit:]
	}
	return collected
}

func readLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
