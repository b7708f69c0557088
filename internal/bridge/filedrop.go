package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	apperrors "github.com/foremanhq/foreman/internal/common/errors"
	"github.com/foremanhq/foreman/internal/common/logger"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// TaskFileName returns the inbox filename for a task drop.
func TaskFileName(taskID, tag string) string {
	return fmt.Sprintf("TASK_%s_FOR_%s.md", taskID, tag)
}

// ResultFileName returns the inbox filename a worker answers with.
func ResultFileName(taskID, tag string) string {
	return fmt.Sprintf("RESULT_%s_FROM_%s.md", taskID, tag)
}

// FileDrop is the asynchronous bridge for CLI-based workers: Execute writes
// a task file into the shared inbox and the worker answers with a result
// file picked up by the inbox watcher.
type FileDrop struct {
	name  string // bridge key, e.g. "claude"
	tag   string // filename tag, e.g. "CLAUDE"
	agent string // registry agent name, e.g. "CLAUDE_LUSTRO"
	inbox string
	log   *logger.Logger
}

// NewClaude creates the file-drop bridge for the claude worker.
func NewClaude(inbox string, log *logger.Logger) *FileDrop {
	return newFileDrop("claude", "CLAUDE", "CLAUDE_LUSTRO", inbox, log)
}

// NewGemini creates the file-drop bridge for the gemini worker.
func NewGemini(inbox string, log *logger.Logger) *FileDrop {
	return newFileDrop("gemini", "GEMINI", "GEMINI_ARCHITECT", inbox, log)
}

func newFileDrop(name, tag, agent, inbox string, log *logger.Logger) *FileDrop {
	if log == nil {
		log = logger.Default()
	}
	return &FileDrop{name: name, tag: tag, agent: agent, inbox: inbox, log: log}
}

// Name implements Bridge.
func (f *FileDrop) Name() string { return f.name }

// Execute writes the task file and returns immediately; the result arrives
// through the inbox watcher.
func (f *FileDrop) Execute(_ context.Context, task *v1.Task, _ Options) (*Result, error) {
	if err := os.MkdirAll(f.inbox, 0755); err != nil {
		return nil, apperrors.BridgeUnavailable(f.name, err)
	}

	resultName := ResultFileName(task.ID, f.tag)
	content := fmt.Sprintf(`# TASK %s
## DLA: %s
## OD: FOREMAN
## PRIORYTET: %s
## OPIS: %s
## KONTEKST: %s
## KRYTERIA AKCEPTACJI: Task completed and result written to INBOX/%s
`,
		task.ID,
		f.agent,
		strings.ToUpper(string(task.Priority)),
		task.Title,
		task.Description,
		resultName)

	path := filepath.Join(f.inbox, TaskFileName(task.ID, f.tag))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, apperrors.BridgeUnavailable(f.name, err)
	}

	f.log.Info("wrote task file",
		zap.String("task_id", task.ID),
		zap.String("file", path))

	return &Result{
		Success: true,
		Mode:    ModeAsyncFile,
		File:    path,
		Message: fmt.Sprintf("Task written to inbox. Waiting for %s", resultName),
	}, nil
}

// CheckResult reports the worker's answer if the result file exists.
func (f *FileDrop) CheckResult(task *v1.Task) (*Result, error) {
	path := filepath.Join(f.inbox, ResultFileName(task.ID, f.tag))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.BridgeUnavailable(f.name, err)
	}
	return &Result{Success: true, Response: sanitizeUTF8(string(data))}, nil
}

// sanitizeUTF8 replaces invalid byte sequences so results always decode.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}
