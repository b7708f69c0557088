package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/common/config"
	apperrors "github.com/foremanhq/foreman/internal/common/errors"
	"github.com/foremanhq/foreman/internal/common/logger"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// Codex invokes an external helper script that eventually drops a
// CODEX_RESULT_*.md file into the inbox.
type Codex struct {
	script  string
	repo    string
	timeout time.Duration
	log     *logger.Logger
}

// NewCodex creates the bridge from configuration.
func NewCodex(cfg config.CodexConfig, log *logger.Logger) *Codex {
	if log == nil {
		log = logger.Default()
	}
	return &Codex{
		script:  cfg.Script,
		repo:    cfg.Repo,
		timeout: cfg.TimeoutDuration(),
		log:     log,
	}
}

// Name implements Bridge.
func (c *Codex) Name() string { return "codex" }

// Execute runs the helper script with (prompt, repo root). Exit 0 means the
// task was launched; the result file arrives asynchronously.
func (c *Codex) Execute(ctx context.Context, task *v1.Task, _ Options) (*Result, error) {
	if c.script == "" {
		return nil, apperrors.BridgeUnavailable("codex", errors.New("codex script not configured"))
	}
	if _, err := os.Stat(c.script); err != nil {
		return nil, apperrors.BridgeUnavailable("codex", fmt.Errorf("codex script not found at %s", c.script))
	}

	prompt := fmt.Sprintf("%s: %s", task.Title, task.Description)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.script, prompt, c.repo)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.log.Info("launching codex",
		zap.String("task_id", task.ID),
		zap.String("script", c.script))

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, apperrors.BridgeTimeout("codex")
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// the launch itself failed, so no result file is coming
			return &Result{Success: false, Mode: ModeSync, Error: stderr.String()}, nil
		}
		return nil, apperrors.BridgeUnavailable("codex", err)
	}

	return &Result{
		Success:  true,
		Mode:     ModeAsyncFile,
		Message:  "Codex task launched. Result will appear in the inbox as CODEX_RESULT_*.md",
		Response: stdout.String(),
	}, nil
}

// CheckResult implements Bridge; codex results are named by timestamp, not
// task id, so pickup happens in the inbox watcher instead.
func (c *Codex) CheckResult(_ *v1.Task) (*Result, error) {
	return nil, nil
}
