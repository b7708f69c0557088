package bridge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foremanhq/foreman/internal/common/config"
	apperrors "github.com/foremanhq/foreman/internal/common/errors"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codex_task.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestCodexExecuteSuccess(t *testing.T) {
	script := writeScript(t, `echo "launched $1 in $2"`)
	c := NewCodex(config.CodexConfig{Script: script, Repo: "/repo", Timeout: 30}, nil)

	res, err := c.Execute(context.Background(), testTask(), Options{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, ModeAsyncFile, res.Mode)
	assert.Contains(t, res.Response, "write a fibonacci function: in go")
	assert.Contains(t, res.Response, "/repo")
}

func TestCodexExecuteFailure(t *testing.T) {
	script := writeScript(t, "echo \"boom\" >&2\nexit 3")
	c := NewCodex(config.CodexConfig{Script: script, Repo: ".", Timeout: 30}, nil)

	res, err := c.Execute(context.Background(), testTask(), Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	// a failed launch must resolve synchronously, no result file will arrive
	assert.Equal(t, ModeSync, res.Mode)
	assert.Contains(t, res.Error, "boom")
}

func TestCodexExecuteTimeout(t *testing.T) {
	script := writeScript(t, "sleep 5")
	c := NewCodex(config.CodexConfig{Script: script, Repo: ".", Timeout: 1}, nil)

	_, err := c.Execute(context.Background(), testTask(), Options{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBridgeTimeout))
}

func TestCodexScriptMissing(t *testing.T) {
	c := NewCodex(config.CodexConfig{Script: "/nonexistent/codex.sh", Repo: ".", Timeout: 30}, nil)
	_, err := c.Execute(context.Background(), testTask(), Options{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBridgeUnavailable))

	unconfigured := NewCodex(config.CodexConfig{Timeout: 30}, nil)
	_, err = unconfigured.Execute(context.Background(), testTask(), Options{})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBridgeUnavailable))
}

func TestCodexCheckResultAlwaysNil(t *testing.T) {
	c := NewCodex(config.CodexConfig{Timeout: 30}, nil)
	res, err := c.CheckResult(testTask())
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestSetLookup(t *testing.T) {
	cfg := &config.Config{
		Paths:  config.PathsConfig{InboxDir: t.TempDir()},
		Ollama: config.OllamaConfig{URL: "http://localhost:11434", Timeout: 5, DefaultModel: "m"},
		Codex:  config.CodexConfig{Timeout: 30},
	}
	s := NewSet(cfg, nil)

	assert.Equal(t, []string{"claude", "codex", "gemini", "ollama"}, s.Names())
	for _, name := range s.Names() {
		b, err := s.Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, b.Name())
	}

	_, err := s.Get("smoke-signal")
	assert.Error(t, err)
	assert.NotNil(t, s.Ollama())
}
