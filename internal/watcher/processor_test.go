package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foremanhq/foreman/internal/audit"
	"github.com/foremanhq/foreman/internal/registry"
	"github.com/foremanhq/foreman/internal/task"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

type procFixture struct {
	proc     *Processor
	tasks    *task.Manager
	registry *registry.Registry
	inbox    string
	agents   string
}

func newProcFixture(t *testing.T) *procFixture {
	t.Helper()
	root := t.TempDir()

	inbox := filepath.Join(root, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0755))

	agents := filepath.Join(root, "agents")
	writeAgentDir(t, agents, "CLAUDE_LUSTRO", "# CLAUDE_LUSTRO\n## The Mirror\nRefactoring and code review.\n")
	writeAgentDir(t, agents, "CODEX", "# CODEX\n## The Builder\nFeature implementation.\n")

	store := task.NewStore(filepath.Join(root, "tasks.json"), nil)
	mgr, err := task.NewManager(store, nil)
	require.NoError(t, err)

	reg := registry.New(agents, nil)
	reg.Scan()

	auditLog := audit.New(filepath.Join(root, "audit"), nil)

	proc := NewProcessor(mgr, reg, auditLog, nil, inbox, nil)
	return &procFixture{proc: proc, tasks: mgr, registry: reg, inbox: inbox, agents: agents}
}

func writeAgentDir(t *testing.T, agentsDir, name, descriptor string) {
	t.Helper()
	dir := filepath.Join(agentsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, registry.DescriptorFile), []byte(descriptor), 0644))
}

func (f *procFixture) runningTask(t *testing.T, agent string) *v1.Task {
	t.Helper()
	created, err := f.tasks.Create("Refactor auth module", "split the login handler", v1.TaskPriorityHigh)
	require.NoError(t, err)
	_, err = f.tasks.Assign(created.ID, agent)
	require.NoError(t, err)
	_, err = f.tasks.UpdateStatus(created.ID, v1.TaskStatusRunning)
	require.NoError(t, err)
	return created
}

func (f *procFixture) dropFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.inbox, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestResultPickupCompletesRunningTask(t *testing.T) {
	f := newProcFixture(t)
	created := f.runningTask(t, "CLAUDE_LUSTRO")

	// a task file written at dispatch time, archived together with the result
	taskFile := f.dropFile(t, "TASK_"+created.ID+"_FOR_CLAUDE.md", "# ZADANIE\n")
	resultFile := f.dropFile(t, "RESULT_"+created.ID+"_FROM_CLAUDE.md", "All done.\n")

	f.proc.HandleInboxFile(resultFile)

	got, err := f.tasks.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusDone, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "All done.\n", *got.Result)

	agent, err := f.registry.Get("CLAUDE_LUSTRO")
	require.NoError(t, err)
	assert.Equal(t, v1.AgentStatusIdle, agent.Status)
	assert.Nil(t, agent.CurrentTask)

	doneDir := filepath.Join(f.inbox, DoneDir)
	assert.FileExists(t, filepath.Join(doneDir, filepath.Base(taskFile)))
	assert.FileExists(t, filepath.Join(doneDir, filepath.Base(resultFile)))
	assert.NoFileExists(t, resultFile)
}

func TestResultPickupUsesAssignedAgentName(t *testing.T) {
	f := newProcFixture(t)
	created := f.runningTask(t, "CLAUDE_LUSTRO")

	// filename carries the short tag, the registry knows the full name
	resultFile := f.dropFile(t, "RESULT_"+created.ID+"_FROM_CLAUDE.md", "ok")
	f.proc.HandleInboxFile(resultFile)

	agent, err := f.registry.Get("CLAUDE_LUSTRO")
	require.NoError(t, err)
	assert.Equal(t, v1.AgentStatusIdle, agent.Status)
}

func TestLateResultAfterCancelIsIgnored(t *testing.T) {
	f := newProcFixture(t)
	created := f.runningTask(t, "CLAUDE_LUSTRO")

	_, _, err := f.tasks.Cancel(created.ID)
	require.NoError(t, err)

	resultFile := f.dropFile(t, "RESULT_"+created.ID+"_FROM_CLAUDE.md", "too late")
	f.proc.HandleInboxFile(resultFile)

	got, err := f.tasks.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusFailed, got.Status)
	assert.Nil(t, got.Result)
	require.NotNil(t, got.Error)
	assert.Equal(t, task.CancelledByUser, *got.Error)

	// the file is left in place, not archived
	assert.FileExists(t, resultFile)
}

func TestResultForUnknownTaskIsIgnored(t *testing.T) {
	f := newProcFixture(t)
	resultFile := f.dropFile(t, "RESULT_deadbeef0000_FROM_CLAUDE.md", "orphan")

	f.proc.HandleInboxFile(resultFile)

	assert.FileExists(t, resultFile)
}

func TestCodexResultCompletesFirstRunningCodexTask(t *testing.T) {
	f := newProcFixture(t)
	created := f.runningTask(t, "CODEX")

	resultFile := f.dropFile(t, "CODEX_RESULT_20260826_120000.md", "Implemented the endpoint.")
	f.proc.HandleInboxFile(resultFile)

	got, err := f.tasks.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusDone, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "Implemented the endpoint.", *got.Result)

	assert.FileExists(t, filepath.Join(f.inbox, DoneDir, filepath.Base(resultFile)))
	assert.NoFileExists(t, resultFile)
}

func TestCodexResultWithNoRunningCodexTask(t *testing.T) {
	f := newProcFixture(t)
	// a running task for a different agent must not pick up the codex drop
	other := f.runningTask(t, "CLAUDE_LUSTRO")

	resultFile := f.dropFile(t, "CODEX_RESULT_20260826_120000.md", "stray")
	f.proc.HandleInboxFile(resultFile)

	got, err := f.tasks.Get(other.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusRunning, got.Status)
	assert.FileExists(t, resultFile)
}

func TestNonResultInboxFileIsLeftAlone(t *testing.T) {
	f := newProcFixture(t)
	path := f.dropFile(t, "NOTES.md", "scratch")

	f.proc.HandleInboxFile(path)

	assert.FileExists(t, path)
}

func TestStateChangeTriggersRescan(t *testing.T) {
	f := newProcFixture(t)

	writeAgentDir(t, f.agents, "GEMINI_ARCHITECT", "# GEMINI_ARCHITECT\n## The Architect\nSystem design.\n")
	statePath := f.registry.StateLogPath("GEMINI_ARCHITECT")
	require.NoError(t, os.WriteFile(statePath, []byte("checkpoint\n"), 0644))

	f.proc.HandleStateChange(statePath)

	agent, err := f.registry.Get("GEMINI_ARCHITECT")
	require.NoError(t, err)
	assert.NotNil(t, agent.LastSeen)
}

func TestArchiveSurvivesMissingFiles(t *testing.T) {
	f := newProcFixture(t)

	// nothing to move, including a vanished extra file
	f.proc.Archive("abc123def456", filepath.Join(f.inbox, "CODEX_RESULT_20260101_000000.md"))

	assert.DirExists(t, filepath.Join(f.inbox, DoneDir))
}
