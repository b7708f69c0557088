package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foremanhq/foreman/internal/audit"
	"github.com/foremanhq/foreman/internal/bridge"
	"github.com/foremanhq/foreman/internal/common/config"
	"github.com/foremanhq/foreman/internal/common/logger"
	"github.com/foremanhq/foreman/internal/debate"
	"github.com/foremanhq/foreman/internal/dispatch"
	"github.com/foremanhq/foreman/internal/feed"
	"github.com/foremanhq/foreman/internal/registry"
	"github.com/foremanhq/foreman/internal/task"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

type fixture struct {
	router *gin.Engine
	core   *Core
	inbox  string
	agents string
}

func newFixture(t *testing.T, ollamaURL string, opts ...func(*config.Config)) *fixture {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8800},
		Paths: config.PathsConfig{
			InboxDir:  filepath.Join(root, "inbox"),
			AgentsDir: filepath.Join(root, "agents"),
			StateDir:  root,
			LogsDir:   filepath.Join(root, "logs"),
		},
		Ollama: config.OllamaConfig{URL: ollamaURL, Timeout: 5, DefaultModel: "test-model"},
		Codex:  config.CodexConfig{Timeout: 5},
		Debate: config.DebateConfig{Concurrency: 2},
	}
	require.NoError(t, os.MkdirAll(cfg.Paths.InboxDir, 0755))
	for _, opt := range opts {
		opt(cfg)
	}

	store := task.NewStore(cfg.Paths.TasksFile(), nil)
	mgr, err := task.NewManager(store, nil)
	require.NoError(t, err)

	reg := registry.New(cfg.Paths.AgentsDir, nil)
	bridges := bridge.NewSet(cfg, nil)
	hub := feed.NewHub(nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	core := &Core{
		Config:     cfg,
		Version:    "test",
		Tasks:      mgr,
		Registry:   reg,
		Dispatcher: dispatch.New(reg, bridges.Ollama(), nil),
		Bridges:    bridges,
		Audit:      audit.New(cfg.Paths.LogsDir, nil),
		Hub:        hub,
		Debate:     debate.NewEngine(bridges.Ollama(), cfg.Debate, cfg.Paths.AgentsDir, nil),
		BaseCtx:    ctx,
		StartTime:  time.Now(),
		Log:        logger.Default(),
	}

	return &fixture{
		router: NewRouter(core),
		core:   core,
		inbox:  cfg.Paths.InboxDir,
		agents: cfg.Paths.AgentsDir,
	}
}

func (f *fixture) addAgent(t *testing.T, name, descriptor string) {
	t.Helper()
	dir := filepath.Join(f.agents, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, registry.DescriptorFile), []byte(descriptor), 0644))
	f.core.Registry.Scan()
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func fakeInference(t *testing.T, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]string{{"name": "dolphin-llama3:latest"}},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"response":      response,
			"eval_count":    42,
			"eval_duration": 1000000,
		})
	}))
}

func TestTaskCRUD(t *testing.T) {
	f := newFixture(t, "http://localhost:1")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"title":       "Write docs",
		"description": "document the API",
		"priority":    "high",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[v1.Task](t, w)
	assert.Len(t, created.ID, 12)
	assert.Equal(t, v1.TaskStatusPending, created.Status)

	w = f.do(t, http.MethodGet, "/api/v1/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/tasks?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]v1.Task](t, w)
	assert.Len(t, list, 1)

	w = f.do(t, http.MethodPut, "/api/v1/tasks/"+created.ID, gin.H{"title": "Write better docs"})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[v1.Task](t, w)
	assert.Equal(t, "Write better docs", updated.Title)

	w = f.do(t, http.MethodDelete, "/api/v1/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted": true}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/v1/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	body := decode[map[string]any](t, w)
	assert.Contains(t, body, "detail")
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t, "http://localhost:1")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{"description": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{"title": "x", "priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDispatchSyncPath(t *testing.T) {
	srv := fakeInference(t, "def fib(n): return n if n < 2 else fib(n-1) + fib(n-2)")
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.addAgent(t, "OLLAMA_WORKER", "# OLLAMA_WORKER\n## The Builder\nLocal code generation worker.\n")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"title":       "write a fibonacci function",
		"description": "in python",
		"priority":    "medium",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[v1.Task](t, w)

	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/dispatch", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Routing v1.RoutingDecision `json:"routing"`
		Task    v1.Task            `json:"task"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "code_simple", resp.Routing.TaskType)
	assert.Equal(t, "ollama", resp.Routing.Bridge)
	assert.Equal(t, v1.TaskStatusDone, resp.Task.Status)
	require.NotNil(t, resp.Task.Result)
	assert.Contains(t, *resp.Task.Result, "def fib")
}

func TestDispatchFileDropPath(t *testing.T) {
	f := newFixture(t, "http://localhost:1")
	f.addAgent(t, "CLAUDE_LUSTRO", "# CLAUDE_LUSTRO\n## The Mirror\nDeep refactoring and code review.\n")
	f.addAgent(t, "OLLAMA_WORKER", "# OLLAMA_WORKER\n## The Builder\nworker\n")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"title":       "refactor the auth layer for security",
		"description": "split session handling out of the login flow",
	})
	created := decode[v1.Task](t, w)

	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/dispatch", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Routing v1.RoutingDecision `json:"routing"`
		Task    v1.Task            `json:"task"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "CLAUDE_LUSTRO", resp.Routing.Agent)
	assert.Equal(t, v1.TaskStatusRunning, resp.Task.Status)

	taskFile := filepath.Join(f.inbox, "TASK_"+created.ID+"_FOR_CLAUDE.md")
	assert.FileExists(t, taskFile)

	// the worker is now occupied
	agent, err := f.core.Registry.Get("CLAUDE_LUSTRO")
	require.NoError(t, err)
	require.NotNil(t, agent.CurrentTask)
	assert.Equal(t, created.ID, *agent.CurrentTask)
}

func TestDispatchBusyWithoutFallback(t *testing.T) {
	// empty registry: primary and fallback both unavailable
	f := newFixture(t, "http://localhost:1")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"title":       "refactor the auth layer for security",
		"description": "x",
	})
	created := decode[v1.Task](t, w)

	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/dispatch", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDispatchRejectsUnreadyTask(t *testing.T) {
	f := newFixture(t, "http://localhost:1")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{"title": "blocker", "description": "x"})
	blocker := decode[v1.Task](t, w)
	w = f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"title":       "dependent",
		"description": "x",
		"depends_on":  []string{blocker.ID},
	})
	dependent := decode[v1.Task](t, w)

	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+dependent.ID+"/dispatch", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.Contains(t, body["detail"], "unmet dependencies")
}

func TestDispatchRejectsRunningTask(t *testing.T) {
	f := newFixture(t, "http://localhost:1")
	f.addAgent(t, "CLAUDE_LUSTRO", "# CLAUDE_LUSTRO\n## The Mirror\nrefactoring\n")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"title":       "refactor the auth layer for security",
		"description": "x",
	})
	created := decode[v1.Task](t, w)

	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/dispatch", nil).Code)

	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/dispatch", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelAndLateResultViaPoll(t *testing.T) {
	f := newFixture(t, "http://localhost:1")
	f.addAgent(t, "GEMINI_ARCHITECT", "# GEMINI_ARCHITECT\n## The Architect\nsystem architecture design\n")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"title":       "design the plugin architecture",
		"description": "x",
	})
	created := decode[v1.Task](t, w)

	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/dispatch", nil).Code)

	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cancelResp struct {
		Cancelled bool    `json:"cancelled"`
		Task      v1.Task `json:"task"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelResp))
	assert.True(t, cancelResp.Cancelled)
	assert.Equal(t, v1.TaskStatusFailed, cancelResp.Task.Status)
	require.NotNil(t, cancelResp.Task.Error)
	assert.Equal(t, task.CancelledByUser, *cancelResp.Task.Error)

	// a poll after cancel must not resurrect the task
	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/poll", nil)
	require.Equal(t, http.StatusOK, w.Code)
	poll := decode[map[string]any](t, w)
	assert.Equal(t, "failed", poll["status"])
}

func TestPollPicksUpFileDropResult(t *testing.T) {
	f := newFixture(t, "http://localhost:1")
	f.addAgent(t, "CLAUDE_LUSTRO", "# CLAUDE_LUSTRO\n## The Mirror\nrefactoring review\n")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"title":       "refactor the auth layer for security",
		"description": "x",
	})
	created := decode[v1.Task](t, w)
	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/dispatch", nil).Code)

	// no result yet
	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/poll", nil)
	poll := decode[map[string]any](t, w)
	assert.Equal(t, "No result yet", poll["message"])

	resultFile := filepath.Join(f.inbox, "RESULT_"+created.ID+"_FROM_CLAUDE.md")
	require.NoError(t, os.WriteFile(resultFile, []byte("done: see patch"), 0644))

	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/poll", nil)
	require.Equal(t, http.StatusOK, w.Code)
	poll = decode[map[string]any](t, w)
	assert.Equal(t, "done", poll["status"])
	assert.Equal(t, "done: see patch", poll["result"])
}

func TestRetryResetsAndRedispatches(t *testing.T) {
	srv := fakeInference(t, "retried output")
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.addAgent(t, "OLLAMA_WORKER", "# OLLAMA_WORKER\n## The Builder\ncode worker\n")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"title":       "write a quick helper function",
		"description": "small utility",
	})
	created := decode[v1.Task](t, w)

	_, _, err := f.core.Tasks.Cancel(created.ID)
	require.NoError(t, err)

	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/retry", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Task v1.Task `json:"task"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, v1.TaskStatusDone, resp.Task.Status)
	require.NotNil(t, resp.Task.Result)
	assert.Equal(t, "retried output", *resp.Task.Result)
	assert.Nil(t, resp.Task.Error)
}

func TestAgentEndpoints(t *testing.T) {
	f := newFixture(t, "http://localhost:1")
	f.addAgent(t, "SHAD", "# SHAD\n## The Source\nhuman operator\n")

	w := f.do(t, http.MethodGet, "/api/v1/agents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Agents []v1.Agent `json:"agents"`
		Total  int        `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	assert.Empty(t, list.Agents[0].Descriptor)

	w = f.do(t, http.MethodGet, "/api/v1/agents/SHAD", nil)
	require.Equal(t, http.StatusOK, w.Code)
	agent := decode[v1.Agent](t, w)
	assert.Contains(t, agent.Descriptor, "The Source")

	// human agents always answer the ping
	w = f.do(t, http.MethodPost, "/api/v1/agents/SHAD/ping", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ping := decode[map[string]any](t, w)
	assert.Equal(t, true, ping["alive"])

	w = f.do(t, http.MethodGet, "/api/v1/agents/NOBODY", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/agents/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSystemEndpoints(t *testing.T) {
	srv := fakeInference(t, "")
	defer srv.Close()

	f := newFixture(t, srv.URL)

	w := f.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[map[string]any](t, w)
	assert.Equal(t, "online", status["status"])

	w = f.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[map[string]any](t, w)
	assert.Equal(t, "online", health["ollama"])

	w = f.do(t, http.MethodGet, "/api/v1/routing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	routing := decode[map[string]map[string]v1.RoutingRule](t, w)
	assert.Len(t, routing["routing_table"], 9)

	w = f.do(t, http.MethodGet, "/api/v1/logs?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	queue := decode[map[string]any](t, w)
	assert.Equal(t, float64(0), queue["count"])
}

func TestQueueOrdering(t *testing.T) {
	f := newFixture(t, "http://localhost:1")

	low := decode[v1.Task](t, f.do(t, http.MethodPost, "/api/v1/tasks",
		gin.H{"title": "low", "description": "x", "priority": "low"}))
	critical := decode[v1.Task](t, f.do(t, http.MethodPost, "/api/v1/tasks",
		gin.H{"title": "critical", "description": "x", "priority": "critical"}))

	w := f.do(t, http.MethodGet, "/api/v1/queue", nil)
	var resp struct {
		Queue []v1.Task `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Queue, 2)
	assert.Equal(t, critical.ID, resp.Queue[0].ID)
	assert.Equal(t, low.ID, resp.Queue[1].ID)
}

func TestDebateEndpoints(t *testing.T) {
	srv := fakeInference(t, "analysis text")
	defer srv.Close()

	f := newFixture(t, srv.URL)

	w := f.do(t, http.MethodPost, "/api/v1/debate/start", gin.H{
		"topics": []string{"one topic"},
		"agents": []string{"STROZ_SECURITY", "TESTER_QA"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	start := decode[map[string]any](t, w)
	sessionID := start["session_id"].(string)
	assert.Equal(t, "running", start["status"])

	require.Eventually(t, func() bool {
		s, err := f.core.Debate.Get(sessionID)
		return err == nil && s.Status == v1.DebateStatusCompleted
	}, 10*time.Second, 20*time.Millisecond)

	w = f.do(t, http.MethodGet, "/api/v1/debate/"+sessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	session := decode[map[string]any](t, w)
	assert.Equal(t, "completed", session["status"])

	w = f.do(t, http.MethodGet, "/api/v1/debate/"+sessionID+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[map[string]any](t, w)
	assert.Contains(t, report["report"], "DEBATE REPORT")

	w = f.do(t, http.MethodGet, "/api/v1/debate/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/debate/nosuchsession", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/debate/start", gin.H{"agents": []string{"NOBODY"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorBodyShape(t *testing.T) {
	f := newFixture(t, "http://localhost:1")

	w := f.do(t, http.MethodGet, "/api/v1/tasks/missing000000", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	body := decode[map[string]string](t, w)
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestDrainQueueDispatchesReadyTasks(t *testing.T) {
	srv := fakeInference(t, "def fib(n): ...")
	defer srv.Close()

	f := newFixture(t, srv.URL)
	f.addAgent(t, "OLLAMA_WORKER", "# OLLAMA_WORKER\n## The Builder\ncode worker\n")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{"title": "write a fibonacci function"})
	require.Equal(t, http.StatusCreated, w.Code)
	ready := decode[v1.Task](t, w)

	w = f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{"title": "write the integration tests"})
	require.Equal(t, http.StatusCreated, w.Code)
	blocked := decode[v1.Task](t, w)
	w = f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"title":      "document the fibonacci helper",
		"depends_on": []string{blocked.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	gated := decode[v1.Task](t, w)

	_, _, err := f.core.Tasks.Cancel(blocked.ID)
	require.NoError(t, err)

	n := f.core.DrainQueue(context.Background())
	assert.Equal(t, 1, n)

	got, err := f.core.Tasks.Get(ready.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusDone, got.Status)

	got, err = f.core.Tasks.Get(gated.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusPending, got.Status)
}

func TestDrainQueueLeavesTasksWhenNoAgent(t *testing.T) {
	f := newFixture(t, "http://localhost:1")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{"title": "write a parser"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[v1.Task](t, w)

	n := f.core.DrainQueue(context.Background())
	assert.Equal(t, 0, n)

	got, err := f.core.Tasks.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusPending, got.Status)
}

func TestDispatchCodexFailureFailsTask(t *testing.T) {
	script := filepath.Join(t.TempDir(), "codex_task.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"boom\" >&2\nexit 3\n"), 0755))

	f := newFixture(t, "http://localhost:1", func(cfg *config.Config) {
		cfg.Codex.Script = script
		cfg.Codex.Repo = "."
	})
	f.addAgent(t, "CODEX", "# CODEX\n## The Fabricator\nautonomous feature implementation\n")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{"title": "implement the export feature"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[v1.Task](t, w)

	w = f.do(t, http.MethodPost, "/api/v1/tasks/"+created.ID+"/dispatch", gin.H{
		"agent":  "CODEX",
		"bridge": "codex",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Result struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		} `json:"result"`
		Task v1.Task `json:"task"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Result.Success)
	assert.Contains(t, resp.Result.Error, "boom")

	// a failed launch must not leave the task running or the agent occupied
	assert.Equal(t, v1.TaskStatusFailed, resp.Task.Status)
	got, err := f.core.Tasks.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.TaskStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "boom")

	agent, err := f.core.Registry.Get("CODEX")
	require.NoError(t, err)
	assert.Equal(t, v1.AgentStatusIdle, agent.Status)
	assert.Nil(t, agent.CurrentTask)
}

func TestListTasksSortByPriority(t *testing.T) {
	f := newFixture(t, "http://localhost:1")

	w := f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{"title": "low urgency chore", "priority": "low"})
	require.Equal(t, http.StatusCreated, w.Code)
	low := decode[v1.Task](t, w)
	w = f.do(t, http.MethodPost, "/api/v1/tasks", gin.H{"title": "production incident", "priority": "critical"})
	require.Equal(t, http.StatusCreated, w.Code)
	critical := decode[v1.Task](t, w)

	w = f.do(t, http.MethodGet, "/api/v1/tasks?sort_by=priority", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]v1.Task](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, critical.ID, list[0].ID)
	assert.Equal(t, low.ID, list[1].ID)
}
