package boot

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foremanhq/foreman/internal/bridge"
	"github.com/foremanhq/foreman/internal/common/config"
	"github.com/foremanhq/foreman/internal/registry"
)

func testConfig(t *testing.T, ollamaURL string) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 18899},
		Paths: config.PathsConfig{
			InboxDir:  filepath.Join(root, "inbox"),
			AgentsDir: filepath.Join(root, "agents"),
			StateDir:  root,
			LogsDir:   filepath.Join(root, "logs"),
		},
		Ollama: config.OllamaConfig{URL: ollamaURL, Timeout: 2, DefaultModel: "test"},
	}
}

func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{
				{"name": "qwen3:8b"},
				{"name": "dolphin-llama3:latest"},
			},
		})
	}))
}

func TestRunCollectsDiagnostics(t *testing.T) {
	srv := fakeOllama(t)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)

	// two agents, one with a state log checkpoint
	supDir := filepath.Join(cfg.Paths.AgentsDir, SupervisorAgent)
	require.NoError(t, os.MkdirAll(supDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(supDir, registry.DescriptorFile), []byte("# SHAD\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(supDir, registry.StateLogFile),
		[]byte("boot\ncheckpoint: phase 2\n\n"), 0644))

	otherDir := filepath.Join(cfg.Paths.AgentsDir, "OLLAMA_WORKER")
	require.NoError(t, os.MkdirAll(otherDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(otherDir, registry.DescriptorFile), []byte("# W\n"), 0644))

	// one pending and one done task on disk
	tasksJSON := `{"schema_version":1,"tasks":[
		{"id":"aaa111bbb222","title":"a","status":"pending","priority":"medium","created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:00:00Z"},
		{"id":"ccc333ddd444","title":"b","status":"done","priority":"medium","created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:00:00Z"}]}`
	require.NoError(t, os.WriteFile(cfg.Paths.TasksFile(), []byte(tasksJSON), 0644))

	ollama := bridge.NewOllama(cfg.Ollama, nil)
	d := Run(context.Background(), cfg, ollama, nil)

	assert.True(t, d.OllamaOnline)
	assert.Len(t, d.Models, 2)
	assert.Equal(t, 2, d.AgentCount)
	assert.Equal(t, "checkpoint: phase 2", d.LastCheckpoint)
	assert.Equal(t, 1, d.PendingTasks)
	assert.Greater(t, d.DiskFreeMB, uint64(0))
	assert.False(t, d.PortBound)
}

func TestRunDegradesWhenEverythingIsDown(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	ollama := bridge.NewOllama(cfg.Ollama, nil)

	d := Run(context.Background(), cfg, ollama, nil)

	assert.False(t, d.OllamaOnline)
	assert.Empty(t, d.Models)
	assert.Zero(t, d.AgentCount)
	assert.Empty(t, d.LastCheckpoint)
	assert.Zero(t, d.PendingTasks)
}

func TestPortBoundDetection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	assert.True(t, portBound("127.0.0.1", port))
}

func TestBanner(t *testing.T) {
	d := &Diagnostics{
		OllamaOnline:   true,
		Models:         []string{"qwen3:8b"},
		AgentCount:     3,
		LastCheckpoint: "checkpoint: phase 2",
		PendingTasks:   5,
		DiskFreeMB:     1024,
	}
	banner := Banner("1.0.0", d, "127.0.0.1:8800")

	assert.Contains(t, banner, "FOREMAN v1.0.0")
	assert.Contains(t, banner, "[ON] ollama")
	assert.Contains(t, banner, "3 discovered")
	assert.Contains(t, banner, "5 pending on disk")
	assert.Contains(t, banner, "checkpoint: phase 2")
	assert.NotContains(t, banner, "WARNING")

	d.PortBound = true
	assert.Contains(t, Banner("1.0.0", d, "x"), "WARNING: port already bound")

	d.OllamaOnline = false
	assert.Contains(t, Banner("1.0.0", d, "x"), "[--] ollama")
}

func TestLastCheckpointMissingFile(t *testing.T) {
	assert.Empty(t, lastCheckpoint(filepath.Join(t.TempDir(), "nope.log")))
}

func TestBannerWidthStable(t *testing.T) {
	banner := Banner("1.0.0", &Diagnostics{}, "127.0.0.1:8800")
	for _, line := range strings.Split(banner, "\n") {
		assert.LessOrEqual(t, len(line), bannerWidth+6)
	}
}
