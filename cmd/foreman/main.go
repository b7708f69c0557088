// Package main is the entry point for the foreman daemon: the task
// orchestrator HTTP API, the inbox watcher, and the live feed hub.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/audit"
	"github.com/foremanhq/foreman/internal/boot"
	"github.com/foremanhq/foreman/internal/bridge"
	"github.com/foremanhq/foreman/internal/common/config"
	"github.com/foremanhq/foreman/internal/common/logger"
	"github.com/foremanhq/foreman/internal/debate"
	"github.com/foremanhq/foreman/internal/dispatch"
	"github.com/foremanhq/foreman/internal/events/bus"
	"github.com/foremanhq/foreman/internal/feed"
	"github.com/foremanhq/foreman/internal/metrics"
	"github.com/foremanhq/foreman/internal/registry"
	"github.com/foremanhq/foreman/internal/server"
	"github.com/foremanhq/foreman/internal/task"
	"github.com/foremanhq/foreman/internal/watcher"
)

// Version is set via ldflags during build.
var Version = "1.0.0"

// rescanInterval is how often the registry picks up agent directory changes
// between filesystem events.
const rescanInterval = 30 * time.Second

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.LoadWithPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// core state
	store := task.NewStore(cfg.Paths.TasksFile(), log)
	tasks, err := task.NewManager(store, log)
	if err != nil {
		log.Fatal("task table unusable", zap.Error(err))
	}
	reg := registry.New(cfg.Paths.AgentsDir, log)
	bridges := bridge.NewSet(cfg, log)
	dispatcher := dispatch.New(reg, bridges.Ollama(), log)
	auditLog := audit.New(cfg.Paths.LogsDir, log)
	debateEngine := debate.NewEngine(bridges.Ollama(), cfg.Debate, cfg.Paths.AgentsDir, log)

	// event plumbing: optional NATS mirror, live feed hub
	eventBus, err := bus.New(cfg.NATS, log)
	if err != nil {
		log.Warn("event bus unavailable, continuing without mirror", zap.Error(err))
		eventBus = nil
	}

	core := &server.Core{
		Config:     cfg,
		Version:    Version,
		Tasks:      tasks,
		Registry:   reg,
		Dispatcher: dispatcher,
		Bridges:    bridges,
		Audit:      auditLog,
		Debate:     debateEngine,
		BaseCtx:    baseCtx,
		StartTime:  time.Now(),
		Log:        log,
	}
	hub := feed.NewHub(core.Snapshot, eventBus, log)
	core.Hub = hub
	go hub.Run(baseCtx)

	// inbox watcher + processor
	w, err := watcher.New(cfg.Paths.InboxDir, cfg.Paths.AgentsDir, log)
	if err != nil {
		log.Fatal("inbox watcher failed to initialize", zap.Error(err))
	}
	if err := w.Start(baseCtx); err != nil {
		log.Fatal("inbox watcher failed to start", zap.Error(err))
	}
	processor := watcher.NewProcessor(tasks, reg, auditLog, hub, cfg.Paths.InboxDir, log)
	go processor.Run(w.Events())

	// boot diagnostics and banner
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	diag := boot.Run(baseCtx, cfg, bridges.Ollama(), log)
	fmt.Println(boot.Banner(Version, diag, addr))

	auditLog.Write(audit.ActionStartup, "", "", "", "Foreman v"+Version)
	syncGauges(tasks, reg)
	go gaugeLoop(baseCtx, tasks, reg, log)
	if cfg.Queue.DrainInterval > 0 {
		go drainLoop(baseCtx, core, cfg.Queue.DrainIntervalDuration(), log)
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(core),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}
	go func() {
		log.Info("HTTP server starting", zap.String("address", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-baseCtx.Done():
	}

	log.Info("shutting down foreman...")
	auditLog.Write(audit.ActionShutdown, "", "", "", "")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down HTTP server", zap.Error(err))
	}

	cancel()
	if err := w.Close(); err != nil {
		log.Error("error closing inbox watcher", zap.Error(err))
	}
	if eventBus != nil {
		eventBus.Close()
	}
	log.Info("foreman stopped")
}

// gaugeLoop rescans the agents directory and refreshes the status gauges.
// The fsnotify watcher catches state-log writes, but brand-new agent folders
// and deletions only surface through a rescan.
func gaugeLoop(ctx context.Context, tasks *task.Manager, reg *registry.Registry, log *logger.Logger) {
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Scan()
			syncGauges(tasks, reg)
		}
	}
}

// drainLoop periodically dispatches ready pending tasks to available agents.
// Disabled unless queue.drainInterval is set.
func drainLoop(ctx context.Context, core *server.Core, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := core.DrainQueue(ctx); n > 0 {
				log.Info("queue drain dispatched tasks", zap.Int("count", n))
			}
		}
	}
}

func syncGauges(tasks *task.Manager, reg *registry.Registry) {
	for status, count := range tasks.Stats() {
		metrics.TasksByStatus.WithLabelValues(status).Set(float64(count))
	}
	metrics.AgentsRegistered.Set(float64(reg.Count()))
}
