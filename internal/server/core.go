// Package server glues the orchestrator's components into the HTTP/WS API.
package server

import (
	"context"
	"time"

	"github.com/foremanhq/foreman/internal/audit"
	"github.com/foremanhq/foreman/internal/bridge"
	"github.com/foremanhq/foreman/internal/common/config"
	"github.com/foremanhq/foreman/internal/common/logger"
	"github.com/foremanhq/foreman/internal/debate"
	"github.com/foremanhq/foreman/internal/dispatch"
	"github.com/foremanhq/foreman/internal/feed"
	"github.com/foremanhq/foreman/internal/registry"
	"github.com/foremanhq/foreman/internal/task"
)

// Core bundles every component a handler may need. There are no package
// globals; one Core is built at startup and passed to the router.
type Core struct {
	Config  *config.Config
	Version string

	Tasks      *task.Manager
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Bridges    *bridge.Set
	Audit      *audit.Log
	Hub        *feed.Hub
	Debate     *debate.Engine

	// BaseCtx outlives any single request; background work (debate
	// sessions) binds to it instead of the request context.
	BaseCtx context.Context

	StartTime time.Time
	Log       *logger.Logger
}

// Uptime returns the seconds since startup, rounded to one decimal.
func (core *Core) Uptime() float64 {
	return float64(time.Since(core.StartTime).Round(100*time.Millisecond)) / float64(time.Second)
}

// Snapshot produces the live-feed init payload.
func (core *Core) Snapshot() *feed.Snapshot {
	return &feed.Snapshot{
		Agents: core.Registry.List(),
		Tasks:  core.Tasks.List("", "", ""),
	}
}
