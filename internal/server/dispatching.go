package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/audit"
	"github.com/foremanhq/foreman/internal/bridge"
	apperrors "github.com/foremanhq/foreman/internal/common/errors"
	"github.com/foremanhq/foreman/internal/dispatch"
	"github.com/foremanhq/foreman/internal/feed"
	"github.com/foremanhq/foreman/internal/metrics"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// DispatchOutcome is the result of one dispatch: the routing decision, the
// bridge result, and the task in its post-dispatch state.
type DispatchOutcome struct {
	TaskID   string              `json:"task_id"`
	Decision *v1.RoutingDecision `json:"routing"`
	Result   *bridge.Result      `json:"result"`
	Task     *v1.Task            `json:"task"`
}

// ExecuteDispatch runs the full dispatch flow for one task: readiness checks,
// routing decision, assignment, bridge execution and completion bookkeeping.
// It is shared by the dispatch/retry endpoints and the periodic queue drain.
// A sync bridge failure is not an error here; the outcome carries the failed
// task.
func (core *Core) ExecuteDispatch(ctx context.Context, taskID string, ov dispatch.Overrides) (*DispatchOutcome, error) {
	t, err := core.Tasks.Get(taskID)
	if err != nil {
		return nil, err
	}
	if t.Status == v1.TaskStatusRunning || t.Status == v1.TaskStatusDone {
		return nil, apperrors.Validation(fmt.Sprintf("task already %s", t.Status))
	}
	ready, err := core.Tasks.IsReady(taskID)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, apperrors.Validation("task has unmet dependencies")
	}

	decision := core.Dispatcher.Decide(ctx, t, ov)
	if decision.Busy {
		return nil, apperrors.Busy(fmt.Sprintf(
			"agent '%s' is busy and no fallback is available", decision.Agent))
	}

	b, err := core.Bridges.Get(decision.Bridge)
	if err != nil {
		return nil, err
	}

	if t, err = core.Tasks.Assign(taskID, decision.Agent); err != nil {
		return nil, err
	}
	if t, err = core.Tasks.SetTaskType(taskID, decision.TaskType); err != nil {
		return nil, err
	}
	if err := core.Registry.UpdateStatus(decision.Agent, v1.AgentStatusActive, taskID); err != nil {
		core.Log.Debug("dispatch target not in registry", zap.String("agent", decision.Agent))
	}
	core.Audit.Write(audit.ActionDispatch, decision.Agent, taskID, "",
		fmt.Sprintf("type=%s, bridge=%s", decision.TaskType, decision.Bridge))
	core.Hub.Broadcast(feed.EventTaskDispatch, map[string]any{
		"task_id": taskID,
		"agent":   decision.Agent,
		"bridge":  decision.Bridge,
	})

	if t, err = core.Tasks.UpdateStatus(taskID, v1.TaskStatusRunning); err != nil {
		return nil, err
	}
	metrics.TasksDispatched.WithLabelValues(decision.Bridge).Inc()
	core.Hub.Broadcast(feed.EventTaskRunning, map[string]any{
		"task_id": taskID,
		"agent":   decision.Agent,
	})

	start := time.Now()
	result, execErr := b.Execute(ctx, t, bridge.Options{
		Model:        decision.Model,
		Temperature:  decision.Temperature,
		SystemPrompt: decision.SystemPrompt,
	})
	metrics.BridgeDuration.WithLabelValues(decision.Bridge).Observe(time.Since(start).Seconds())

	if execErr != nil {
		core.failTask(taskID, decision.Agent, execErr.Error())
		return nil, execErr
	}

	switch {
	case !result.Success:
		core.failTask(taskID, decision.Agent, result.Error)
		t, _ = core.Tasks.Get(taskID)

	case result.Mode == bridge.ModeSync:
		if t, err = core.Tasks.Complete(taskID, result.Response); err != nil {
			return nil, err
		}
		core.freeAgent(decision.Agent)
		metrics.TasksCompleted.Inc()
		core.Audit.Write(audit.ActionComplete, decision.Agent, taskID, "done", "")
		core.Hub.Broadcast(feed.EventTaskComplete, map[string]any{
			"task_id": taskID,
			"agent":   decision.Agent,
			"status":  "done",
		})

	default:
		// async: the task stays running until the inbox watcher or a poll
		// picks up the result file
		core.Audit.Write(audit.ActionDispatchedFile, decision.Agent, taskID, "", result.File)
	}

	return &DispatchOutcome{
		TaskID:   taskID,
		Decision: decision,
		Result:   result,
		Task:     t,
	}, nil
}

// DrainQueue attempts one dispatch pass over the ready pending tasks. Busy
// decisions leave the task queued for the next pass; other failures are
// logged and skipped. Returns the number of tasks dispatched.
func (core *Core) DrainQueue(ctx context.Context) int {
	dispatched := 0
	for _, t := range core.Tasks.PendingQueue() {
		if ctx.Err() != nil {
			return dispatched
		}
		if _, err := core.ExecuteDispatch(ctx, t.ID, dispatch.Overrides{}); err != nil {
			if apperrors.IsBusy(err) {
				continue
			}
			core.Log.Warn("queue drain dispatch failed",
				zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		dispatched++
	}
	return dispatched
}

func (core *Core) failTask(taskID, agent, errText string) {
	if _, err := core.Tasks.Fail(taskID, errText); err != nil {
		core.Log.Error("failed to mark task failed",
			zap.String("task_id", taskID), zap.Error(err))
	}
	core.freeAgent(agent)
	metrics.TasksFailed.Inc()
	core.Audit.Write(audit.ActionComplete, agent, taskID, "failed", errText)
	core.Hub.Broadcast(feed.EventTaskFailed, map[string]any{
		"task_id": taskID,
		"agent":   agent,
		"error":   errText,
	})
}

func (core *Core) freeAgent(name string) {
	if err := core.Registry.UpdateStatus(name, v1.AgentStatusIdle, ""); err != nil {
		core.Log.Debug("agent not in registry", zap.String("agent", name))
	}
}
