package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/audit"
	apperrors "github.com/foremanhq/foreman/internal/common/errors"
	"github.com/foremanhq/foreman/internal/dispatch"
	"github.com/foremanhq/foreman/internal/feed"
	"github.com/foremanhq/foreman/internal/metrics"
	"github.com/foremanhq/foreman/internal/task"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// Handler holds the HTTP handlers for the whole API surface.
type Handler struct {
	core *Core
}

// NewHandler wraps the core context.
func NewHandler(core *Core) *Handler {
	return &Handler{core: core}
}

// CreateTask creates a new task.
// POST /api/v1/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Validation(err.Error()))
		return
	}

	t, err := h.core.Tasks.Create(req.Title, req.Description, req.Priority)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, dep := range req.DependsOn {
		if t, err = h.core.Tasks.AddDependency(t.ID, dep); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.AssignedTo != "" {
		if t, err = h.core.Tasks.Assign(t.ID, req.AssignedTo); err != nil {
			respondError(c, err)
			return
		}
	}

	metrics.TasksCreated.Inc()
	h.core.Audit.Write(audit.ActionTaskCreate, "", t.ID, "", req.Title)
	h.core.Hub.Broadcast(feed.EventTaskCreate, map[string]any{
		"task_id":  t.ID,
		"title":    t.Title,
		"priority": string(t.Priority),
	})
	c.JSON(http.StatusCreated, t)
}

// ListTasks returns tasks, optionally filtered by status and agent.
// GET /api/v1/tasks?status=&agent=&sort_by=
func (h *Handler) ListTasks(c *gin.Context) {
	status := v1.TaskStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		respondError(c, apperrors.Validation("unknown status: "+string(status)))
		return
	}
	sortBy := c.Query("sort_by")
	if sortBy == "" {
		sortBy = c.Query("sort")
	}
	c.JSON(http.StatusOK, h.core.Tasks.List(status, c.Query("agent"), sortBy))
}

// GetTask returns one task.
// GET /api/v1/tasks/:taskId
func (h *Handler) GetTask(c *gin.Context) {
	t, err := h.core.Tasks.Get(c.Param("taskId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// UpdateTask applies a partial update.
// PUT /api/v1/tasks/:taskId
func (h *Handler) UpdateTask(c *gin.Context) {
	taskID := c.Param("taskId")
	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Validation(err.Error()))
		return
	}

	t, err := h.core.Tasks.Update(taskID, task.Patch{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      req.Status,
		AssignedTo:  req.AssignedTo,
		Result:      req.Result,
		Error:       req.Error,
		TaskType:    req.TaskType,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.core.Audit.Write(audit.ActionTaskUpdate, "", taskID, string(t.Status), "")
	c.JSON(http.StatusOK, t)
}

// DeleteTask removes a task.
// DELETE /api/v1/tasks/:taskId
func (h *Handler) DeleteTask(c *gin.Context) {
	taskID := c.Param("taskId")
	deleted, err := h.core.Tasks.Delete(taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !deleted {
		respondError(c, apperrors.NotFound("task", taskID))
		return
	}
	h.core.Audit.Write(audit.ActionTaskDelete, "", taskID, "", "")
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// DispatchTask classifies, routes and executes a task.
// POST /api/v1/tasks/:taskId/dispatch
func (h *Handler) DispatchTask(c *gin.Context) {
	var req DispatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.Validation(err.Error()))
			return
		}
	}
	h.dispatch(c, c.Param("taskId"), dispatch.Overrides{
		Agent:  req.Agent,
		Bridge: req.Bridge,
		Model:  req.Model,
	})
}

// RetryTask resets a failed task to pending and re-dispatches it.
// POST /api/v1/tasks/:taskId/retry
func (h *Handler) RetryTask(c *gin.Context) {
	taskID := c.Param("taskId")
	t, err := h.core.Tasks.Retry(taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.core.Audit.Write(audit.ActionRetry, "", taskID, string(t.Status), "")
	h.core.Hub.Broadcast(feed.EventTaskRetry, map[string]any{"task_id": taskID})

	h.dispatch(c, taskID, dispatch.Overrides{})
}

// CancelTask flips a non-terminal task to failed and frees the agent.
// POST /api/v1/tasks/:taskId/cancel
func (h *Handler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	t, freed, err := h.core.Tasks.Cancel(taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	if freed != "" {
		if err := h.core.Registry.UpdateStatus(freed, v1.AgentStatusIdle, ""); err != nil {
			h.core.Log.Debug("freed agent not in registry", zap.String("agent", freed))
		}
	}

	h.core.Audit.Write(audit.ActionCancel, freed, taskID, string(t.Status), task.CancelledByUser)
	h.core.Hub.Broadcast(feed.EventTaskCancelled, map[string]any{
		"task_id": taskID,
		"agent":   freed,
	})
	c.JSON(http.StatusOK, gin.H{"cancelled": true, "task": t})
}

// PollTask checks an async bridge for a pending result.
// POST /api/v1/tasks/:taskId/poll
func (h *Handler) PollTask(c *gin.Context) {
	taskID := c.Param("taskId")
	t, err := h.core.Tasks.Get(taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	if t.Status != v1.TaskStatusRunning || t.AssignedTo == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  string(t.Status),
			"message": "Task is not running",
			"task":    t,
		})
		return
	}

	agent, err := h.core.Registry.Get(*t.AssignedTo)
	if err != nil {
		respondError(c, err)
		return
	}
	b, err := h.core.Bridges.Get(string(agent.BridgeType))
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := b.CheckResult(t)
	if err != nil {
		respondError(c, err)
		return
	}
	if result == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  string(t.Status),
			"message": "No result yet",
			"task":    t,
		})
		return
	}

	done, err := h.core.Tasks.Complete(taskID, result.Response)
	if err != nil {
		respondError(c, err)
		return
	}
	h.core.freeAgent(agent.Name)
	metrics.TasksCompleted.Inc()
	h.core.Audit.Write(audit.ActionComplete, agent.Name, taskID, "done", "Result polled")
	h.core.Hub.Broadcast(feed.EventTaskComplete, map[string]any{
		"task_id": taskID,
		"agent":   agent.Name,
		"status":  "done",
	})
	c.JSON(http.StatusOK, gin.H{
		"status": "done",
		"result": result.Response,
		"task":   done,
	})
}

// dispatch is the shared dispatch entry used by DispatchTask and RetryTask.
func (h *Handler) dispatch(c *gin.Context, taskID string, ov dispatch.Overrides) {
	outcome, err := h.core.ExecuteDispatch(c.Request.Context(), taskID, ov)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}
