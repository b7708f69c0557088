// Package v1 contains the wire types shared by the Foreman API server,
// the CLI client, and the live feed.
package v1

import "time"

// TaskStatus represents the lifecycle status of a task.
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusAssigned TaskStatus = "assigned"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusDone     TaskStatus = "done"
	TaskStatusFailed   TaskStatus = "failed"
)

// IsTerminal reports whether the status is final.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// IsValid reports whether the status is a known lifecycle status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusRunning, TaskStatusDone, TaskStatusFailed:
		return true
	}
	return false
}

// TaskPriority represents the scheduling priority of a task.
type TaskPriority string

const (
	TaskPriorityCritical TaskPriority = "critical"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityLow      TaskPriority = "low"
)

// Rank returns the scheduling rank of the priority; lower runs first.
// Unknown priorities rank after low.
func (p TaskPriority) Rank() int {
	switch p {
	case TaskPriorityCritical:
		return 0
	case TaskPriorityHigh:
		return 1
	case TaskPriorityMedium:
		return 2
	case TaskPriorityLow:
		return 3
	}
	return 4
}

// IsValid reports whether the priority is a known priority level.
func (p TaskPriority) IsValid() bool {
	switch p {
	case TaskPriorityCritical, TaskPriorityHigh, TaskPriorityMedium, TaskPriorityLow:
		return true
	}
	return false
}

// Task represents a unit of work with a lifecycle.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	AssignedTo  *string      `json:"assigned_to"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Result      *string      `json:"result"`
	Error       *string      `json:"error"`
	TaskType    *string      `json:"task_type"`
	DependsOn   []string     `json:"depends_on"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.AssignedTo != nil {
		v := *t.AssignedTo
		c.AssignedTo = &v
	}
	if t.Result != nil {
		v := *t.Result
		c.Result = &v
	}
	if t.Error != nil {
		v := *t.Error
		c.Error = &v
	}
	if t.TaskType != nil {
		v := *t.TaskType
		c.TaskType = &v
	}
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	return &c
}
