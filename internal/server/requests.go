package server

import v1 "github.com/foremanhq/foreman/pkg/api/v1"

// CreateTaskRequest is the body of POST /tasks.
type CreateTaskRequest struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Priority    v1.TaskPriority `json:"priority"`
	AssignedTo  string          `json:"assigned_to"`
	DependsOn   []string        `json:"depends_on"`
}

// UpdateTaskRequest is the body of PUT /tasks/{id}; nil fields stay untouched.
type UpdateTaskRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Priority    *v1.TaskPriority `json:"priority"`
	Status      *v1.TaskStatus   `json:"status"`
	AssignedTo  *string          `json:"assigned_to"`
	Result      *string          `json:"result"`
	Error       *string          `json:"error"`
	TaskType    *string          `json:"task_type"`
}

// DispatchRequest carries optional routing overrides.
type DispatchRequest struct {
	Agent  string `json:"agent"`
	Bridge string `json:"bridge"`
	Model  string `json:"model"`
}

// DebateStartRequest is the body of POST /debate/start.
type DebateStartRequest struct {
	Topics []string `json:"topics"`
	Agents []string `json:"agents"`
}
