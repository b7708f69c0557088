// Package task implements the persistent task table: CRUD, the ready queue,
// dependency gating, and lifecycle transitions.
package task

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/foremanhq/foreman/internal/common/errors"
	"github.com/foremanhq/foreman/internal/common/logger"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// CancelledByUser is the error text recorded on a cancelled task.
const CancelledByUser = "Cancelled by user"

// allowedTransitions is the lifecycle DAG. Terminal statuses have no
// outgoing edges; retry is a separate operation, not a transition.
var allowedTransitions = map[v1.TaskStatus][]v1.TaskStatus{
	v1.TaskStatusPending:  {v1.TaskStatusAssigned, v1.TaskStatusRunning, v1.TaskStatusFailed},
	v1.TaskStatusAssigned: {v1.TaskStatusRunning, v1.TaskStatusDone, v1.TaskStatusFailed},
	v1.TaskStatusRunning:  {v1.TaskStatusDone, v1.TaskStatusFailed},
	v1.TaskStatusDone:     {},
	v1.TaskStatusFailed:   {},
}

func canTransition(from, to v1.TaskStatus) bool {
	if from == to {
		return true
	}
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// NewID returns a fresh 12-hex task id.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// Patch is a field-wise task update; nil fields are ignored.
type Patch struct {
	Title       *string
	Description *string
	Priority    *v1.TaskPriority
	Status      *v1.TaskStatus
	AssignedTo  *string
	Result      *string
	Error       *string
	TaskType    *string
}

// Manager owns all task records and their JSON file. All public methods are
// serialized under a single mutex and return defensive copies. Persistence
// happens inside the lock; a failed write reverts the mutation.
type Manager struct {
	mu    sync.Mutex
	tasks map[string]*v1.Task
	ready *ReadyQueue
	store *Store
	log   *logger.Logger
	now   func() time.Time
}

// NewManager loads the task table from the store and builds the ready queue.
func NewManager(store *Store, log *logger.Logger) (*Manager, error) {
	if log == nil {
		log = logger.Default()
	}

	m := &Manager{
		tasks: make(map[string]*v1.Task),
		ready: NewReadyQueue(),
		store: store,
		log:   log,
		now:   time.Now,
	}

	loaded, err := store.Load()
	if err != nil {
		return nil, err
	}
	for _, t := range loaded {
		if t.DependsOn == nil {
			t.DependsOn = []string{}
		}
		m.tasks[t.ID] = t
	}
	for _, t := range m.tasks {
		m.syncReadyLocked(t)
	}

	return m, nil
}

// Create adds a new pending task and persists it.
func (m *Manager) Create(title, description string, priority v1.TaskPriority) (*v1.Task, error) {
	if priority == "" {
		priority = v1.TaskPriorityMedium
	}
	if !priority.IsValid() {
		return nil, apperrors.Validation("unknown priority: " + string(priority))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	t := &v1.Task{
		ID:          NewID(),
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      v1.TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		DependsOn:   []string{},
	}
	m.tasks[t.ID] = t
	m.syncReadyLocked(t)

	if err := m.persistLocked(); err != nil {
		delete(m.tasks, t.ID)
		m.ready.Remove(t.ID)
		return nil, err
	}
	return t.Clone(), nil
}

// Get returns a copy of the task, or NotFound.
func (m *Manager) Get(id string) (*v1.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task", id)
	}
	return t.Clone(), nil
}

// List returns tasks filtered by status and agent.
// sortBy "priority" orders by priority rank then created_at ascending;
// anything else orders by created_at descending.
func (m *Manager) List(status v1.TaskStatus, agent, sortBy string) []*v1.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*v1.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if status != "" && t.Status != status {
			continue
		}
		if agent != "" && (t.AssignedTo == nil || *t.AssignedTo != agent) {
			continue
		}
		out = append(out, t.Clone())
	}

	if sortBy == "priority" {
		sort.Slice(out, func(i, j int) bool {
			ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
			if ri != rj {
				return ri < rj
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	} else {
		sort.Slice(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

// History returns the most recent tasks by creation time, newest first.
func (m *Manager) History(limit int) []*v1.Task {
	out := m.List("", "", "")
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PendingQueue returns ready pending tasks in scheduling order.
func (m *Manager) PendingQueue() []*v1.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.ready.List()
	out := make([]*v1.Task, len(entries))
	for i, t := range entries {
		out[i] = t.Clone()
	}
	return out
}

// NextTask returns the head of the pending queue, or nil.
func (m *Manager) NextTask() *v1.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.ready.Peek()
	if t == nil {
		return nil
	}
	return t.Clone()
}

// Assign sets the task's agent and moves it to assigned.
func (m *Manager) Assign(id, agent string) (*v1.Task, error) {
	return m.mutate(id, func(t *v1.Task) error {
		if !canTransition(t.Status, v1.TaskStatusAssigned) {
			return apperrors.InvalidTransition(id, string(t.Status), string(v1.TaskStatusAssigned))
		}
		t.Status = v1.TaskStatusAssigned
		t.AssignedTo = &agent
		return nil
	})
}

// UpdateStatus moves the task along the lifecycle DAG.
func (m *Manager) UpdateStatus(id string, status v1.TaskStatus) (*v1.Task, error) {
	if !status.IsValid() {
		return nil, apperrors.Validation("unknown status: " + string(status))
	}
	return m.mutate(id, func(t *v1.Task) error {
		if !canTransition(t.Status, status) {
			return apperrors.InvalidTransition(id, string(t.Status), string(status))
		}
		t.Status = status
		return nil
	})
}

// Complete marks the task done and stores its result.
func (m *Manager) Complete(id, result string) (*v1.Task, error) {
	return m.mutate(id, func(t *v1.Task) error {
		if !canTransition(t.Status, v1.TaskStatusDone) {
			return apperrors.InvalidTransition(id, string(t.Status), string(v1.TaskStatusDone))
		}
		t.Status = v1.TaskStatusDone
		t.Result = &result
		t.Error = nil
		return nil
	})
}

// Fail marks the task failed and stores the error text.
func (m *Manager) Fail(id, errText string) (*v1.Task, error) {
	return m.mutate(id, func(t *v1.Task) error {
		if !canTransition(t.Status, v1.TaskStatusFailed) {
			return apperrors.InvalidTransition(id, string(t.Status), string(v1.TaskStatusFailed))
		}
		t.Status = v1.TaskStatusFailed
		t.Error = &errText
		return nil
	})
}

// Cancel flips a non-terminal task to failed with a fixed error text and
// returns the agent it occupied, if any.
func (m *Manager) Cancel(id string) (*v1.Task, string, error) {
	freed := ""
	t, err := m.mutate(id, func(t *v1.Task) error {
		if t.Status.IsTerminal() {
			return apperrors.InvalidTransition(id, string(t.Status), string(v1.TaskStatusFailed))
		}
		if t.AssignedTo != nil {
			freed = *t.AssignedTo
		}
		t.Status = v1.TaskStatusFailed
		msg := CancelledByUser
		t.Error = &msg
		return nil
	})
	return t, freed, err
}

// Retry resets a task to pending and clears result, error, assignment and
// classification. The task re-enters the ready queue if its dependencies
// are satisfied.
func (m *Manager) Retry(id string) (*v1.Task, error) {
	return m.mutate(id, func(t *v1.Task) error {
		t.Status = v1.TaskStatusPending
		t.Result = nil
		t.Error = nil
		t.AssignedTo = nil
		t.TaskType = nil
		return nil
	})
}

// Update applies a field-wise patch. The status field, when present, must
// respect the lifecycle DAG.
func (m *Manager) Update(id string, p Patch) (*v1.Task, error) {
	if p.Status != nil && !p.Status.IsValid() {
		return nil, apperrors.Validation("unknown status: " + string(*p.Status))
	}
	if p.Priority != nil && !p.Priority.IsValid() {
		return nil, apperrors.Validation("unknown priority: " + string(*p.Priority))
	}
	return m.mutate(id, func(t *v1.Task) error {
		if p.Status != nil && !canTransition(t.Status, *p.Status) {
			return apperrors.InvalidTransition(id, string(t.Status), string(*p.Status))
		}
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Priority != nil {
			t.Priority = *p.Priority
		}
		if p.Status != nil {
			t.Status = *p.Status
		}
		if p.AssignedTo != nil {
			t.AssignedTo = p.AssignedTo
		}
		if p.Result != nil {
			t.Result = p.Result
		}
		if p.Error != nil {
			t.Error = p.Error
		}
		if p.TaskType != nil {
			t.TaskType = p.TaskType
		}
		return nil
	})
}

// SetTaskType records the classifier output on the task.
func (m *Manager) SetTaskType(id, taskType string) (*v1.Task, error) {
	return m.Update(id, Patch{TaskType: &taskType})
}

// AddDependency makes task id depend on blockerID. Both tasks must exist and
// the new edge must not create a cycle.
func (m *Manager) AddDependency(id, blockerID string) (*v1.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task", id)
	}
	if _, ok := m.tasks[blockerID]; !ok {
		return nil, apperrors.NotFound("task", blockerID)
	}
	for _, d := range t.DependsOn {
		if d == blockerID {
			return t.Clone(), nil
		}
	}
	if id == blockerID || m.reachableLocked(blockerID, id) {
		return nil, apperrors.WouldCycle(id, blockerID)
	}

	prev := t.Clone()
	t.DependsOn = append(t.DependsOn, blockerID)
	t.UpdatedAt = m.touch(t.UpdatedAt)
	m.syncReadyLocked(t)

	if err := m.persistLocked(); err != nil {
		m.tasks[id] = prev
		m.ready.Remove(id)
		m.syncReadyLocked(prev)
		return nil, err
	}
	return t.Clone(), nil
}

// IsReady reports whether every dependency of the task is done.
func (m *Manager) IsReady(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return false, apperrors.NotFound("task", id)
	}
	return m.isReadyLocked(t), nil
}

// GetBlocked returns tasks with at least one non-done dependency.
func (m *Manager) GetBlocked() []*v1.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*v1.Task
	for _, t := range m.tasks {
		if len(t.DependsOn) > 0 && !m.isReadyLocked(t) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Delete removes the task. Returns false if the id is unknown.
func (m *Manager) Delete(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return false, nil
	}
	delete(m.tasks, id)
	m.ready.Remove(id)

	if err := m.persistLocked(); err != nil {
		m.tasks[id] = t
		m.syncReadyLocked(t)
		return false, err
	}
	return true, nil
}

// Stats returns a count of tasks per status.
func (m *Manager) Stats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := map[string]int{
		string(v1.TaskStatusPending):  0,
		string(v1.TaskStatusAssigned): 0,
		string(v1.TaskStatusRunning):  0,
		string(v1.TaskStatusDone):     0,
		string(v1.TaskStatusFailed):   0,
	}
	for _, t := range m.tasks {
		stats[string(t.Status)]++
	}
	return stats
}

// Count returns the total number of tasks.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// mutate applies fn to the task under the lock, touches updated_at, keeps the
// ready queue in sync, and persists. A failed persist restores the previous
// record.
func (m *Manager) mutate(id string, fn func(*v1.Task) error) (*v1.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task", id)
	}

	prev := t.Clone()
	if err := fn(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = m.touch(prev.UpdatedAt)
	m.syncReadyLocked(t)

	// A task leaving or entering done changes readiness of its dependents.
	if prev.Status != t.Status {
		for _, other := range m.tasks {
			if other.ID == t.ID {
				continue
			}
			for _, d := range other.DependsOn {
				if d == t.ID {
					m.syncReadyLocked(other)
					break
				}
			}
		}
	}

	if err := m.persistLocked(); err != nil {
		m.tasks[id] = prev
		m.ready.Remove(id)
		for _, other := range m.tasks {
			m.syncReadyLocked(other)
		}
		return nil, err
	}
	return t.Clone(), nil
}

// touch returns now, clamped to be monotonically non-decreasing.
func (m *Manager) touch(prev time.Time) time.Time {
	now := m.now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

func (m *Manager) isReadyLocked(t *v1.Task) bool {
	for _, dep := range t.DependsOn {
		d, ok := m.tasks[dep]
		if !ok || d.Status != v1.TaskStatusDone {
			return false
		}
	}
	return true
}

// syncReadyLocked adds or removes the task from the ready queue according to
// its current status and dependency state.
func (m *Manager) syncReadyLocked(t *v1.Task) {
	shouldQueue := t.Status == v1.TaskStatusPending && m.isReadyLocked(t)
	if shouldQueue {
		if m.ready.Contains(t.ID) {
			m.ready.Fix(t.ID)
		} else {
			_ = m.ready.Enqueue(t)
		}
	} else {
		m.ready.Remove(t.ID)
	}
}

// reachableLocked reports whether `to` is reachable from `from` following
// depends_on edges.
func (m *Manager) reachableLocked(from, to string) bool {
	seen := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if t, ok := m.tasks[cur]; ok {
			stack = append(stack, t.DependsOn...)
		}
	}
	return false
}

func (m *Manager) persistLocked() error {
	all := make([]*v1.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if err := m.store.Save(all); err != nil {
		return apperrors.Persist(err)
	}
	return nil
}
