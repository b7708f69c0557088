package task

import (
	"testing"
	"time"

	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// queueTask creates a task for testing with the given parameters
func queueTask(id string, priority v1.TaskPriority, createdAt time.Time) *v1.Task {
	return &v1.Task{
		ID:        id,
		Title:     "Test Task " + id,
		Priority:  priority,
		Status:    v1.TaskStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		DependsOn: []string{},
	}
}

func TestNewReadyQueue(t *testing.T) {
	q := NewReadyQueue()
	if q == nil {
		t.Fatal("NewReadyQueue returned nil")
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got Len() = %d", q.Len())
	}
}

func TestQueueEnqueueDequeue(t *testing.T) {
	q := NewReadyQueue()
	now := time.Now()

	if err := q.Enqueue(queueTask("task-1", v1.TaskPriorityMedium, now)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("expected Len() = 1, got %d", q.Len())
	}

	got := q.Dequeue()
	if got == nil || got.ID != "task-1" {
		t.Fatalf("expected task-1, got %v", got)
	}
	if q.Dequeue() != nil {
		t.Error("expected nil from empty queue")
	}
}

func TestQueueEnqueueDuplicate(t *testing.T) {
	q := NewReadyQueue()
	task := queueTask("task-1", v1.TaskPriorityMedium, time.Now())

	_ = q.Enqueue(task)
	if err := q.Enqueue(task); err != ErrTaskQueued {
		t.Errorf("expected ErrTaskQueued, got %v", err)
	}
}

func TestQueuePriorityOrder(t *testing.T) {
	q := NewReadyQueue()
	now := time.Now()

	_ = q.Enqueue(queueTask("low", v1.TaskPriorityLow, now))
	_ = q.Enqueue(queueTask("critical", v1.TaskPriorityCritical, now))
	_ = q.Enqueue(queueTask("medium", v1.TaskPriorityMedium, now))
	_ = q.Enqueue(queueTask("high", v1.TaskPriorityHigh, now))

	want := []string{"critical", "high", "medium", "low"}
	for _, id := range want {
		got := q.Dequeue()
		if got == nil || got.ID != id {
			t.Fatalf("expected %s, got %v", id, got)
		}
	}
}

func TestQueueCreatedAtTiebreak(t *testing.T) {
	q := NewReadyQueue()
	base := time.Now()

	_ = q.Enqueue(queueTask("newer", v1.TaskPriorityHigh, base.Add(time.Minute)))
	_ = q.Enqueue(queueTask("older", v1.TaskPriorityHigh, base))

	if got := q.Dequeue(); got.ID != "older" {
		t.Errorf("expected older task first, got %s", got.ID)
	}
	if got := q.Dequeue(); got.ID != "newer" {
		t.Errorf("expected newer task second, got %s", got.ID)
	}
}

func TestQueuePeek(t *testing.T) {
	q := NewReadyQueue()
	if q.Peek() != nil {
		t.Error("expected nil Peek on empty queue")
	}

	_ = q.Enqueue(queueTask("task-1", v1.TaskPriorityHigh, time.Now()))
	if got := q.Peek(); got == nil || got.ID != "task-1" {
		t.Fatalf("expected task-1, got %v", got)
	}
	if q.Len() != 1 {
		t.Error("Peek should not remove the task")
	}
}

func TestQueueRemove(t *testing.T) {
	q := NewReadyQueue()
	now := time.Now()

	_ = q.Enqueue(queueTask("task-1", v1.TaskPriorityHigh, now))
	_ = q.Enqueue(queueTask("task-2", v1.TaskPriorityLow, now))

	if !q.Remove("task-1") {
		t.Error("expected Remove to succeed")
	}
	if q.Remove("task-1") {
		t.Error("expected second Remove to fail")
	}
	if !q.Contains("task-2") {
		t.Error("task-2 should still be queued")
	}
	if got := q.Dequeue(); got.ID != "task-2" {
		t.Errorf("expected task-2, got %s", got.ID)
	}
}

func TestQueueFix(t *testing.T) {
	q := NewReadyQueue()
	now := time.Now()

	low := queueTask("was-low", v1.TaskPriorityLow, now)
	_ = q.Enqueue(low)
	_ = q.Enqueue(queueTask("high", v1.TaskPriorityHigh, now))

	low.Priority = v1.TaskPriorityCritical
	if !q.Fix("was-low") {
		t.Fatal("expected Fix to succeed")
	}

	if got := q.Dequeue(); got.ID != "was-low" {
		t.Errorf("expected promoted task first, got %s", got.ID)
	}
}

func TestQueueList(t *testing.T) {
	q := NewReadyQueue()
	base := time.Now()

	_ = q.Enqueue(queueTask("c", v1.TaskPriorityLow, base))
	_ = q.Enqueue(queueTask("a", v1.TaskPriorityCritical, base))
	_ = q.Enqueue(queueTask("b", v1.TaskPriorityCritical, base.Add(time.Second)))

	list := q.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(list))
	}
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}
	if q.Len() != 3 {
		t.Error("List should not drain the queue")
	}
}
