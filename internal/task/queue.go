package task

import (
	"container/heap"
	"errors"
	"sort"
	"sync"

	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// ErrTaskQueued is returned when a task is already in the queue.
var ErrTaskQueued = errors.New("task already exists in queue")

// queuedTask is one entry in the ready queue.
type queuedTask struct {
	Task  *v1.Task
	index int // Index in the heap (used by container/heap)
}

// taskHeap implements heap.Interface for the ready queue.
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	// Lower priority rank first, then earlier creation time
	ri, rj := h[i].Task.Priority.Rank(), h[j].Task.Priority.Rank()
	if ri != rj {
		return ri < rj
	}
	return h[i].Task.CreatedAt.Before(h[j].Task.CreatedAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	n := len(*h)
	item := x.(*queuedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*h = old[0 : n-1]
	return item
}

// ReadyQueue is a priority heap of ready pending tasks. It is a secondary
// index over the task table: entries are added when a task becomes ready and
// removed when it leaves the pending status.
type ReadyQueue struct {
	mu      sync.RWMutex
	heap    taskHeap
	taskMap map[string]*queuedTask // For quick lookup by task ID
}

// NewReadyQueue creates an empty ready queue.
func NewReadyQueue() *ReadyQueue {
	q := &ReadyQueue{
		heap:    make(taskHeap, 0),
		taskMap: make(map[string]*queuedTask),
	}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds a task to the queue.
func (q *ReadyQueue) Enqueue(task *v1.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.taskMap[task.ID]; exists {
		return ErrTaskQueued
	}

	qt := &queuedTask{Task: task}
	heap.Push(&q.heap, qt)
	q.taskMap[task.ID] = qt
	return nil
}

// Dequeue removes and returns the highest priority task, or nil when empty.
func (q *ReadyQueue) Dequeue() *v1.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}

	qt := heap.Pop(&q.heap).(*queuedTask)
	delete(q.taskMap, qt.Task.ID)
	return qt.Task
}

// Peek returns the highest priority task without removing it.
func (q *ReadyQueue) Peek() *v1.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0].Task
}

// Remove removes a specific task from the queue.
func (q *ReadyQueue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	qt, exists := q.taskMap[taskID]
	if !exists {
		return false
	}

	heap.Remove(&q.heap, qt.index)
	delete(q.taskMap, taskID)
	return true
}

// Fix re-establishes heap order after the task's priority changed in place.
func (q *ReadyQueue) Fix(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	qt, exists := q.taskMap[taskID]
	if !exists {
		return false
	}
	heap.Fix(&q.heap, qt.index)
	return true
}

// Contains checks if a task is in the queue.
func (q *ReadyQueue) Contains(taskID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	_, exists := q.taskMap[taskID]
	return exists
}

// Len returns the number of tasks in the queue.
func (q *ReadyQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.heap)
}

// List returns all queued tasks in scheduling order.
func (q *ReadyQueue) List() []*v1.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	entries := make([]*queuedTask, len(q.heap))
	copy(entries, q.heap)
	sort.Slice(entries, func(i, j int) bool {
		ri, rj := entries[i].Task.Priority.Rank(), entries[j].Task.Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return entries[i].Task.CreatedAt.Before(entries[j].Task.CreatedAt)
	})

	tasks := make([]*v1.Task, len(entries))
	for i, e := range entries {
		tasks[i] = e.Task
	}
	return tasks
}
