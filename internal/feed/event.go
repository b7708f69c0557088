// Package feed implements the live feed: a WebSocket push channel that
// mirrors task lifecycle events to connected observers.
package feed

import "time"

// EventType enumerates the live feed event kinds.
type EventType string

const (
	EventInit          EventType = "init"
	EventTaskCreate    EventType = "task_create"
	EventTaskDispatch  EventType = "task_dispatch"
	EventTaskRunning   EventType = "task_running"
	EventTaskComplete  EventType = "task_complete"
	EventTaskFailed    EventType = "task_failed"
	EventTaskCancelled EventType = "task_cancelled"
	EventTaskRetry     EventType = "task_retry"
	EventHeartbeat     EventType = "heartbeat"
	EventPong          EventType = "pong"
)

// LiveEvent is the wire format of one feed message.
type LiveEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewLiveEvent stamps an event with the current time.
func NewLiveEvent(eventType EventType, data any) *LiveEvent {
	return &LiveEvent{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
}
