package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryEventBus(nil)
	defer b.Close()

	var mu sync.Mutex
	var got []*Event

	_, err := b.Subscribe("task.created", func(_ context.Context, ev *Event) error {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	ev := NewEvent("task.created", "test", map[string]any{"id": "abc123def456"})
	require.NoError(t, b.Publish(context.Background(), "task.created", ev))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "task.created", got[0].Type)
	assert.Equal(t, "abc123def456", got[0].Data["id"])
	assert.NotEmpty(t, got[0].ID)
}

func TestMemoryBusWildcards(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		match   bool
	}{
		{"task.*", "task.created", true},
		{"task.*", "task.status.changed", false},
		{"task.>", "task.created", true},
		{"task.>", "task.status.changed", true},
		{"task.created", "task.created", true},
		{"task.created", "task.failed", false},
		{"agent.*", "task.created", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.subject, func(t *testing.T) {
			b := NewMemoryEventBus(nil)
			defer b.Close()

			var mu sync.Mutex
			received := false

			_, err := b.Subscribe(tt.pattern, func(_ context.Context, _ *Event) error {
				mu.Lock()
				received = true
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)

			require.NoError(t, b.Publish(context.Background(), tt.subject, NewEvent(tt.subject, "test", nil)))

			if tt.match {
				waitFor(t, func() bool {
					mu.Lock()
					defer mu.Unlock()
					return received
				})
			} else {
				time.Sleep(50 * time.Millisecond)
				mu.Lock()
				assert.False(t, received)
				mu.Unlock()
			}
		})
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	b := NewMemoryEventBus(nil)
	defer b.Close()

	var mu sync.Mutex
	count := 0

	sub, err := b.Subscribe("task.*", func(_ context.Context, _ *Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sub.IsValid())

	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())

	require.NoError(t, b.Publish(context.Background(), "task.created", NewEvent("task.created", "test", nil)))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, count)
	mu.Unlock()
}

func TestMemoryBusClosed(t *testing.T) {
	b := NewMemoryEventBus(nil)
	assert.True(t, b.IsConnected())

	b.Close()
	assert.False(t, b.IsConnected())

	err := b.Publish(context.Background(), "task.created", NewEvent("task.created", "test", nil))
	assert.Error(t, err)

	_, err = b.Subscribe("task.*", func(_ context.Context, _ *Event) error { return nil })
	assert.Error(t, err)
}

func TestMemoryBusInvalidPattern(t *testing.T) {
	b := NewMemoryEventBus(nil)
	defer b.Close()

	_, err := b.Subscribe("task.>.created", func(_ context.Context, _ *Event) error { return nil })
	assert.Error(t, err)
}
