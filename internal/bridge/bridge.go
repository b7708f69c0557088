// Package bridge contains the transports that deliver a dispatched task to
// its worker: a synchronous HTTP bridge for local inference, two file-drop
// bridges for CLI-based workers, and a subprocess bridge.
package bridge

import (
	"context"

	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// Mode distinguishes synchronous results from scheduled file drops.
type Mode string

const (
	ModeSync      Mode = "sync"
	ModeAsyncFile Mode = "async_file"
)

// Metrics carries inference statistics reported by the model server.
type Metrics struct {
	EvalCount    int64 `json:"eval_count,omitempty"`
	EvalDuration int64 `json:"eval_duration,omitempty"`
}

// Result is the outcome of an Execute or CheckResult call.
// For ModeSync, Response holds the final output. For ModeAsyncFile, File and
// Message describe the scheduled drop; the real result arrives via the inbox.
type Result struct {
	Success  bool     `json:"success"`
	Mode     Mode     `json:"mode,omitempty"`
	Response string   `json:"response,omitempty"`
	Error    string   `json:"error,omitempty"`
	File     string   `json:"file,omitempty"`
	Message  string   `json:"message,omitempty"`
	Model    string   `json:"model,omitempty"`
	Metrics  *Metrics `json:"metrics,omitempty"`
}

// Options are per-dispatch overrides taken from the routing decision.
type Options struct {
	Model        string
	Temperature  *float64
	SystemPrompt string
}

// Bridge delivers tasks to one kind of worker.
//
// Execute starts delivery; it may block until a final result (sync bridges)
// or return right after scheduling (file-drop bridges). CheckResult polls for
// an asynchronously-arriving result; (nil, nil) means not ready, and sync
// bridges always answer that way. Transport failures are returned as errors
// carrying the bridge error kinds; worker-level failures come back inside the
// Result with Success=false.
type Bridge interface {
	Name() string
	Execute(ctx context.Context, task *v1.Task, opts Options) (*Result, error)
	CheckResult(task *v1.Task) (*Result, error)
}
