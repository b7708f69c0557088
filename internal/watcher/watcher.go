// Package watcher monitors the shared inbox for result files and the agents
// directory for state-log activity. Filesystem events are forwarded on a
// channel to a single consumer; the watcher itself never mutates task state.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/common/logger"
	"github.com/foremanhq/foreman/internal/registry"
)

// EventKind classifies a filesystem observation.
type EventKind int

const (
	// InboxFile is a new markdown file in the inbox.
	InboxFile EventKind = iota
	// StateChange is a write to an agent's state log.
	StateChange
)

// Event is one observation forwarded to the consumer.
type Event struct {
	Kind EventKind
	Path string
}

// Watcher wraps fsnotify over the inbox (non-recursive) and the agents
// directory (one level deep, for state logs).
type Watcher struct {
	fsw       *fsnotify.Watcher
	inboxDir  string
	agentsDir string
	events    chan Event
	log       *logger.Logger
}

// New creates a watcher for the two directories.
func New(inboxDir, agentsDir string, log *logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:       fsw,
		inboxDir:  inboxDir,
		agentsDir: agentsDir,
		events:    make(chan Event, 64),
		log:       log,
	}, nil
}

// Events returns the observation channel consumed by the processor.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start registers the watch paths and runs the forwarding loop until the
// context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.inboxDir, 0755); err != nil {
		return err
	}
	if err := w.fsw.Add(w.inboxDir); err != nil {
		return err
	}
	w.log.Info("watching inbox", zap.String("dir", w.inboxDir))

	if entries, err := os.ReadDir(w.agentsDir); err == nil {
		if err := w.fsw.Add(w.agentsDir); err != nil {
			w.log.Warn("cannot watch agents dir", zap.Error(err))
		}
		for _, entry := range entries {
			if entry.IsDir() {
				if err := w.fsw.Add(filepath.Join(w.agentsDir, entry.Name())); err != nil {
					w.log.Warn("cannot watch agent folder",
						zap.String("agent", entry.Name()), zap.Error(err))
				}
			}
		}
		w.log.Info("watching agents dir", zap.String("dir", w.agentsDir))
	} else {
		w.log.Warn("agents dir not watchable", zap.String("dir", w.agentsDir), zap.Error(err))
	}

	go w.loop(ctx)
	return nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.events)
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	inInbox := filepath.Dir(ev.Name) == filepath.Clean(w.inboxDir)

	switch {
	case inInbox && ev.Has(fsnotify.Create):
		if strings.EqualFold(filepath.Ext(ev.Name), ".md") {
			w.forward(ctx, Event{Kind: InboxFile, Path: ev.Name})
		}

	case filepath.Base(ev.Name) == registry.StateLogFile &&
		(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)):
		w.forward(ctx, Event{Kind: StateChange, Path: ev.Name})

	case ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(w.agentsDir):
		// New agent folder appeared: watch it for state-log writes.
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(ev.Name); err != nil {
				w.log.Warn("cannot watch new agent folder", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) forward(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
