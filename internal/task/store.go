package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/common/logger"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

const schemaVersion = 1

// fileSchema is the on-disk layout of the task table.
type fileSchema struct {
	SchemaVersion int        `json:"schema_version"`
	Tasks         []*v1.Task `json:"tasks"`
}

// Store persists the task table as a single JSON document.
// Writes go to a temp file in the same directory followed by an atomic rename.
type Store struct {
	path string
	log  *logger.Logger
}

// NewStore creates a store writing to the given path.
func NewStore(path string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Default()
	}
	return &Store{path: path, log: log}
}

// Path returns the location of the persisted task table.
func (s *Store) Path() string {
	return s.path
}

// Load reads the task table from disk. A missing file yields an empty table.
// A corrupt file is logged and yields an empty table; the file is left in
// place until the first successful write replaces it.
func (s *Store) Load() ([]*v1.Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var doc fileSchema
	if err := json.Unmarshal(data, &doc); err == nil && doc.Tasks != nil {
		return doc.Tasks, nil
	}

	// Pre-versioned layout: top-level array of tasks.
	var tasks []*v1.Task
	if err := json.Unmarshal(data, &tasks); err == nil {
		return tasks, nil
	}

	s.log.Warn("task file is corrupt, starting with empty table",
		zap.String("path", s.path))
	return nil, nil
}

// Save atomically writes the task table to disk.
func (s *Store) Save(tasks []*v1.Task) error {
	if tasks == nil {
		tasks = []*v1.Task{}
	}
	doc := fileSchema{SchemaVersion: schemaVersion, Tasks: tasks}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tasks-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
