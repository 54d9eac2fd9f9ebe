// Package history persists run records under the state home: one JSON file
// per run plus an index of recent summaries per workspace and workflow.
// Writes are whole-file atomic replaces behind a single mutex; the index is
// append-only per key and truncated at the configured limit.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/strandworks/strand/sdk"
)

// DefaultLimit caps summaries kept per workspace:workflowPath key.
const DefaultLimit = 10

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// RunSummary is the per-run entry stored in the index.
type RunSummary struct {
	ID           string    `json:"id"`
	Workspace    string    `json:"workspace"`
	WorkflowPath string    `json:"workflowPath"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
	Status       string    `json:"status"`
	DurationMS   int64     `json:"duration"`
	NodeCount    int       `json:"nodeCount"`
	Error        string    `json:"error,omitempty"`
	Source       string    `json:"source,omitempty"`
}

// RunRecord is the full per-run file: the summary plus every node result.
type RunRecord struct {
	RunSummary
	Results map[string]*sdk.NodeResult `json:"results"`
}

// Store reads and writes run history under one state directory.
type Store struct {
	mu     sync.Mutex
	home   string
	limit  int
	logger Logger
}

// StoreOpts contains options for creating a store.
type StoreOpts struct {
	// Home is the state root; runs/ and history.json live under it.
	Home string
	// Limit caps summaries per key. Defaults to DefaultLimit.
	Limit  int
	Logger Logger
}

// NewStore creates a history store rooted at opts.Home.
func NewStore(opts StoreOpts) *Store {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		home:   opts.Home,
		limit:  limit,
		logger: opts.Logger,
	}
}

// Key identifies a history bucket.
func Key(workspace, workflowPath string) string {
	return workspace + ":" + workflowPath
}

func (s *Store) runsDir() string   { return filepath.Join(s.home, "runs") }
func (s *Store) indexPath() string { return filepath.Join(s.home, "history.json") }

// Record persists a finished run: the full record under runs/<id>.json and
// its summary prepended to the index bucket, truncated at the limit.
func (s *Store) Record(rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.runsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}
	if err := atomicWrite(filepath.Join(s.runsDir(), rec.ID+".json"), data); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}

	index, err := s.readIndex()
	if err != nil {
		return err
	}

	key := Key(rec.Workspace, rec.WorkflowPath)
	bucket := append([]RunSummary{rec.RunSummary}, index[key]...)
	if len(bucket) > s.limit {
		for _, old := range bucket[s.limit:] {
			// Drop the evicted run file; a failure here leaves an orphan,
			// not a corrupt index.
			if err := os.Remove(filepath.Join(s.runsDir(), old.ID+".json")); err != nil && !os.IsNotExist(err) {
				if s.logger != nil {
					s.logger.Warn("failed to remove evicted run file", "run_id", old.ID, "error", err)
				}
			}
		}
		bucket = bucket[:s.limit]
	}
	index[key] = bucket

	return s.writeIndex(index)
}

// History returns the summaries for one workspace/workflow, newest first.
func (s *Store) History(workspace, workflowPath string) ([]RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	return index[Key(workspace, workflowPath)], nil
}

// All returns the whole index.
func (s *Store) All() (map[string][]RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex()
}

// Run loads a full run record by id.
func (s *Store) Run(id string) (*RunRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.runsDir(), id+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &rec, nil
}

// LastCompleted returns the completion time of the most recent finished run
// for the key; the idle trigger predicate consumes this.
func (s *Store) LastCompleted(workspace, workflowPath string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return time.Time{}, false
	}
	bucket := index[Key(workspace, workflowPath)]
	if len(bucket) == 0 {
		return time.Time{}, false
	}
	latest := bucket[0].CompletedAt
	for _, summary := range bucket[1:] {
		if summary.CompletedAt.After(latest) {
			latest = summary.CompletedAt
		}
	}
	return latest, true
}

// Keys returns the index keys in sorted order.
func (s *Store) Keys() ([]string, error) {
	index, err := s.All()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) readIndex() (map[string][]RunSummary, error) {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return make(map[string][]RunSummary), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history index: %w", err)
	}
	index := make(map[string][]RunSummary)
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to decode history index: %w", err)
	}
	return index, nil
}

func (s *Store) writeIndex(index map[string][]RunSummary) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history index: %w", err)
	}
	if err := atomicWrite(s.indexPath(), data); err != nil {
		return fmt.Errorf("failed to write history index: %w", err)
	}
	return nil
}

// atomicWrite replaces path contents via a temp file and rename so readers
// never observe a partial file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
