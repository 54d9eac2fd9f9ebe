// Package triggers runs the cron/idle trigger scheduler. One ticker
// evaluates every registered trigger entry; firing entries start workflow
// runs through the same entry point manual starts use, tagged with the
// trigger source for history.
package triggers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/strandworks/strand/sdk"
)

// DefaultTick is the evaluation interval when none is configured.
const DefaultTick = 10 * time.Second

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Starter begins a workflow run on behalf of a fired trigger.
type Starter interface {
	StartRun(ctx context.Context, workspace, workflowPath, source string) error
}

// History exposes the completion times the idle predicate needs.
type History interface {
	LastCompleted(workspace, workflowPath string) (time.Time, bool)
}

const (
	kindCron = "cron"
	kindIdle = "idle"
)

// entry is one registered trigger node. State is guarded by the scheduler
// mutex.
type entry struct {
	workspace    string
	workflowPath string
	nodeID       string
	kind         string

	schedule cron.Schedule
	nextRun  time.Time

	idle time.Duration
}

// Opts contains options for creating a scheduler.
type Opts struct {
	Tick    time.Duration
	Starter Starter
	History History
	Logger  Logger
}

// Scheduler evaluates registered triggers on a single ticker.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	active  map[string]bool // workflow key -> run in flight

	tick    time.Duration
	starter Starter
	history History
	logger  Logger
}

// NewScheduler creates a scheduler; Start must be called to begin ticking.
func NewScheduler(opts Opts) *Scheduler {
	tick := opts.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{
		active:  make(map[string]bool),
		tick:    tick,
		starter: opts.Starter,
		history: opts.History,
		logger:  opts.Logger,
	}
}

// Register scans a workflow's trigger nodes and adds an entry per cron or
// idle configuration. Trigger nodes without either are manual-only and
// ignored here.
func (s *Scheduler) Register(workspace, workflowPath string, schema *sdk.WorkflowSchema) error {
	now := time.Now()

	var added []*entry
	for i := range schema.Nodes {
		node := &schema.Nodes[i]
		if node.Kind() != sdk.NodeTrigger || node.ParentID != "" {
			continue
		}
		switch {
		case node.Data.Cron != "":
			schedule, err := cron.ParseStandard(node.Data.Cron)
			if err != nil {
				return fmt.Errorf("node %s: invalid cron expression %q: %w", node.ID, node.Data.Cron, err)
			}
			added = append(added, &entry{
				workspace:    workspace,
				workflowPath: workflowPath,
				nodeID:       node.ID,
				kind:         kindCron,
				schedule:     schedule,
				nextRun:      schedule.Next(now),
			})
		case node.Data.IdleMinutes > 0:
			added = append(added, &entry{
				workspace:    workspace,
				workflowPath: workflowPath,
				nodeID:       node.ID,
				kind:         kindIdle,
				idle:         time.Duration(node.Data.IdleMinutes) * time.Minute,
			})
		}
	}

	s.mu.Lock()
	s.entries = append(s.entries, added...)
	s.mu.Unlock()

	for _, e := range added {
		s.logger.Info("trigger registered",
			"workflow", e.workflowPath,
			"node_id", e.nodeID,
			"kind", e.kind,
		)
	}
	return nil
}

// Start runs the evaluation loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("trigger scheduler started", "tick", s.tick.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("trigger scheduler stopped")
			return
		case now := <-ticker.C:
			s.evaluate(ctx, now)
		}
	}
}

// evaluate checks each entry once and fires those that are due. A workflow
// with a triggered run in flight is never started again concurrently.
// Manual and API runs are visible only through history once they complete:
// a finished one resets the idle window, an in-flight one does not block
// a fire.
func (s *Scheduler) evaluate(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		key := e.workspace + ":" + e.workflowPath
		if s.active[key] {
			continue
		}

		var fire bool
		switch e.kind {
		case kindCron:
			if !now.Before(e.nextRun) {
				fire = true
				e.nextRun = e.schedule.Next(now)
			}
		case kindIdle:
			last, ok := s.history.LastCompleted(e.workspace, e.workflowPath)
			if !ok || now.Sub(last) >= e.idle {
				fire = true
			}
		}
		if !fire {
			continue
		}

		s.active[key] = true
		go s.fire(ctx, e, key)
	}
}

func (s *Scheduler) fire(ctx context.Context, e *entry, key string) {
	defer func() {
		s.mu.Lock()
		s.active[key] = false
		s.mu.Unlock()
	}()

	s.logger.Info("trigger fired", "workflow", e.workflowPath, "kind", e.kind, "node_id", e.nodeID)
	if err := s.starter.StartRun(ctx, e.workspace, e.workflowPath, e.kind); err != nil {
		s.logger.Error("triggered run failed to start", "workflow", e.workflowPath, "error", err)
	}
}

// Active reports whether the workflow currently has a triggered run in
// flight.
func (s *Scheduler) Active(workspace, workflowPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[workspace+":"+workflowPath]
}
