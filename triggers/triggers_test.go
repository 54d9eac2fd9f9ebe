package triggers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandworks/strand/sdk"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

// fakeStarter records fired runs; release gates StartRun completion so tests
// can hold a run in flight.
type fakeStarter struct {
	fired   chan string
	release chan struct{}
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{
		fired:   make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (f *fakeStarter) StartRun(ctx context.Context, workspace, workflowPath, source string) error {
	f.fired <- workflowPath + "|" + source
	<-f.release
	return nil
}

type fakeHistory struct {
	last time.Time
	ok   bool
}

func (f *fakeHistory) LastCompleted(string, string) (time.Time, bool) { return f.last, f.ok }

func triggerSchema(data sdk.NodeData) *sdk.WorkflowSchema {
	data.NodeType = sdk.NodeTrigger
	return &sdk.WorkflowSchema{
		Version:  3,
		Metadata: sdk.WorkflowMetadata{Name: "scheduled"},
		Nodes:    []sdk.WorkflowNode{{ID: "t1", Data: data}},
	}
}

func newTestScheduler(starter Starter, history History) *Scheduler {
	return NewScheduler(Opts{
		Tick:    time.Hour, // the tests drive evaluate directly
		Starter: starter,
		History: history,
		Logger:  nopLogger{},
	})
}

func TestRegisterCron(t *testing.T) {
	s := newTestScheduler(newFakeStarter(), &fakeHistory{})

	require.NoError(t, s.Register("proj", "wf.yaml", triggerSchema(sdk.NodeData{Cron: "*/5 * * * *"})))
	require.Len(t, s.entries, 1)
	assert.Equal(t, kindCron, s.entries[0].kind)
	assert.False(t, s.entries[0].nextRun.IsZero())

	require.Error(t, s.Register("proj", "bad.yaml", triggerSchema(sdk.NodeData{Cron: "not a cron"})))
}

func TestRegisterIgnoresManualAndNested(t *testing.T) {
	s := newTestScheduler(newFakeStarter(), &fakeHistory{})

	wf := triggerSchema(sdk.NodeData{})
	nested := sdk.WorkflowNode{
		ID:       "t2",
		ParentID: "loop1",
		Data:     sdk.NodeData{NodeType: sdk.NodeTrigger, Cron: "* * * * *"},
	}
	wf.Nodes = append(wf.Nodes, nested)

	require.NoError(t, s.Register("proj", "wf.yaml", wf))
	assert.Empty(t, s.entries)
}

func TestCronFiresWhenDue(t *testing.T) {
	starter := newFakeStarter()
	close(starter.release)
	s := newTestScheduler(starter, &fakeHistory{})

	require.NoError(t, s.Register("proj", "wf.yaml", triggerSchema(sdk.NodeData{Cron: "* * * * *"})))

	// Not due yet.
	s.evaluate(context.Background(), s.entries[0].nextRun.Add(-time.Second))
	select {
	case fired := <-starter.fired:
		t.Fatalf("fired early: %s", fired)
	case <-time.After(50 * time.Millisecond):
	}

	due := s.entries[0].nextRun
	s.evaluate(context.Background(), due)

	select {
	case fired := <-starter.fired:
		assert.Equal(t, "wf.yaml|cron", fired)
	case <-time.After(time.Second):
		t.Fatal("trigger did not fire")
	}
	// The next occurrence is scheduled past the fire time.
	assert.True(t, s.entries[0].nextRun.After(due))
}

func TestIdleFires(t *testing.T) {
	starter := newFakeStarter()
	close(starter.release)

	// No completed run on record fires immediately.
	s := newTestScheduler(starter, &fakeHistory{ok: false})
	require.NoError(t, s.Register("proj", "wf.yaml", triggerSchema(sdk.NodeData{IdleMinutes: 30})))
	s.evaluate(context.Background(), time.Now())
	select {
	case fired := <-starter.fired:
		assert.Equal(t, "wf.yaml|idle", fired)
	case <-time.After(time.Second):
		t.Fatal("idle trigger did not fire")
	}
}

func TestIdleRespectsRecentRun(t *testing.T) {
	starter := newFakeStarter()
	close(starter.release)
	now := time.Now()

	s := newTestScheduler(starter, &fakeHistory{last: now.Add(-10 * time.Minute), ok: true})
	require.NoError(t, s.Register("proj", "wf.yaml", triggerSchema(sdk.NodeData{IdleMinutes: 30})))

	s.evaluate(context.Background(), now)
	select {
	case fired := <-starter.fired:
		t.Fatalf("fired despite recent run: %s", fired)
	case <-time.After(50 * time.Millisecond):
	}

	// Past the idle window it fires.
	s.evaluate(context.Background(), now.Add(25*time.Minute))
	select {
	case <-starter.fired:
	case <-time.After(time.Second):
		t.Fatal("idle trigger did not fire after window")
	}
}

func TestNoConcurrentRuns(t *testing.T) {
	starter := newFakeStarter()
	s := newTestScheduler(starter, &fakeHistory{ok: false})
	require.NoError(t, s.Register("proj", "wf.yaml", triggerSchema(sdk.NodeData{IdleMinutes: 1})))

	s.evaluate(context.Background(), time.Now())
	select {
	case <-starter.fired:
	case <-time.After(time.Second):
		t.Fatal("trigger did not fire")
	}
	assert.True(t, s.Active("proj", "wf.yaml"))

	// While the first run is in flight a due trigger is skipped.
	s.evaluate(context.Background(), time.Now())
	select {
	case <-starter.fired:
		t.Fatal("started a concurrent run")
	case <-time.After(50 * time.Millisecond):
	}

	close(starter.release)
	require.Eventually(t, func() bool {
		return !s.Active("proj", "wf.yaml")
	}, time.Second, 10*time.Millisecond)
}
