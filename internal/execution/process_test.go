package execution

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/jobcluster/internal/jobgraph"
	"github.com/mattjoyce/jobcluster/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

type countingTarget struct {
	beats atomic.Int64
}

func (c *countingTarget) ReceiveHeartbeat(string) { c.beats.Add(1) }

func shVertex(name, script string) jobgraph.Vertex {
	return jobgraph.Vertex{Name: name, Command: "/bin/sh", Args: []string{"-c", script}}
}

func runGraph(t *testing.T, g *jobgraph.JobGraph, hb HeartbeatTarget, interval time.Duration, act func(Runner)) *ArchivedExecutionGraph {
	t.Helper()

	f := &ProcessRunnerFactory{
		heartbeatInterval: interval,
		gracePeriod:       200 * time.Millisecond,
		logger:            log.WithComponent("runner-test"),
	}

	done := make(chan *ArchivedExecutionGraph, 1)
	r, err := f.NewRunner(RunnerContext{
		Graph:       g,
		AttemptID:   "attempt-1",
		Heartbeat:   hb,
		HeartbeatID: "runner",
		OnTerminal:  func(a *ArchivedExecutionGraph) { done <- a },
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	if act != nil {
		act(r)
	}

	select {
	case a := <-done:
		return a
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not reach a terminal state")
		return nil
	}
}

func TestProcessRunnerFinished(t *testing.T) {
	g := &jobgraph.JobGraph{ID: "J1", Slots: 1, Vertices: []jobgraph.Vertex{
		shVertex("a", "exit 0"),
		shVertex("b", `test "$JOBCLUSTER_JOB_ID" = J1 && test "$JOBCLUSTER_VERTEX" = b && test "$GREETING" = hi`),
	}}
	g.Vertices[1].Env = map[string]string{"GREETING": "hi"}

	a := runGraph(t, g, nil, 0, nil)

	assert.Equal(t, JobStatusFinished, a.State)
	assert.Equal(t, "J1", a.JobID)
	assert.Empty(t, a.FailureCause)
	require.Len(t, a.Vertices, 2)
	for _, v := range a.Vertices {
		assert.Equal(t, JobStatusFinished, v.State, v.Name)
		assert.NotNil(t, v.StartedAt)
	}
}

func TestProcessRunnerFailedStopsRemainingVertices(t *testing.T) {
	g := &jobgraph.JobGraph{ID: "J2", Slots: 1, Vertices: []jobgraph.Vertex{
		shVertex("a", "echo boom >&2; exit 3"),
		shVertex("b", "exit 0"),
	}}

	a := runGraph(t, g, nil, 0, nil)

	assert.Equal(t, JobStatusFailed, a.State)
	assert.Contains(t, a.FailureCause, `vertex "a"`)
	assert.Equal(t, 3, a.Vertices[0].ExitCode)
	assert.Contains(t, a.Vertices[0].Stderr, "boom")
	assert.Equal(t, JobStatusCanceled, a.Vertices[1].State)
}

func TestProcessRunnerTimeout(t *testing.T) {
	v := shVertex("slow", "sleep 5")
	v.Timeout = 100 * time.Millisecond
	g := &jobgraph.JobGraph{ID: "J3", Slots: 1, Vertices: []jobgraph.Vertex{v}}

	a := runGraph(t, g, nil, 0, nil)

	assert.Equal(t, JobStatusFailed, a.State)
	assert.Contains(t, a.Vertices[0].Error, "timed out")
}

func TestProcessRunnerCancel(t *testing.T) {
	g := &jobgraph.JobGraph{ID: "J4", Slots: 1, Vertices: []jobgraph.Vertex{
		shVertex("slow", "sleep 5"),
		shVertex("never", "exit 0"),
	}}

	a := runGraph(t, g, nil, 0, func(r Runner) {
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, r.Cancel(context.Background()))
	})

	assert.Equal(t, JobStatusCanceled, a.State)
	assert.Equal(t, JobStatusCanceled, a.Vertices[1].State)
}

func TestProcessRunnerHeartbeats(t *testing.T) {
	target := &countingTarget{}
	g := &jobgraph.JobGraph{ID: "J5", Slots: 1, Vertices: []jobgraph.Vertex{shVertex("a", "sleep 0.3")}}

	a := runGraph(t, g, target, 50*time.Millisecond, nil)

	assert.Equal(t, JobStatusFinished, a.State)
	assert.GreaterOrEqual(t, target.beats.Load(), int64(2))
}

func TestProcessRunnerStartTwice(t *testing.T) {
	f := NewProcessRunnerFactory(0)
	done := make(chan struct{})
	r, err := f.NewRunner(RunnerContext{
		Graph:      &jobgraph.JobGraph{ID: "J6", Slots: 1, Vertices: []jobgraph.Vertex{shVertex("a", "exit 0")}},
		OnTerminal: func(*ArchivedExecutionGraph) { close(done) },
	})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))
	<-done
}

func TestNewRunnerValidation(t *testing.T) {
	f := NewProcessRunnerFactory(time.Second)

	_, err := f.NewRunner(RunnerContext{OnTerminal: func(*ArchivedExecutionGraph) {}})
	assert.Error(t, err)

	_, err = f.NewRunner(RunnerContext{Graph: &jobgraph.JobGraph{ID: "x"}})
	assert.Error(t, err)
}

func TestApplicationStatusFromJobStatus(t *testing.T) {
	tests := []struct {
		in   JobStatus
		want ApplicationStatus
		code int
	}{
		{JobStatusFinished, ApplicationSucceeded, 0},
		{JobStatusFailed, ApplicationFailed, 1443},
		{JobStatusCanceled, ApplicationCanceled, 0},
		{JobStatusRunning, ApplicationUnknown, 1445},
	}
	for _, tt := range tests {
		got := ApplicationStatusFromJobStatus(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.code, got.ExitCode(), tt.in)
	}

	assert.True(t, JobStatusCanceled.IsGloballyTerminal())
	assert.False(t, JobStatusRunning.IsGloballyTerminal())
}
