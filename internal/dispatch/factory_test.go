package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/jobcluster/internal/config"
	"github.com/mattjoyce/jobcluster/internal/jobgraph"
)

type countingSource struct {
	inner jobgraph.Source
	calls int
}

func (s *countingSource) Retrieve(ctx context.Context, cfg *config.Config) (*jobgraph.JobGraph, error) {
	s.calls++
	return s.inner.Retrieve(ctx, cfg)
}

func TestFactoryCreatesDispatcher(t *testing.T) {
	h := newHarness(t)
	src := &countingSource{inner: jobgraph.StaticSource{Graph: testGraph("J1")}}
	cfg := config.Defaults()
	cfg.Execution.Mode = "DETACHED"

	d, err := NewFactory(src).CreateDispatcher(context.Background(), cfg, h.svc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, "J1", d.JobID())
	assert.Equal(t, ModeDetached, d.Mode())
}

func TestFactoryRejectsUnknownMode(t *testing.T) {
	h := newHarness(t)
	src := &countingSource{inner: jobgraph.StaticSource{Graph: testGraph("J1")}}
	cfg := config.Defaults()
	cfg.Execution.Mode = "BATCH"

	d, err := NewFactory(src).CreateDispatcher(context.Background(), cfg, h.svc)
	require.Error(t, err)
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), `"BATCH"`)

	_, registered := h.rpc.Lookup(DispatcherName)
	assert.False(t, registered, "no dispatcher is built for an invalid mode")
}

func TestFactoryRetrievalFailureAbortsBootstrap(t *testing.T) {
	h := newHarness(t)
	cfg := config.Defaults()
	cfg.Execution.JobGraph = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := NewFactory(jobgraph.FileSource{}).CreateDispatcher(context.Background(), cfg, h.svc)
	require.Error(t, err)

	var rerr *jobgraph.RetrievalError
	assert.True(t, errors.As(err, &rerr))
	_, registered := h.rpc.Lookup(DispatcherName)
	assert.False(t, registered)
}

func TestFactoryMissingServices(t *testing.T) {
	cfg := config.Defaults()
	src := jobgraph.StaticSource{Graph: testGraph("J1")}

	_, err := NewFactory(src).CreateDispatcher(context.Background(), cfg, &Services{})
	assert.ErrorIs(t, err, ErrBuilder)
}
