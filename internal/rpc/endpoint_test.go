package rpc

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/jobcluster/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

type recordingFailure struct {
	mu   sync.Mutex
	errs []error
	got  chan struct{}
}

func newRecordingFailure() *recordingFailure {
	return &recordingFailure{got: make(chan struct{}, 1)}
}

func (r *recordingFailure) OnFatalError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	select {
	case r.got <- struct{}{}:
	default:
	}
}

func TestEndpointProcessesMessagesInOrder(t *testing.T) {
	svc := NewService(nil)
	defer svc.Close()

	var seen []int
	ep, err := svc.Register("counter", HandlerFunc(func(_ context.Context, msg any) (any, error) {
		switch m := msg.(type) {
		case int:
			seen = append(seen, m)
			return nil, nil
		case string:
			return len(seen), nil
		}
		return nil, errors.New("unknown message")
	}))
	require.NoError(t, err)

	// Queued before start.
	require.NoError(t, ep.Tell(1))
	ep.Start()
	for i := 2; i <= 50; i++ {
		require.NoError(t, ep.Tell(i))
	}

	n, err := ep.Ask(context.Background(), "count")
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	for i, v := range seen {
		assert.Equal(t, i+1, v)
	}
}

func TestEndpointAskReturnsHandlerError(t *testing.T) {
	svc := NewService(nil)
	defer svc.Close()

	ep, err := svc.Register("err", HandlerFunc(func(context.Context, any) (any, error) {
		return nil, errors.New("nope")
	}))
	require.NoError(t, err)
	ep.Start()

	_, err = ep.Ask(context.Background(), struct{}{})
	assert.EqualError(t, err, "nope")
}

func TestEndpointAskContextCanceled(t *testing.T) {
	svc := NewService(nil)
	defer svc.Close()

	release := make(chan struct{})
	ep, err := svc.Register("slow", HandlerFunc(func(context.Context, any) (any, error) {
		<-release
		return nil, nil
	}))
	require.NoError(t, err)
	ep.Start()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = ep.Ask(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEndpointStop(t *testing.T) {
	svc := NewService(nil)
	ep, err := svc.Register("stop", HandlerFunc(func(context.Context, any) (any, error) { return "ok", nil }))
	require.NoError(t, err)
	ep.Start()

	ep.Stop()
	<-ep.Done()

	assert.ErrorIs(t, ep.Tell(1), ErrEndpointStopped)
	_, err = ep.Ask(context.Background(), 1)
	assert.ErrorIs(t, err, ErrEndpointStopped)

	// Stopping twice is harmless, as is stopping an endpoint that never started.
	ep.Stop()
	idle, err := svc.Register("idle", HandlerFunc(func(context.Context, any) (any, error) { return nil, nil }))
	require.NoError(t, err)
	idle.Stop()
	<-idle.Done()
}

func TestEndpointPanicIsFatal(t *testing.T) {
	fatal := newRecordingFailure()
	svc := NewService(fatal)
	defer svc.Close()

	ep, err := svc.Register("boom", HandlerFunc(func(context.Context, any) (any, error) {
		panic("kaboom")
	}))
	require.NoError(t, err)
	ep.Start()

	_, err = ep.Ask(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	select {
	case <-fatal.got:
	case <-time.After(time.Second):
		t.Fatal("fatal handler not called")
	}
	<-ep.Done()
	assert.ErrorIs(t, ep.Tell(2), ErrEndpointStopped)
}

func TestServiceRegistry(t *testing.T) {
	svc := NewService(nil)
	h := HandlerFunc(func(context.Context, any) (any, error) { return nil, nil })

	ep, err := svc.Register("a", h)
	require.NoError(t, err)

	_, err = svc.Register("a", h)
	assert.ErrorIs(t, err, ErrEndpointExists)

	_, err = svc.Register("", h)
	assert.Error(t, err)

	got, ok := svc.Lookup("a")
	require.True(t, ok)
	assert.Same(t, ep, got)

	svc.Unregister("a")
	_, ok = svc.Lookup("a")
	assert.False(t, ok)
	<-ep.Done()

	require.NoError(t, svc.Close())
	_, err = svc.Register("b", h)
	assert.ErrorIs(t, err, ErrEndpointStopped)
}
