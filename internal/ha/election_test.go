package ha

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/jobcluster/internal/log"
	"github.com/mattjoyce/jobcluster/internal/storage"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

func TestAcquireWritesPID(t *testing.T) {
	t.Parallel()

	svc, err := NewFileServices(t.TempDir(), time.Hour)
	require.NoError(t, err)
	el := svc.LeaderElection("J1").(*FileElection)

	require.NoError(t, el.Acquire(context.Background(), nil))
	t.Cleanup(func() { _ = el.Release() })

	b, err := os.ReadFile(el.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(b)))
}

func TestSecondAcquireFails(t *testing.T) {
	t.Parallel()

	svc, err := NewFileServices(t.TempDir(), time.Hour)
	require.NoError(t, err)

	first := svc.LeaderElection("J1")
	require.NoError(t, first.Acquire(context.Background(), nil))

	second := svc.LeaderElection("J1")
	err = second.Acquire(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLeadershipHeld)

	require.NoError(t, first.Release())
	require.NoError(t, second.Acquire(context.Background(), nil))
	require.NoError(t, second.Release())
}

func TestRemovedLockRevokesLeadership(t *testing.T) {
	t.Parallel()

	svc, err := NewFileServices(t.TempDir(), 20*time.Millisecond)
	require.NoError(t, err)
	el := svc.LeaderElection("J1").(*FileElection)

	revoked := make(chan error, 1)
	require.NoError(t, el.Acquire(context.Background(), func(err error) { revoked <- err }))
	t.Cleanup(func() { _ = el.Release() })

	require.NoError(t, os.Remove(el.Path()))

	select {
	case err := <-revoked:
		assert.ErrorIs(t, err, ErrLeadershipLost)
	case <-time.After(2 * time.Second):
		t.Fatal("leadership was not revoked")
	}
}

func TestReleaseRemovesLockFile(t *testing.T) {
	t.Parallel()

	svc, err := NewFileServices(t.TempDir(), time.Hour)
	require.NoError(t, err)
	el := svc.LeaderElection("J1").(*FileElection)

	require.NoError(t, el.Acquire(context.Background(), nil))
	require.NoError(t, el.Release())
	require.NoError(t, el.Release())

	_, err = os.Stat(el.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestNewFileServicesValidation(t *testing.T) {
	_, err := NewFileServices("", time.Second)
	assert.Error(t, err)
	_, err = NewFileServices(t.TempDir(), 0)
	assert.Error(t, err)
}

func TestNewFileServicesRejectsNetworkLockDir(t *testing.T) {
	var checked string
	orig := requireLocal
	requireLocal = func(setting, path string) error {
		checked = path
		return &storage.NetworkFSError{Setting: setting, Path: path, FSType: "nfs"}
	}
	t.Cleanup(func() { requireLocal = orig })

	dir := t.TempDir()
	_, err := NewFileServices(dir, time.Second)

	var nerr *storage.NetworkFSError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "high_availability.lock_dir", nerr.Setting)
	assert.Equal(t, dir, checked)
}
