// Package ha grants the dispatcher leadership for its job. Leadership is a
// PID lock file per job; losing the file revokes leadership.
package ha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattjoyce/jobcluster/internal/log"
	"github.com/mattjoyce/jobcluster/internal/storage"
)

var (
	// ErrLeadershipHeld means another process holds leadership for the job.
	ErrLeadershipHeld = errors.New("leadership held by another process")
	// ErrLeadershipLost is passed to the revocation callback.
	ErrLeadershipLost = errors.New("leadership lost")
)

var requireLocal = storage.RequireLocal

// LeaderElection grants and revokes leadership for one job.
type LeaderElection interface {
	// Acquire blocks until leadership is granted or fails. onRevoked is called
	// at most once if leadership is later lost.
	Acquire(ctx context.Context, onRevoked func(error)) error
	Release() error
}

// FileServices hands out file-lock based leader elections rooted at one directory.
type FileServices struct {
	dir           string
	checkInterval time.Duration
}

// NewFileServices returns services that keep lock files in dir.
func NewFileServices(dir string, checkInterval time.Duration) (*FileServices, error) {
	if dir == "" {
		return nil, fmt.Errorf("lock directory is empty")
	}
	if checkInterval <= 0 {
		return nil, fmt.Errorf("check interval must be > 0")
	}
	if err := requireLocal("high_availability.lock_dir", dir); err != nil {
		return nil, err
	}
	return &FileServices{dir: dir, checkInterval: checkInterval}, nil
}

// LeaderElection returns the election for jobID.
func (s *FileServices) LeaderElection(jobID string) LeaderElection {
	return &FileElection{
		path:          filepath.Join(s.dir, jobID+".lock"),
		checkInterval: s.checkInterval,
		logger:        log.WithJob(jobID).With("component", "ha"),
	}
}

// FileElection is a LeaderElection backed by a PID lock file.
type FileElection struct {
	path          string
	checkInterval time.Duration
	logger        *slog.Logger

	mu   sync.Mutex
	lock *pidLock
	stop chan struct{}
	done chan struct{}
}

var _ LeaderElection = (*FileElection)(nil)

// Path returns the lock file path.
func (e *FileElection) Path() string { return e.path }

func (e *FileElection) Acquire(ctx context.Context, onRevoked func(error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lock != nil {
		return fmt.Errorf("leadership already acquired for %s", e.path)
	}

	l, err := acquirePIDLock(e.path)
	if err != nil {
		return fmt.Errorf("acquire leadership: %w", err)
	}
	e.lock = l
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.watch(l, e.stop, e.done, onRevoked)

	e.logger.Info("leadership acquired", "lock", e.path)
	return nil
}

func (e *FileElection) watch(l *pidLock, stop, done chan struct{}, onRevoked func(error)) {
	defer close(done)
	ticker := time.NewTicker(e.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if l.held() {
				continue
			}
			e.logger.Error("leadership lost", "lock", e.path)
			if onRevoked != nil {
				onRevoked(fmt.Errorf("%w: lock file %s was removed or replaced", ErrLeadershipLost, e.path))
			}
			return
		}
	}
}

func (e *FileElection) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lock == nil {
		return nil
	}

	close(e.stop)
	<-e.done
	err := e.lock.release()
	e.lock = nil
	e.logger.Info("leadership released", "lock", e.path)
	return err
}
