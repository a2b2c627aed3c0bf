package ha

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// pidLock is a single-instance lock implemented via a PID file + flock(2).
// Keep the lock alive by keeping the file descriptor open.
type pidLock struct {
	path string
	f    *os.File
}

// acquirePIDLock acquires an exclusive non-blocking lock at lockPath, writes the
// current PID into the file, and returns a handle that must be released.
func acquirePIDLock(lockPath string) (*pidLock, error) {
	if lockPath == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrLeadershipHeld, err)
	}

	unlock := func(err error) (*pidLock, error) {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		return unlock(fmt.Errorf("truncate lock file: %w", err))
	}
	if _, err := f.Seek(0, 0); err != nil {
		return unlock(fmt.Errorf("seek lock file: %w", err))
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return unlock(fmt.Errorf("write pid: %w", err))
	}
	if err := f.Sync(); err != nil {
		return unlock(fmt.Errorf("sync lock file: %w", err))
	}

	return &pidLock{path: lockPath, f: f}, nil
}

// held reports whether the file at path is still the one this lock holds.
func (l *pidLock) held() bool {
	if l == nil || l.f == nil {
		return false
	}
	mine, err := l.f.Stat()
	if err != nil {
		return false
	}
	onDisk, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	return os.SameFile(mine, onDisk)
}

func (l *pidLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if l.held() {
		_ = os.Remove(l.path)
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
