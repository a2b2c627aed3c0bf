package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSTypeFunc names the filesystem holding an existing path.
type FSTypeFunc func(path string) (string, error)

// NetworkFSError reports a lock-bearing path on a network filesystem, where
// neither SQLite locking nor flock(2) leadership can be trusted.
type NetworkFSError struct {
	// Setting is the config key the path came from.
	Setting string
	Path    string
	FSType  string
}

func (e *NetworkFSError) Error() string {
	return fmt.Sprintf("%s %q is on network filesystem %q; file locks are unreliable there, move it to local disk",
		e.Setting, e.Path, e.FSType)
}

// RequireLocal fails with a *NetworkFSError when path, or its nearest
// existing ancestor, is on a network filesystem.
func RequireLocal(setting, path string) error {
	return requireLocal(setting, path, filesystemType)
}

func requireLocal(setting, path string, fsType FSTypeFunc) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%s is empty", setting)
	}

	existing, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("%s: %w", setting, err)
	}
	name, err := fsType(existing)
	if err != nil {
		return fmt.Errorf("%s: detect filesystem of %q: %w", setting, existing, err)
	}
	if networkFS(name) {
		return &NetworkFSError{Setting: setting, Path: path, FSType: name}
	}
	return nil
}

// existingAncestor walks up from path until something exists, so settings
// pointing at directories that are created later can still be checked.
func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", p, err)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor of %q", path)
		}
		p = parent
	}
}

func networkFS(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nfs", "nfs4", "cifs", "smbfs", "smb2", "afpfs", "webdav", "fuse.sshfs":
		return true
	}
	return false
}
