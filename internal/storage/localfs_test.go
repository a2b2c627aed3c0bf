package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func fixedFS(name string, seen *string) FSTypeFunc {
	return func(path string) (string, error) {
		if seen != nil {
			*seen = path
		}
		return name, nil
	}
}

func TestRequireLocal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsType  string
		wantNet bool
	}{
		{name: "ext4 magic", fsType: "0xef53"},
		{name: "apfs", fsType: "apfs"},
		{name: "nfs", fsType: "nfs", wantNet: true},
		{name: "smb uppercase", fsType: "SMBFS", wantNet: true},
		{name: "sshfs", fsType: "fuse.sshfs", wantNet: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "locks")
			err := requireLocal("high_availability.lock_dir", path, fixedFS(tt.fsType, nil))

			var nerr *NetworkFSError
			if got := errors.As(err, &nerr); got != tt.wantNet {
				t.Fatalf("requireLocal(%s) = %v, want network error %v", tt.fsType, err, tt.wantNet)
			}
			if tt.wantNet && (nerr.Setting != "high_availability.lock_dir" || nerr.Path != path) {
				t.Fatalf("unexpected error fields: %+v", nerr)
			}
			if !tt.wantNet && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRequireLocalChecksNearestExistingAncestor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var seen string
	if err := requireLocal("state.path", filepath.Join(root, "a", "b", "state.db"), fixedFS("ext4", &seen)); err != nil {
		t.Fatalf("requireLocal: %v", err)
	}
	if seen != root {
		t.Fatalf("inspected %q, want %q", seen, root)
	}
}

func TestRequireLocalEmptyPath(t *testing.T) {
	t.Parallel()

	if err := requireLocal("artifacts.dir", " ", fixedFS("ext4", nil)); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRequireLocalDetectorFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("statfs failed")
	err := requireLocal("state.path", t.TempDir(), func(string) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected detector error, got %v", err)
	}
}

func TestOpenSQLiteOnLocalDisk(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = db.Close()
}
