package sofs_test

import (
	"path/filepath"
	"testing"

	"github.com/tiagoalexbastos/sofs/pkg/mkfs"
	"github.com/tiagoalexbastos/sofs/pkg/sofs"
)

// newTestFS formats a small volume in a temp file and opens it, registering
// a cleanup to close it when the test finishes.
func newTestFS(t *testing.T, nInodes, nClusters uint32) *sofs.FS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vol.sofs")
	if err := mkfs.Format(path, mkfs.Options{Name: "test", NInodes: nInodes, NClusters: nClusters}); err != nil {
		t.Fatalf("mkfs.Format: %v", err)
	}
	fs, err := sofs.Open(path)
	if err != nil {
		t.Fatalf("sofs.Open: %v", err)
	}
	t.Cleanup(func() { fs.Close() })
	return fs
}

// setPerm gives inode n the rwx bits perm. AllocInode leaves a fresh inode
// with no permission bits, and root may only search a directory whose
// owner, group and other triples all carry X.
func setPerm(t *testing.T, fs *sofs.FS, n uint32, perm uint16) {
	t.Helper()
	ino, err := fs.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	ino.Mode |= perm
	if err := fs.WriteInode(n, &ino); err != nil {
		t.Fatalf("WriteInode: %v", err)
	}
}

var root = sofs.Process{UID: 0, GID: 0}

func owner(uid, gid uint32) sofs.Process { return sofs.Process{UID: uid, GID: gid} }
