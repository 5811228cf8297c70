// Package sofsfs implements SOFS's L5 syscall shim: the thin,
// POSIX-shaped operations (Read, Write, Truncate, Readdir, Rename) that
// sequence path resolution, permission checks, and the L1-L4 primitives in
// pkg/sofs into the handful of calls a higher-level file-system front end
// would actually make. Grounded on soRead.c/soWrite.c/soTruncate.c/
// soReaddir.c/soRename.c (original_source/src/sofs15/sofs_ifuncs_5).
package sofsfs

import (
	"github.com/tiagoalexbastos/sofs/pkg/sofs"
)

// FS wraps an open sofs.FS with the syscall-shaped operation set.
type FS struct {
	*sofs.FS
}

// Open mounts the volume at path and returns its syscall-shim view.
func Open(path string) (*FS, error) {
	fs, err := sofs.Open(path)
	if err != nil {
		return nil, err
	}
	return &FS{FS: fs}, nil
}

// Stat describes the subset of an inode's metadata a syscall caller cares
// about (this is not spec.md's os.FileInfo — it's a plain value the CLI
// tools format for display).
type Stat struct {
	Inode    uint32
	Mode     uint16
	Refcount uint16
	Owner    uint32
	Group    uint32
	Size     int64
	Atime    uint32
	Mtime    uint32
}

func statOf(n uint32, ino *sofs.Inode) Stat {
	return Stat{
		Inode:    n,
		Mode:     ino.Mode,
		Refcount: ino.Refcount,
		Owner:    ino.Owner,
		Group:    ino.Group,
		Size:     ino.Size,
		Atime:    ino.Atime(),
		Mtime:    ino.Mtime(),
	}
}

// Stat resolves path and returns its inode metadata.
func (fs *FS) Stat(path string, p sofs.Process) (Stat, error) {
	n, err := fs.TraversePath(path, p, true)
	if err != nil {
		return Stat{}, err
	}
	ino, err := fs.ReadInode(n)
	if err != nil {
		return Stat{}, err
	}
	return statOf(n, &ino), nil
}

// Lstat is Stat but does not follow a final-component symlink.
func (fs *FS) Lstat(path string, p sofs.Process) (Stat, error) {
	n, err := fs.TraversePath(path, p, false)
	if err != nil {
		return Stat{}, err
	}
	ino, err := fs.ReadInode(n)
	if err != nil {
		return Stat{}, err
	}
	return statOf(n, &ino), nil
}
