package sofsfs_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/tiagoalexbastos/sofs/pkg/mkfs"
	"github.com/tiagoalexbastos/sofs/pkg/sofs"
	"github.com/tiagoalexbastos/sofs/pkg/sofs/sofsfs"
)

var root = sofs.Process{UID: 0, GID: 0}

func newTestFS(t *testing.T, nInodes, nClusters uint32) *sofsfs.FS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vol.sofs")
	if err := mkfs.Format(path, mkfs.Options{Name: "test", NInodes: nInodes, NClusters: nClusters}); err != nil {
		t.Fatalf("mkfs.Format: %v", err)
	}
	fs, err := sofsfs.Open(path)
	if err != nil {
		t.Fatalf("sofsfs.Open: %v", err)
	}
	t.Cleanup(func() { fs.Close() })
	return fs
}

func addFile(t *testing.T, fs *sofsfs.FS, dirIno uint32, name string) uint32 {
	t.Helper()
	n, err := fs.AllocInode(sofs.TypeFile, 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	if err := fs.AddAttachEntry(dirIno, name, n, sofs.OpAdd, root); err != nil {
		t.Fatalf("AddAttachEntry: %v", err)
	}
	return n
}

func addDir(t *testing.T, fs *sofsfs.FS, dirIno uint32, name string) uint32 {
	t.Helper()
	n, err := fs.AllocInode(sofs.TypeDir, 0, 0)
	if err != nil {
		t.Fatalf("AllocInode(dir): %v", err)
	}
	// A fresh inode has no permission bits, and root may only search a
	// directory whose owner, group and other triples all carry X.
	ino, err := fs.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	ino.Mode |= 0755
	if err := fs.WriteInode(n, &ino); err != nil {
		t.Fatalf("WriteInode: %v", err)
	}
	if err := fs.AddAttachEntry(dirIno, name, n, sofs.OpAdd, root); err != nil {
		t.Fatalf("AddAttachEntry(dir): %v", err)
	}
	return n
}

// TestCreateWriteReadBack is scenario S1.
func TestCreateWriteReadBack(t *testing.T) {
	fs := newTestFS(t, 16, 16)
	dzoneFreeBefore := fs.Superblock().DzoneFree

	addFile(t, fs, sofs.RootDirInode, "a")

	written, err := fs.Write("/a", root, 0, []byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if written != 5 {
		t.Fatalf("Write returned %d, want 5", written)
	}

	buf := make([]byte, 5)
	read, err := fs.Read("/a", root, 0, buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if read != 5 || string(buf) != "hello" {
		t.Fatalf("Read returned (%d, %q), want (5, \"hello\")", read, buf)
	}

	st, err := fs.Stat("/a", root)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if st.Size != 5 {
		t.Fatalf("Stat.Size = %d, want 5", st.Size)
	}

	ino, err := fs.ReadInode(st.Inode)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	if ino.Clucount != 1 {
		t.Fatalf("Clucount = %d, want 1", ino.Clucount)
	}
	if got := fs.Superblock().DzoneFree; got != dzoneFreeBefore-1 {
		t.Fatalf("DzoneFree = %d, want %d (decreased by exactly 1)", got, dzoneFreeBefore-1)
	}
}

func TestWriteRejectsDirectory(t *testing.T) {
	fs := newTestFS(t, 16, 16)
	addDir(t, fs, sofs.RootDirInode, "d")

	if _, err := fs.Write("/d", root, 0, []byte("x")); !sofs.IsKind(err, sofs.KindIsDirectory) {
		t.Fatalf("Write(directory) = %v, want KindIsDirectory", err)
	}
	if _, err := fs.Read("/d", root, 0, make([]byte, 1)); !sofs.IsKind(err, sofs.KindIsDirectory) {
		t.Fatalf("Read(directory) = %v, want KindIsDirectory", err)
	}
}

func TestReadRequiresPermission(t *testing.T) {
	fs := newTestFS(t, 16, 16)
	n := addFile(t, fs, sofs.RootDirInode, "secret")
	ino, err := fs.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	ino.Mode = uint16(sofs.TypeFile) | 0600
	ino.Owner = 500
	if err := fs.WriteInode(n, &ino); err != nil {
		t.Fatalf("WriteInode: %v", err)
	}

	intruder := sofs.Process{UID: 999, GID: 999}
	if _, err := fs.Read("/secret", intruder, 0, make([]byte, 1)); !sofs.IsKind(err, sofs.KindAccess) {
		t.Fatalf("Read by a non-owner of a 0600 file = %v, want KindAccess", err)
	}
}

func TestTruncateShrinkFreesClusters(t *testing.T) {
	fs := newTestFS(t, 16, 32)
	addFile(t, fs, sofs.RootDirInode, "a")

	big := bytes.Repeat([]byte{0x7}, 3*sofs.ClusterSize)
	if _, err := fs.Write("/a", root, 0, big); err != nil {
		t.Fatalf("Write: %v", err)
	}
	st, err := fs.Stat("/a", root)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	inoBefore, err := fs.ReadInode(st.Inode)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	if inoBefore.Clucount != 3 {
		t.Fatalf("Clucount before truncate = %d, want 3", inoBefore.Clucount)
	}

	if err := fs.Truncate("/a", root, sofs.ClusterSize); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	inoAfter, err := fs.ReadInode(st.Inode)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	if inoAfter.Size != sofs.ClusterSize {
		t.Fatalf("Size after truncate = %d, want %d", inoAfter.Size, sofs.ClusterSize)
	}
	if inoAfter.Clucount != 1 {
		t.Fatalf("Clucount after truncate = %d, want 1", inoAfter.Clucount)
	}
}

func TestTruncateGrowLeavesHoleUnallocated(t *testing.T) {
	fs := newTestFS(t, 16, 32)
	addFile(t, fs, sofs.RootDirInode, "a")
	if _, err := fs.Write("/a", root, 0, []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	dzoneFreeBefore := fs.Superblock().DzoneFree

	if err := fs.Truncate("/a", root, 10*sofs.ClusterSize); err != nil {
		t.Fatalf("Truncate(grow): %v", err)
	}
	if got := fs.Superblock().DzoneFree; got != dzoneFreeBefore {
		t.Fatalf("DzoneFree changed on a growing truncate: %d -> %d", dzoneFreeBefore, got)
	}

	buf := make([]byte, sofs.ClusterSize)
	if _, err := fs.Read("/a", root, sofs.ClusterSize, buf); err != nil {
		t.Fatalf("Read into the new hole: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("hole byte %d = %#x, want 0", i, b)
		}
	}
}

func TestReaddirListsEntries(t *testing.T) {
	fs := newTestFS(t, 16, 16)
	addFile(t, fs, sofs.RootDirInode, "a")
	addDir(t, fs, sofs.RootDirInode, "b")

	entries, err := fs.Readdir("/", root)
	if err != nil {
		t.Fatalf("Readdir: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	for _, want := range []string{".", "..", "a", "b"} {
		if !names[want] {
			t.Fatalf("Readdir(/) missing entry %q, got %v", want, entries)
		}
	}
}

func TestRenameAcrossDirectories(t *testing.T) {
	fs := newTestFS(t, 16, 16)
	addDir(t, fs, sofs.RootDirInode, "dst")
	addFile(t, fs, sofs.RootDirInode, "a")

	if err := fs.Rename("/a", "/dst/a", root); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := fs.Stat("/a", root); !sofs.IsKind(err, sofs.KindNoEntry) {
		t.Fatalf("old path should no longer resolve, got %v", err)
	}
	if _, err := fs.Stat("/dst/a", root); err != nil {
		t.Fatalf("new path should resolve: %v", err)
	}
}

// TestSymlinkLoopViaRead is scenario S6 exercised through the syscall shim:
// reading through a pair of mutually-referencing symlinks must surface Loop.
func TestSymlinkLoopViaRead(t *testing.T) {
	fs := newTestFS(t, 16, 16)

	mkSymlinkAt(t, fs, "s1", "/s2")
	mkSymlinkAt(t, fs, "s2", "/s1")

	if _, err := fs.Read("/s1/anything", root, 0, make([]byte, 1)); !sofs.IsKind(err, sofs.KindLoop) {
		t.Fatalf("Read(/s1/anything) with a symlink cycle = %v, want KindLoop", err)
	}
}

func mkSymlinkAt(t *testing.T, fs *sofsfs.FS, name, target string) uint32 {
	t.Helper()
	n, err := fs.AllocInode(sofs.TypeSymlink, 0, 0)
	if err != nil {
		t.Fatalf("AllocInode(symlink): %v", err)
	}
	ino, err := fs.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	if _, err := fs.WriteAt(n, &ino, 0, []byte(target)); err != nil {
		t.Fatalf("WriteAt(symlink): %v", err)
	}
	if err := fs.WriteInode(n, &ino); err != nil {
		t.Fatalf("WriteInode: %v", err)
	}
	if err := fs.AddAttachEntry(sofs.RootDirInode, name, n, sofs.OpAdd, root); err != nil {
		t.Fatalf("AddAttachEntry(symlink): %v", err)
	}
	return n
}
