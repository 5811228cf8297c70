package sofs_test

import (
	"testing"

	"github.com/tiagoalexbastos/sofs/pkg/sofs"
)

func TestAllocInodeFreeInodeRoundTrip(t *testing.T) {
	fs := newTestFS(t, 16, 16)

	sbBefore := fs.Superblock()
	n, err := fs.AllocInode(sofs.TypeFile, 1000, 1000)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	if n == sofs.RootDirInode {
		t.Fatalf("AllocInode returned the root inode number")
	}
	if got := fs.Superblock().Ifree; got != sbBefore.Ifree-1 {
		t.Fatalf("Ifree after alloc = %d, want %d", got, sbBefore.Ifree-1)
	}

	ino, err := fs.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	if ino.Type() != uint16(sofs.TypeFile) {
		t.Fatalf("allocated inode has type %#x, want TypeFile", ino.Type())
	}
	if ino.Refcount != 0 {
		t.Fatalf("freshly allocated inode Refcount = %d, want 0", ino.Refcount)
	}

	if err := fs.FreeInode(n); err != nil {
		t.Fatalf("FreeInode: %v", err)
	}
	if got := fs.Superblock().Ifree; got != sbBefore.Ifree {
		t.Fatalf("Ifree after free = %d, want %d (back to start)", got, sbBefore.Ifree)
	}

	// A freed inode cannot be read through ReadInode (it is free).
	if _, err := fs.ReadInode(n); !sofs.IsKind(err, sofs.KindInvalidArgument) {
		t.Fatalf("ReadInode on a freed inode = %v, want KindInvalidArgument", err)
	}
}

func TestAllocInodeExhaustion(t *testing.T) {
	fs := newTestFS(t, 4, 16)

	var allocated []uint32
	for {
		n, err := fs.AllocInode(sofs.TypeFile, 0, 0)
		if err != nil {
			if !sofs.IsKind(err, sofs.KindNoSpace) {
				t.Fatalf("AllocInode failed with unexpected error: %v", err)
			}
			break
		}
		allocated = append(allocated, n)
		if len(allocated) > 100 {
			t.Fatalf("AllocInode never reported KindNoSpace")
		}
	}
	if len(allocated) != 3 {
		// 4 inodes total, inode 0 is the root; 3 are allocatable.
		t.Fatalf("allocated %d inodes before exhaustion, want 3", len(allocated))
	}
}

func TestFreeInodeRejectsRootAndOutOfRange(t *testing.T) {
	fs := newTestFS(t, 16, 16)

	if err := fs.FreeInode(0); !sofs.IsKind(err, sofs.KindInvalidArgument) {
		t.Fatalf("FreeInode(0) = %v, want KindInvalidArgument", err)
	}
	if err := fs.FreeInode(1000); !sofs.IsKind(err, sofs.KindInvalidArgument) {
		t.Fatalf("FreeInode(out of range) = %v, want KindInvalidArgument", err)
	}
}

func TestFreeInodeRejectsNonzeroRefcount(t *testing.T) {
	fs := newTestFS(t, 16, 16)

	n, err := fs.AllocInode(sofs.TypeFile, 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	ino, err := fs.ReadInode(n)
	if err != nil {
		t.Fatalf("ReadInode: %v", err)
	}
	ino.Refcount = 1
	if err := fs.WriteInode(n, &ino); err != nil {
		t.Fatalf("WriteInode: %v", err)
	}

	if err := fs.FreeInode(n); !sofs.IsKind(err, sofs.KindInconsistentInode) {
		t.Fatalf("FreeInode with Refcount=1 = %v, want KindInconsistentInode", err)
	}
}

func TestFreeInodeRejectsAlreadyFree(t *testing.T) {
	fs := newTestFS(t, 16, 16)

	n, err := fs.AllocInode(sofs.TypeFile, 0, 0)
	if err != nil {
		t.Fatalf("AllocInode: %v", err)
	}
	if err := fs.FreeInode(n); err != nil {
		t.Fatalf("FreeInode: %v", err)
	}
	if err := fs.FreeInode(n); !sofs.IsKind(err, sofs.KindInvalidArgument) {
		t.Fatalf("FreeInode on an already-free inode = %v, want KindInvalidArgument", err)
	}
}

// TestFreeInodeRoundTripsAtEveryListPosition exercises the doubly-linked
// free list across a handful of alloc/free cycles, checking that inodes
// keep round-tripping cleanly regardless of list position (head, tail, sole
// survivor).
func TestFreeInodeRoundTripsAtEveryListPosition(t *testing.T) {
	fs := newTestFS(t, 8, 16)

	var ns []uint32
	for i := 0; i < 7; i++ {
		n, err := fs.AllocInode(sofs.TypeFile, 0, 0)
		if err != nil {
			t.Fatalf("AllocInode #%d: %v", i, err)
		}
		ns = append(ns, n)
	}
	if _, err := fs.AllocInode(sofs.TypeFile, 0, 0); !sofs.IsKind(err, sofs.KindNoSpace) {
		t.Fatalf("expected exhaustion, got %v", err)
	}

	for _, n := range ns {
		if err := fs.FreeInode(n); err != nil {
			t.Fatalf("FreeInode(%d): %v", n, err)
		}
	}

	for i := 0; i < 7; i++ {
		if _, err := fs.AllocInode(sofs.TypeFile, 0, 0); err != nil {
			t.Fatalf("re-AllocInode #%d after freeing all: %v", i, err)
		}
	}
}
