package sofs_test

import (
	"testing"

	"github.com/tiagoalexbastos/sofs/pkg/sofs"
)

func TestAllocClusterFreeClusterRoundTrip(t *testing.T) {
	fs := newTestFS(t, 16, 16)

	before := fs.Superblock().DzoneFree
	c, err := fs.AllocCluster()
	if err != nil {
		t.Fatalf("AllocCluster: %v", err)
	}
	if c == 0 {
		t.Fatalf("AllocCluster returned cluster 0, which belongs to the root directory")
	}
	if got := fs.Superblock().DzoneFree; got != before-1 {
		t.Fatalf("DzoneFree after alloc = %d, want %d", got, before-1)
	}

	if err := fs.FreeCluster(c); err != nil {
		t.Fatalf("FreeCluster: %v", err)
	}
	if got := fs.Superblock().DzoneFree; got != before {
		t.Fatalf("DzoneFree after free = %d, want %d", got, before)
	}
}

func TestFreeClusterRejectsReservedAndOutOfRange(t *testing.T) {
	fs := newTestFS(t, 16, 16)

	if err := fs.FreeCluster(0); !sofs.IsKind(err, sofs.KindInvalidArgument) {
		t.Fatalf("FreeCluster(0) = %v, want KindInvalidArgument", err)
	}
	if err := fs.FreeCluster(9999); !sofs.IsKind(err, sofs.KindInvalidArgument) {
		t.Fatalf("FreeCluster(out of range) = %v, want KindInvalidArgument", err)
	}
}

// TestAllocClusterExhaustsAndRefills drives enough alloc/free traffic to
// force both replenish (ring -> retrieval cache) and deplete (insertion
// cache -> ring) to run at least once, not just the single-cache fast path.
func TestAllocClusterExhaustsAndRefills(t *testing.T) {
	fs := newTestFS(t, 16, 400)

	total := fs.Superblock().DzoneFree
	var allocated []uint32
	for i := uint32(0); i < total; i++ {
		c, err := fs.AllocCluster()
		if err != nil {
			t.Fatalf("AllocCluster #%d: %v", i, err)
		}
		allocated = append(allocated, c)
	}
	if _, err := fs.AllocCluster(); !sofs.IsKind(err, sofs.KindNoSpace) {
		t.Fatalf("AllocCluster after exhaustion = %v, want KindNoSpace", err)
	}

	for _, c := range allocated {
		if err := fs.FreeCluster(c); err != nil {
			t.Fatalf("FreeCluster(%d): %v", c, err)
		}
	}
	if got := fs.Superblock().DzoneFree; got != total {
		t.Fatalf("DzoneFree after freeing everything = %d, want %d", got, total)
	}

	// Every cluster must be allocatable again, and no duplicates handed out.
	seen := make(map[uint32]bool)
	for i := uint32(0); i < total; i++ {
		c, err := fs.AllocCluster()
		if err != nil {
			t.Fatalf("re-AllocCluster #%d: %v", i, err)
		}
		if seen[c] {
			t.Fatalf("cluster %d allocated twice", c)
		}
		seen[c] = true
	}
}
