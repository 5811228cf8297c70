package sofs

// This file holds the L1 "basic operations": pure index-conversion helpers
// with no I/O of their own, grounded on pkg/ext4/common.go's divide/align
// helpers and pkg/ext4/super.go's layout struct (direktiv-vorteil).

// divUp returns ceil(a/b) for non-negative a and positive b.
func divUp(a, b uint32) uint32 {
	return (a + b - 1) / b
}

// inodeBlock returns the disk block (relative to ItableStart) containing
// inode number n, and its 0-based slot within that block.
func inodeBlock(n uint32) (block uint32, slot uint32) {
	return n / IPB, n % IPB
}

// InodeBlock returns the absolute device block holding inode n, and its
// slot within that block.
func (sb *Superblock) InodeBlock(n uint32) (block uint32, slot uint32) {
	rel, slot := inodeBlock(n)
	return sb.ItableStart + rel, slot
}

// fctSlot returns the block (relative to TbfcStart) and within-block
// reference index for free-cluster-table ring position i.
func fctSlot(i uint32) (block uint32, ref uint32) {
	return i / RPB, i % RPB
}

// FCTSlot returns the absolute device block and within-block reference
// index for free-cluster-table ring position i.
func (sb *Superblock) FCTSlot(i uint32) (block uint32, ref uint32) {
	rel, ref := fctSlot(i)
	return sb.TbfcStart + rel, ref
}

// fctNext advances a ring position by one, wrapping to 0 after the table's
// last slot (TbfcSize blocks of RPB references each).
func (sb *Superblock) fctNext(i uint32) uint32 {
	i++
	if i >= sb.TbfcSize*RPB {
		i = 0
	}
	return i
}

// clusterBlock converts a data-zone cluster number to its absolute starting
// device block.
func (sb *Superblock) clusterBlock(c uint32) uint32 {
	return sb.DzoneStart + c*ClusterBlks
}

// ClusterBlock is the exported form of clusterBlock, for collaborating
// packages (pkg/mkfs) that must address a cluster before an FS is open.
func (sb *Superblock) ClusterBlock(c uint32) uint32 { return sb.clusterBlock(c) }

// FctCapacity is the exported form of fctCapacity.
func (sb *Superblock) FctCapacity() uint32 { return sb.fctCapacity() }

// FctNext is the exported form of fctNext.
func (sb *Superblock) FctNext(i uint32) uint32 { return sb.fctNext(i) }

// clusterIndexOfOffset splits a byte offset within a file into a
// file-cluster index (0-based, compared against MAX) and the offset within
// that cluster.
func clusterIndexOfOffset(off int64) (idx uint32, intra uint32) {
	return uint32(off / ClusterSize), uint32(off % ClusterSize)
}

// clusterTier classifies a file-cluster index into which part of the
// per-inode index holds it, per spec.md §4.5:
//
//	[0, NDirect)                          -> direct
//	[NDirect, NDirect+RPC)                 -> single-indirect
//	[NDirect+RPC, NDirect+RPC+RPC*RPC)     -> double-indirect
type clusterTier int

// Legal clusterTier values.
const (
	tierDirect clusterTier = iota
	tierSingle
	tierDouble
	tierInvalid
)

func classifyCluster(idx uint32) (tier clusterTier, rel uint32) {
	switch {
	case idx < NDirect:
		return tierDirect, idx
	case idx < NDirect+RPC:
		return tierSingle, idx - NDirect
	case idx <= MAX:
		return tierDouble, idx - NDirect - RPC
	default:
		return tierInvalid, 0
	}
}

// doubleIndirectSlot splits a double-indirect-relative index into the slot
// in the level-1 indirection block (which level-2 block to follow) and the
// slot within that level-2 block.
func doubleIndirectSlot(rel uint32) (l1 uint32, l2 uint32) {
	return rel / RPC, rel % RPC
}
