// Package sofs implements the on-disk metadata engine of SOFS: a small
// Unix-like block-structured file-system. It covers the superblock, the
// doubly-linked inode free list, the three-tier data-cluster allocator, the
// per-inode direct/indirect cluster index, and the directory engine built on
// top of them.
//
// Raw block I/O lives in github.com/tiagoalexbastos/sofs/pkg/bcache; the
// syscall-shaped operations (read/write/truncate/readdir/rename) live in the
// sofsfs sub-package.
package sofs

import "github.com/google/uuid"

// Geometry constants. spec.md leaves these as named parameters without fixed
// values; SPEC_FULL.md §3 fixes concrete ones for this implementation.
const (
	BlockSize   = 512             // bytes per device block
	ClusterBlks = 8                // blocks per data cluster (K)
	ClusterSize = ClusterBlks * BlockSize // bytes per data cluster (C), 4096

	InodeRecordSize = 64
	IPB             = BlockSize / InodeRecordSize // inodes per block

	fctRefSize = 4                 // bytes per FCT entry (uint32, little-endian)
	FCTRefSize = fctRefSize        // exported alias, for collaborating packages (pkg/mkfs)
	RPB        = BlockSize / fctRefSize   // FCT references per block
	RPC        = ClusterSize / fctRefSize // indirection references per cluster

	NDirect = 6 // direct cluster references per inode

	// MAX is the highest legal file-cluster index.
	MAX = NDirect + RPC + RPC*RPC

	DirEntrySize = 64
	MaxName      = 59 // DirEntry.Name is MaxName+1 bytes, NUL padded
	DPC          = ClusterSize / DirEntrySize // directory entries per cluster

	MaxPath = 1024

	// CacheCap is the fixed capacity of the retrieval and insertion
	// free-cluster caches (§4.4).
	CacheCap = 64
)

// MaxFileSize is the largest legal file size in bytes: one past the last
// addressable byte of file-cluster index MAX.
const MaxFileSize = int64(MAX+1) * ClusterSize

// Sentinels.
const (
	NullInode   uint32 = ^uint32(0)
	NullCluster uint32 = ^uint32(0)

	// MagicBad is written during formatting before the volume is known-good.
	MagicBad uint32 = 0x00000000
	// MagicNumber identifies a successfully formatted SOFS volume. Written
	// last during formatting (§6).
	MagicNumber uint32 = 0x534F4653 // "SOFS" in big-endian byte order (on disk, little-endian: "SFOS")

	Version uint16 = 1

	RootDirInode uint32 = 0

	mstatClean uint16 = 0
	mstatDirty uint16 = 1
)

// Mode bits. The low 9 bits are rwx x {owner,group,other}; above that a type
// tag (mutually exclusive with the others) and a FREE marker.
const (
	PermOwnerR = 0400
	PermOwnerW = 0200
	PermOwnerX = 0100
	PermGroupR = 0040
	PermGroupW = 0020
	PermGroupX = 0010
	PermOtherR = 0004
	PermOtherW = 0002
	PermOtherX = 0001

	permMask = 0777

	ModeFree    uint16 = 1 << 9
	ModeFile    uint16 = 1 << 10
	ModeDir     uint16 = 1 << 11
	ModeSymlink uint16 = 1 << 12

	typeMask = ModeFile | ModeDir | ModeSymlink
)

// InodeType identifies the three legal inode kinds an AllocInode caller may
// request.
type InodeType uint16

// Legal InodeType values, one per type bit in ModeFree's companion mask.
const (
	TypeFile    InodeType = InodeType(ModeFile)
	TypeDir     InodeType = InodeType(ModeDir)
	TypeSymlink InodeType = InodeType(ModeSymlink)
)

func (t InodeType) valid() bool {
	switch t {
	case TypeFile, TypeDir, TypeSymlink:
		return true
	default:
		return false
	}
}

// freeCache is the fixed-capacity buffer of free-cluster references shared
// by both the retrieval and insertion tiers of the cluster allocator (§3,
// §4.4). Idx is the number of valid references currently held, always
// stored packed at Refs[0:Idx]; the cache is empty when Idx==0 and full
// when Idx==CacheCap.
type freeCache struct {
	Refs [CacheCap]uint32
	Idx  uint32
}

// Superblock is the persistent singleton coordinating every allocator
// mutation (§3).
type Superblock struct {
	Magic   uint32
	Version uint16
	Mstat   uint16
	Name    [32]byte
	UUID    uuid.UUID
	Ntotal  uint32

	ItableStart uint32
	ItableSize  uint32
	Itotal      uint32
	Ifree       uint32
	Ihdtl       uint32

	TbfcStart uint32
	TbfcSize  uint32
	TbfcHead  uint32
	TbfcTail  uint32

	DzoneStart uint32
	DzoneTotal uint32
	DzoneFree  uint32

	Retrieval freeCache
	Insertion freeCache
}

// fctCapacity returns the effective ring capacity of the free-cluster
// table. Cluster 0 (the root directory's data cluster) is never free, so
// at most DzoneTotal-1 references can ever be live in the ring, which is
// addressed over TbfcSize*RPB slots (see SPEC_FULL.md §9 / spec.md Open
// Questions).
func (sb *Superblock) fctCapacity() uint32 {
	if sb.DzoneTotal == 0 {
		return 0
	}
	return sb.DzoneTotal - 1
}

// Inode is the in-memory form of one inode record.
type Inode struct {
	Mode     uint16
	Refcount uint16
	Owner    uint32
	Group    uint32
	Size     int64
	Clucount uint32

	// vD1/vD2 are a tagged union selected by the FREE bit of Mode: free
	// inodes use them as the prev/next links of the cyclic free list;
	// in-use inodes use them as atime/mtime.
	VD1 uint32
	VD2 uint32

	D  [NDirect]uint32
	I1 uint32
	I2 uint32
}

// IsFree reports whether the inode is on the free list.
func (ino *Inode) IsFree() bool { return ino.Mode&ModeFree != 0 }

// Type returns the inode's type bit, or 0 if the inode has no type set
// (e.g. it is free, or corrupt).
func (ino *Inode) Type() uint16 { return ino.Mode & typeMask }

// Perm returns the inode's rwx owner/group/other permission bits.
func (ino *Inode) Perm() uint16 { return ino.Mode & permMask }

// Prev returns the free list predecessor. Only meaningful while IsFree.
func (ino *Inode) Prev() uint32 { return ino.VD1 }

// Next returns the free list successor. Only meaningful while IsFree.
func (ino *Inode) Next() uint32 { return ino.VD2 }

// Atime returns the inode's last-access unix timestamp. Only meaningful
// while the inode is in use.
func (ino *Inode) Atime() uint32 { return ino.VD1 }

// Mtime returns the inode's last-modification unix timestamp. Only
// meaningful while the inode is in use.
func (ino *Inode) Mtime() uint32 { return ino.VD2 }

// DirEntry is one fixed-size slot in a directory cluster.
type DirEntry struct {
	Name  [MaxName + 1]byte
	Inode uint32
}

func (e *DirEntry) isFree() bool { return e.Name[0] == 0 }

// FileName returns the entry's name as a Go string, trimmed at the first
// NUL byte.
func (e *DirEntry) FileName() string { return e.name() }

func (e *DirEntry) name() string {
	n := 0
	for n < len(e.Name) && e.Name[n] != 0 {
		n++
	}
	return string(e.Name[:n])
}

func (e *DirEntry) setName(s string) {
	var buf [MaxName + 1]byte
	copy(buf[:], s)
	e.Name = buf
}

// Process identifies the caller of a permission-checked operation, standing
// in for the "current process identity" spec.md's access-check algorithm
// reads uid/gid from (§4.7).
type Process struct {
	UID uint32
	GID uint32
}

// AccessOp is a bitmask of requested permission bits, tested against an
// inode's owner/group/other triple per the process's relationship to it.
type AccessOp uint16

// Requested access bits, reusing the rwx encoding of Inode.Mode's owner
// triple; Access() maps these onto whichever triple applies.
const (
	AccessRead  AccessOp = PermOwnerR
	AccessWrite AccessOp = PermOwnerW
	AccessExec  AccessOp = PermOwnerX
)

// DirOp selects ADD vs ATTACH (AddAttachEntry) or REM vs DETACH
// (RemDetachEntry), per §4.7.
type DirOp int

// Legal DirOp values.
const (
	OpAdd DirOp = iota
	OpAttach
	OpRem
	OpDetach
)

// ClusterOp selects which operation HandleFileCluster performs at a given
// file-cluster index (§4.5).
type ClusterOp int

// Legal ClusterOp values.
const (
	OpGet ClusterOp = iota
	OpAlloc
	OpFree
)
