// Package mkfs builds a fresh SOFS volume: it computes the on-disk layout
// from the requested inode and cluster counts, then writes the superblock,
// inode table, root directory, and free-cluster table in the same order
// the original mkfs_sofs15 tool does, writing the volume's magic number
// last so a crash mid-format is visible as corruption rather than a
// plausible-looking empty volume.
//
// Grounded on pkg/ext4's super/compiler pattern (direktiv-vorteil):
// a builder that computes a layout struct up front, then has one
// generate-and-write step per on-disk region.
package mkfs

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tiagoalexbastos/sofs/pkg/bcache"
	"github.com/tiagoalexbastos/sofs/pkg/sofs"
)

// Options configures Format. It mirrors mkfs_sofs15's argv surface: a
// volume name, how many inodes and data clusters to provision, and
// whether to materialize the whole device with zero bytes up front
// instead of relying on a sparse file reading back as zero.
type Options struct {
	Name      string
	NInodes   uint32
	NClusters uint32
	ZeroFill  bool
}

func (o Options) validate() error {
	if len(o.Name) > 31 {
		return sofs.NewError("Format", sofs.KindNameTooLong)
	}
	if o.NInodes < 2 {
		return sofs.NewError("Format", sofs.KindInvalidArgument)
	}
	if o.NClusters < 2 {
		return sofs.NewError("Format", sofs.KindInvalidArgument)
	}
	return nil
}

// layout is every block-address computed from Options before anything is
// written, the same role pkg/ext4/super.go's layout struct plays for an
// ext4 image.
type layout struct {
	itableStart uint32
	itableSize  uint32
	tbfcStart   uint32
	tbfcSize    uint32
	dzoneStart  uint32
	dzoneTotal  uint32
	totalBlocks uint32
}

func computeLayout(o Options) layout {
	var l layout
	l.itableStart = sofs.SuperblockBlocks
	l.itableSize = divUp(o.NInodes, sofs.IPB)
	l.tbfcStart = l.itableStart + l.itableSize
	l.tbfcSize = divUp(o.NClusters, sofs.RPB)
	l.dzoneStart = l.tbfcStart + l.tbfcSize
	l.dzoneTotal = o.NClusters
	l.totalBlocks = l.dzoneStart + o.NClusters*sofs.ClusterBlks
	return l
}

func divUp(a, b uint32) uint32 { return (a + b - 1) / b }

// Format creates (or overwrites) the file at path as a freshly formatted
// SOFS volume per opts.
func Format(path string, opts Options) error {
	const op = "Format"
	if err := opts.validate(); err != nil {
		return err
	}
	l := computeLayout(opts)

	cache, err := bcache.Create(path, sofs.BlockSize, l.totalBlocks)
	if err != nil {
		return errors.Wrap(err, "mkfs: create backing file")
	}
	defer cache.Close()

	if opts.ZeroFill {
		if err := zeroFill(cache); err != nil {
			return err
		}
	}

	sb := sofs.Superblock{
		Magic:       sofs.MagicBad,
		Version:     sofs.Version,
		Mstat:       0,
		Ntotal:      l.totalBlocks,
		ItableStart: l.itableStart,
		ItableSize:  l.itableSize,
		Itotal:      opts.NInodes,
		TbfcStart:   l.tbfcStart,
		TbfcSize:    l.tbfcSize,
		DzoneStart:  l.dzoneStart,
		DzoneTotal:  l.dzoneTotal,
	}
	copy(sb.Name[:], opts.Name)
	id, err := uuid.NewRandom()
	if err != nil {
		return errors.Wrap(err, "mkfs: generate volume uuid")
	}
	sb.UUID = id

	if err := writeSuperblock(cache, &sb); err != nil {
		return err
	}
	if err := writeInodeTable(cache, &sb); err != nil {
		return err
	}
	if err := writeRootDirectory(cache, &sb); err != nil {
		return err
	}
	if err := writeFCTRing(cache, &sb); err != nil {
		return err
	}

	sb.Magic = sofs.MagicNumber
	if err := writeSuperblock(cache, &sb); err != nil {
		return errors.Wrap(err, "mkfs: commit magic number")
	}
	return cache.Sync()
}

func zeroFill(cache *bcache.Cache) error {
	zero := make([]byte, sofs.ClusterSize)
	total := cache.TotalBlocks()
	const chunk uint32 = sofs.ClusterBlks
	for b := uint32(0); b < total; b += chunk {
		n := chunk
		if b+n > total {
			n = total - b
		}
		if err := cache.WriteBlocks(b, zero[:int(n)*sofs.BlockSize]); err != nil {
			return errors.Wrap(err, "mkfs: zero-fill")
		}
	}
	return nil
}

func writeSuperblock(cache *bcache.Cache, sb *sofs.Superblock) error {
	b, err := sb.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "mkfs: marshal superblock")
	}
	full := make([]byte, sofs.SuperblockBlocks*sofs.BlockSize)
	copy(full, b)
	if err := cache.WriteBlocks(0, full); err != nil {
		return errors.Wrap(err, "mkfs: write superblock")
	}
	return nil
}

// writeInodeTable initializes inode 0 as the root directory and links
// every other inode into the circular free list anchored by Ihdtl.
func writeInodeTable(cache *bcache.Cache, sb *sofs.Superblock) error {
	ts := uint32(time.Now().Unix())

	root := sofs.Inode{
		Mode:     sofs.ModeDir | 0755,
		Refcount: 2,
		Owner:    0,
		Group:    0,
		Size:     2 * sofs.DirEntrySize,
		Clucount: 1,
		VD1:      ts,
		VD2:      ts,
	}
	root.D[0] = 0
	for i := 1; i < sofs.NDirect; i++ {
		root.D[i] = sofs.NullCluster
	}
	root.I1 = sofs.NullCluster
	root.I2 = sofs.NullCluster
	if err := writeInode(cache, sb, 0, &root); err != nil {
		return err
	}

	n := sb.Itotal
	for i := uint32(1); i < n; i++ {
		prev := i - 1
		if i == 1 {
			prev = n - 1
		}
		next := i + 1
		if i == n-1 {
			next = 1
		}
		free := sofs.Inode{Mode: sofs.ModeFree, VD1: prev, VD2: next}
		if err := writeInode(cache, sb, i, &free); err != nil {
			return err
		}
	}
	sb.Ifree = n - 1
	if n > 1 {
		sb.Ihdtl = 1
	}
	return nil
}

func writeInode(cache *bcache.Cache, sb *sofs.Superblock, n uint32, ino *sofs.Inode) error {
	block, slot := sb.InodeBlock(n)
	b, err := cache.ReadBlock(block)
	if err != nil {
		return errors.Wrap(err, "mkfs: read inode table block")
	}
	eb, err := ino.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "mkfs: marshal inode")
	}
	copy(b[int(slot)*sofs.InodeRecordSize:], eb)
	if err := cache.WriteBlock(block, b); err != nil {
		return errors.Wrap(err, "mkfs: write inode table block")
	}
	return nil
}

// writeRootDirectory populates cluster 0 (permanently owned by the root
// inode, never entered into the free-cluster table) with "." and "..",
// both pointing at inode 0.
func writeRootDirectory(cache *bcache.Cache, sb *sofs.Superblock) error {
	buf := make([]byte, sofs.ClusterSize)
	var dot, dotdot sofs.DirEntry
	dot.Inode = 0
	dotdot.Inode = 0
	setEntryName(&dot, ".")
	setEntryName(&dotdot, "..")
	db, err := dot.MarshalBinary()
	if err != nil {
		return err
	}
	ddb, err := dotdot.MarshalBinary()
	if err != nil {
		return err
	}
	copy(buf[0:], db)
	copy(buf[sofs.DirEntrySize:], ddb)

	start := sb.ClusterBlock(0)
	return errors.Wrap(cache.WriteCluster(start, sofs.ClusterBlks, buf), "mkfs: write root directory")
}

func setEntryName(e *sofs.DirEntry, name string) {
	var buf [sofs.MaxName + 1]byte
	copy(buf[:], name)
	e.Name = buf
}

// writeFCTRing fills the free-cluster table with clusters [1, DzoneTotal),
// leaving cluster 0 (the root directory's data) permanently excluded.
func writeFCTRing(cache *bcache.Cache, sb *sofs.Superblock) error {
	n := sb.DzoneTotal - 1
	for i := uint32(0); i < n; i++ {
		if err := writeFCTRef(cache, sb, i, i+1); err != nil {
			return err
		}
	}
	sb.TbfcHead = 0
	sb.TbfcTail = n
	sb.DzoneFree = n
	return nil
}

func writeFCTRef(cache *bcache.Cache, sb *sofs.Superblock, i, ref uint32) error {
	block, slot := sb.FCTSlot(i)
	b, err := cache.ReadBlock(block)
	if err != nil {
		return errors.Wrap(err, "mkfs: read fct block")
	}
	off := int(slot) * sofs.FCTRefSize
	b[off] = byte(ref)
	b[off+1] = byte(ref >> 8)
	b[off+2] = byte(ref >> 16)
	b[off+3] = byte(ref >> 24)
	if err := cache.WriteBlock(block, b); err != nil {
		return errors.Wrap(err, "mkfs: write fct block")
	}
	return nil
}
