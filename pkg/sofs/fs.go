package sofs

import (
	"encoding/binary"

	"github.com/tiagoalexbastos/sofs/pkg/bcache"
)

// FS is an open SOFS volume: the backing block cache plus the superblock
// and the single "currently loaded" scratch slot for each of the two
// variable-length regions mutators walk one block at a time (the inode
// table and the free-cluster table). Holding one slot per region — rather
// than re-reading a block on every access — mirrors spec.md §5's
// load/mutate/store discipline: callers within pkg/sofs must store a loaded
// slot (or explicitly discard it) before loading a different one, or an
// uncommitted mutation is silently lost.
type FS struct {
	cache *bcache.Cache
	sb    Superblock

	itBlock uint32 // block number currently loaded in itSlot, or noBlockLoaded
	itSlot  [BlockSize]byte
	itDirty bool

	fctBlock uint32 // block number currently loaded in fctSlot, or noBlockLoaded
	fctSlot  [BlockSize]byte
	fctDirty bool
}

const noBlockLoaded uint32 = ^uint32(0)

// Open mounts an already-formatted SOFS volume backed by the file at path.
func Open(path string) (*FS, error) {
	const op = "Open"
	c, err := bcache.Open(path, BlockSize)
	if err != nil {
		return nil, wrapErr(op, KindInconsistentSuperblock, err)
	}
	fs := &FS{cache: c, itBlock: noBlockLoaded, fctBlock: noBlockLoaded}
	if err := fs.loadSuperblock(); err != nil {
		c.Close()
		return nil, err
	}
	if fs.sb.Magic != MagicNumber {
		c.Close()
		return nil, newErr(op, KindInconsistentSuperblock)
	}
	return fs, nil
}

// Close flushes any dirty scratch slot and the superblock, then releases
// the backing file.
func (fs *FS) Close() error {
	const op = "Close"
	if err := fs.flush(); err != nil {
		fs.cache.Close()
		return err
	}
	if err := fs.cache.Close(); err != nil {
		return wrapErr(op, KindInconsistentSuperblock, err)
	}
	return nil
}

// flush commits the superblock and any loaded-and-dirty scratch slot.
func (fs *FS) flush() error {
	if err := fs.storeSuperblock(); err != nil {
		return err
	}
	if fs.itDirty {
		if err := fs.cache.WriteBlock(fs.itBlock, fs.itSlot[:]); err != nil {
			return wrapErr("flush", KindInconsistentInode, err)
		}
		fs.itDirty = false
	}
	if fs.fctDirty {
		if err := fs.cache.WriteBlock(fs.fctBlock, fs.fctSlot[:]); err != nil {
			return wrapErr("flush", KindInconsistentFCT, err)
		}
		fs.fctDirty = false
	}
	return nil
}

// Superblock returns a copy of the currently loaded superblock.
func (fs *FS) Superblock() Superblock { return fs.sb }

func (fs *FS) loadSuperblock() error {
	b, err := fs.cache.ReadBlocks(0, SuperblockBlocks)
	if err != nil {
		return wrapErr("loadSuperblock", KindInconsistentSuperblock, err)
	}
	return fs.sb.UnmarshalBinary(b)
}

func (fs *FS) storeSuperblock() error {
	b, err := fs.sb.MarshalBinary()
	if err != nil {
		return wrapErr("storeSuperblock", KindInconsistentSuperblock, err)
	}
	full := make([]byte, SuperblockBlocks*BlockSize)
	copy(full, b)
	if err := fs.cache.WriteBlocks(0, full); err != nil {
		return wrapErr("storeSuperblock", KindInconsistentSuperblock, err)
	}
	return nil
}

// loadITBlock ensures block n of the inode table region is the currently
// loaded scratch slot, flushing a different, dirty slot first.
func (fs *FS) loadITBlock(n uint32) error {
	if fs.itBlock == n {
		return nil
	}
	if fs.itDirty {
		if err := fs.cache.WriteBlock(fs.itBlock, fs.itSlot[:]); err != nil {
			return wrapErr("loadITBlock", KindInconsistentInode, err)
		}
		fs.itDirty = false
	}
	b, err := fs.cache.ReadBlock(n)
	if err != nil {
		return wrapErr("loadITBlock", KindInconsistentInode, err)
	}
	copy(fs.itSlot[:], b)
	fs.itBlock = n
	return nil
}

// storeITBlock marks the currently loaded inode-table slot dirty; it is
// written back on the next load of a different block, or on Close/flush.
func (fs *FS) storeITBlock() {
	fs.itDirty = true
}

// loadFCTBlock ensures block n of the free-cluster-table region is the
// currently loaded scratch slot, flushing a different, dirty slot first.
func (fs *FS) loadFCTBlock(n uint32) error {
	if fs.fctBlock == n {
		return nil
	}
	if fs.fctDirty {
		if err := fs.cache.WriteBlock(fs.fctBlock, fs.fctSlot[:]); err != nil {
			return wrapErr("loadFCTBlock", KindInconsistentFCT, err)
		}
		fs.fctDirty = false
	}
	b, err := fs.cache.ReadBlock(n)
	if err != nil {
		return wrapErr("loadFCTBlock", KindInconsistentFCT, err)
	}
	copy(fs.fctSlot[:], b)
	fs.fctBlock = n
	return nil
}

func (fs *FS) storeFCTBlock() {
	fs.fctDirty = true
}

// readInodeRaw reads inode n's record directly from the backing store,
// going through the inode-table scratch slot.
func (fs *FS) readInodeRaw(n uint32) (Inode, error) {
	var ino Inode
	if n >= fs.sb.Itotal {
		return ino, newErr("readInodeRaw", KindInvalidArgument)
	}
	block, slot := fs.sb.InodeBlock(n)
	if err := fs.loadITBlock(block); err != nil {
		return ino, err
	}
	off := int(slot) * InodeRecordSize
	if err := ino.UnmarshalBinary(fs.itSlot[off : off+InodeRecordSize]); err != nil {
		return ino, wrapErr("readInodeRaw", KindInconsistentInode, err)
	}
	return ino, nil
}

// writeInodeRaw writes ino as inode n's record directly to the backing
// store, going through the inode-table scratch slot.
func (fs *FS) writeInodeRaw(n uint32, ino *Inode) error {
	if n >= fs.sb.Itotal {
		return newErr("writeInodeRaw", KindInvalidArgument)
	}
	block, slot := fs.sb.InodeBlock(n)
	if err := fs.loadITBlock(block); err != nil {
		return err
	}
	if err := ino.marshalInto(fs.itSlot[int(slot)*InodeRecordSize:]); err != nil {
		return wrapErr("writeInodeRaw", KindInconsistentInode, err)
	}
	fs.storeITBlock()
	return nil
}

// readFCTRef reads the cluster reference stored at ring position i.
func (fs *FS) readFCTRef(i uint32) (uint32, error) {
	block, ref := fs.sb.FCTSlot(i)
	if err := fs.loadFCTBlock(block); err != nil {
		return 0, err
	}
	off := int(ref) * fctRefSize
	return binary.LittleEndian.Uint32(fs.fctSlot[off : off+fctRefSize]), nil
}

// writeFCTRef stores c as the cluster reference at ring position i.
func (fs *FS) writeFCTRef(i uint32, c uint32) error {
	block, ref := fs.sb.FCTSlot(i)
	if err := fs.loadFCTBlock(block); err != nil {
		return err
	}
	off := int(ref) * fctRefSize
	binary.LittleEndian.PutUint32(fs.fctSlot[off:off+fctRefSize], c)
	fs.storeFCTBlock()
	return nil
}

// readCluster reads the full contents of data-zone cluster c.
func (fs *FS) readCluster(c uint32) ([]byte, error) {
	if c == NullCluster || c >= fs.sb.DzoneTotal {
		return nil, newErr("readCluster", KindInvalidArgument)
	}
	b, err := fs.cache.ReadCluster(fs.sb.clusterBlock(c), ClusterBlks)
	if err != nil {
		return nil, wrapErr("readCluster", KindInconsistentFCT, err)
	}
	return b, nil
}

// writeCluster overwrites the full contents of data-zone cluster c.
func (fs *FS) writeCluster(c uint32, b []byte) error {
	if c == NullCluster || c >= fs.sb.DzoneTotal {
		return newErr("writeCluster", KindInvalidArgument)
	}
	if err := fs.cache.WriteCluster(fs.sb.clusterBlock(c), ClusterBlks, b); err != nil {
		return wrapErr("writeCluster", KindInconsistentFCT, err)
	}
	return nil
}

// readIndirectRef reads reference slot i (0..RPC) of indirection cluster c.
func (fs *FS) readIndirectRef(c uint32, i uint32) (uint32, error) {
	b, err := fs.readCluster(c)
	if err != nil {
		return 0, err
	}
	off := int(i) * fctRefSize
	return binary.LittleEndian.Uint32(b[off : off+fctRefSize]), nil
}

// writeIndirectRef stores ref into slot i (0..RPC) of indirection cluster c.
func (fs *FS) writeIndirectRef(c uint32, i uint32, ref uint32) error {
	b, err := fs.readCluster(c)
	if err != nil {
		return err
	}
	off := int(i) * fctRefSize
	binary.LittleEndian.PutUint32(b[off:off+fctRefSize], ref)
	return fs.writeCluster(c, b)
}
