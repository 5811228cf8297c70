package sofs

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// This file holds the on-disk <-> in-memory marshaling for the three
// fixed-size record types (Superblock, Inode, DirEntry). Grounded on
// pkg/ext4/super.go's generateSuperblock/writeSuperblock pattern
// (direktiv-vorteil): binary.Write into a bytes.Buffer, fields commented
// with their byte offset.

// SuperblockBlocks is the number of blocks reserved for the superblock
// region: one whole cluster. The inode table and free-cluster table follow
// it directly, so the data zone is not necessarily cluster-aligned.
const SuperblockBlocks = ClusterBlks

// superblockWireSize is the number of bytes MarshalBinary produces. It must
// not exceed SuperblockBlocks*BlockSize.
const superblockWireSize = 4 + 2 + 2 + 32 + 16 + 4 + // 0x00 magic,version,mstat,name,uuid,ntotal
	4*5 + // 0x3c itable_start,itable_size,itotal,ifree,ihdtl
	4*4 + // 0x50 tbfc_start,tbfc_size,tbfc_head,tbfc_tail
	4*3 + // 0x60 dzone_start,dzone_total,dzone_free
	(CacheCap*4 + 4) + // retrieval cache
	(CacheCap*4 + 4) // insertion cache

// MarshalBinary encodes the superblock in its fixed on-disk layout.
func (sb *Superblock) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(superblockWireSize)

	fields := []interface{}{
		sb.Magic,   // 0x00
		sb.Version, // 0x04
		sb.Mstat,   // 0x06
		sb.Name,    // 0x08
		sb.UUID,    // 0x28
		sb.Ntotal,  // 0x38

		sb.ItableStart, // 0x3c
		sb.ItableSize,  // 0x40
		sb.Itotal,      // 0x44
		sb.Ifree,       // 0x48
		sb.Ihdtl,       // 0x4c

		sb.TbfcStart, // 0x50
		sb.TbfcSize,  // 0x54
		sb.TbfcHead,  // 0x58
		sb.TbfcTail,  // 0x5c

		sb.DzoneStart, // 0x60
		sb.DzoneTotal, // 0x64
		sb.DzoneFree,  // 0x68

		sb.Retrieval.Refs, // 0x6c
		sb.Retrieval.Idx,
		sb.Insertion.Refs,
		sb.Insertion.Idx,
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, errors.Wrap(err, "sofs: marshal superblock")
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a superblock from its fixed on-disk layout.
func (sb *Superblock) UnmarshalBinary(b []byte) error {
	if len(b) < superblockWireSize {
		return errors.Errorf("sofs: superblock buffer too small: %d < %d", len(b), superblockWireSize)
	}
	r := bytes.NewReader(b)
	fields := []interface{}{
		&sb.Magic, &sb.Version, &sb.Mstat, &sb.Name, &sb.UUID, &sb.Ntotal,
		&sb.ItableStart, &sb.ItableSize, &sb.Itotal, &sb.Ifree, &sb.Ihdtl,
		&sb.TbfcStart, &sb.TbfcSize, &sb.TbfcHead, &sb.TbfcTail,
		&sb.DzoneStart, &sb.DzoneTotal, &sb.DzoneFree,
		&sb.Retrieval.Refs, &sb.Retrieval.Idx,
		&sb.Insertion.Refs, &sb.Insertion.Idx,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return errors.Wrap(err, "sofs: unmarshal superblock")
		}
	}
	return nil
}

// inodeWireSize must equal InodeRecordSize.
const inodeWireSize = 2 + 2 + 4 + 4 + 8 + 4 + 4 + 4 + NDirect*4 + 4 + 4

func (ino *Inode) marshalInto(buf []byte) error {
	if len(buf) < InodeRecordSize {
		return errors.Errorf("sofs: inode buffer too small: %d < %d", len(buf), InodeRecordSize)
	}
	w := bytes.NewBuffer(buf[:0])
	fields := []interface{}{
		ino.Mode,     // 0x00
		ino.Refcount, // 0x02
		ino.Owner,    // 0x04
		ino.Group,    // 0x08
		ino.Size,     // 0x0c
		ino.Clucount, // 0x14
		ino.VD1,      // 0x18
		ino.VD2,      // 0x1c
		ino.D,        // 0x20
		ino.I1,       // 0x20+NDirect*4
		ino.I2,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return errors.Wrap(err, "sofs: marshal inode")
		}
	}
	return nil
}

// MarshalBinary encodes the inode in its fixed on-disk layout.
func (ino *Inode) MarshalBinary() ([]byte, error) {
	buf := make([]byte, InodeRecordSize)
	if err := ino.marshalInto(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnmarshalBinary decodes an inode from its fixed on-disk layout.
func (ino *Inode) UnmarshalBinary(b []byte) error {
	if len(b) < InodeRecordSize {
		return errors.Errorf("sofs: inode buffer too small: %d < %d", len(b), InodeRecordSize)
	}
	r := bytes.NewReader(b)
	fields := []interface{}{
		&ino.Mode, &ino.Refcount, &ino.Owner, &ino.Group, &ino.Size,
		&ino.Clucount, &ino.VD1, &ino.VD2, &ino.D, &ino.I1, &ino.I2,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return errors.Wrap(err, "sofs: unmarshal inode")
		}
	}
	return nil
}

// MarshalBinary encodes the directory entry in its fixed on-disk layout.
func (e *DirEntry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, DirEntrySize)
	copy(buf, e.Name[:])
	binary.LittleEndian.PutUint32(buf[MaxName+1:], e.Inode)
	return buf, nil
}

// UnmarshalBinary decodes a directory entry from its fixed on-disk layout.
func (e *DirEntry) UnmarshalBinary(b []byte) error {
	if len(b) < DirEntrySize {
		return errors.Errorf("sofs: dirent buffer too small: %d < %d", len(b), DirEntrySize)
	}
	copy(e.Name[:], b[:MaxName+1])
	e.Inode = binary.LittleEndian.Uint32(b[MaxName+1:])
	return nil
}

func init() {
	if inodeWireSize != InodeRecordSize {
		panic("sofs: inode field layout does not match InodeRecordSize")
	}
	if DirEntrySize != MaxName+1+4 {
		panic("sofs: dir entry layout does not match DirEntrySize")
	}
}
