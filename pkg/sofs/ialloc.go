package sofs

// L2 inode allocator: Alloc-Inode and Free-Inode over the doubly-linked,
// circular free-inode list anchored at the superblock's Ihdtl field.
// Grounded on the original soAllocInode.c/soFreeInode.c algorithms
// (original_source/src/sofs15/sofs_ifuncs_1), translated to Go's explicit
// multi-return error style instead of an errno return code.

// AllocInode removes the head of the free-inode list, initializes it as a
// fresh inode of typ owned by owner/group, and returns its number.
func (fs *FS) AllocInode(typ InodeType, owner, group uint32) (uint32, error) {
	const op = "AllocInode"
	if !typ.valid() {
		return 0, newErr(op, KindInvalidArgument)
	}
	if fs.sb.Ifree == 0 {
		return 0, newErr(op, KindNoSpace)
	}

	n := fs.sb.Ihdtl
	head, err := fs.readInodeRaw(n)
	if err != nil {
		return 0, err
	}
	if !head.IsFree() {
		return 0, newErr(op, KindInconsistentInode)
	}

	if fs.sb.Ifree > 1 {
		next := head.Next()
		prev := head.Prev()
		if err := fs.unlinkFreeInode(n, prev, next); err != nil {
			return 0, err
		}
		fs.sb.Ihdtl = next
	}
	fs.sb.Ifree--

	fresh := Inode{
		Mode:     uint16(typ),
		Refcount: 0,
		Owner:    owner,
		Group:    group,
		Size:     0,
		Clucount: 0,
		VD1:      0,
		VD2:      0,
	}
	for i := range fresh.D {
		fresh.D[i] = NullCluster
	}
	fresh.I1 = NullCluster
	fresh.I2 = NullCluster

	if err := fs.writeInodeRaw(n, &fresh); err != nil {
		return 0, err
	}
	return n, nil
}

// unlinkFreeInode splices inode n (whose neighbors are prev and next) out
// of the circular free list.
func (fs *FS) unlinkFreeInode(n, prev, next uint32) error {
	if prev == next {
		// Exactly two free inodes before this removal: prev==next is the
		// sole remaining one, linking to itself both ways.
		nb, err := fs.readInodeRaw(next)
		if err != nil {
			return err
		}
		nb.VD1, nb.VD2 = next, next
		return fs.writeInodeRaw(next, &nb)
	}
	nextInode, err := fs.readInodeRaw(next)
	if err != nil {
		return err
	}
	nextInode.VD1 = prev
	if err := fs.writeInodeRaw(next, &nextInode); err != nil {
		return err
	}
	prevInode, err := fs.readInodeRaw(prev)
	if err != nil {
		return err
	}
	prevInode.VD2 = next
	return fs.writeInodeRaw(prev, &prevInode)
}

// FreeInode returns inode n to the free list, appending it at the tail
// (i.e. immediately before the current head) so the list behaves as a
// FIFO and recently-freed inodes are not immediately recycled.
func (fs *FS) FreeInode(n uint32) error {
	const op = "FreeInode"
	if n == 0 || n >= fs.sb.Itotal {
		return newErr(op, KindInvalidArgument)
	}
	ino, err := fs.readInodeRaw(n)
	if err != nil {
		return err
	}
	if ino.IsFree() {
		return newErr(op, KindInvalidArgument)
	}
	if ino.Refcount != 0 {
		return newErr(op, KindInconsistentInode)
	}

	freed := Inode{Mode: ModeFree}

	if fs.sb.Ifree == 0 {
		freed.VD1, freed.VD2 = n, n
		if err := fs.writeInodeRaw(n, &freed); err != nil {
			return err
		}
		fs.sb.Ihdtl = n
		fs.sb.Ifree = 1
		return nil
	}

	head := fs.sb.Ihdtl
	headInode, err := fs.readInodeRaw(head)
	if err != nil {
		return err
	}
	tail := headInode.Prev()

	freed.VD1 = tail
	freed.VD2 = head
	if err := fs.writeInodeRaw(n, &freed); err != nil {
		return err
	}

	headInode.VD1 = n
	if err := fs.writeInodeRaw(head, &headInode); err != nil {
		return err
	}

	tailInode, err := fs.readInodeRaw(tail)
	if err != nil {
		return err
	}
	tailInode.VD2 = n
	if err := fs.writeInodeRaw(tail, &tailInode); err != nil {
		return err
	}

	fs.sb.Ifree++
	return nil
}
