package sofs

// L4 directory engine: directory entries are kept packed with no internal
// holes — inode.Size (a multiple of DirEntrySize) is the count of entries
// in use, always occupying positions [0, count) — so Get-Entry-By-Name can
// stop at the first unused slot instead of scanning whole clusters, and
// Rem-Detach-Entry can delete in O(1) by swapping the removed slot with
// the last one rather than leaving a hole. Grounded on
// soGetDirEntryByName.c/soAddAttDirEntry.c/soRemDetachDirEntry.c/
// soRenameDirEntry.c (original_source/src/sofs15/sofs_ifuncs_4).

func dirEntryCount(ino *Inode) uint32 {
	return uint32(ino.Size) / DirEntrySize
}

// readDirSlot reads the directory entry at packed position pos.
func (fs *FS) readDirSlot(dirIno uint32, pos uint32) (DirEntry, error) {
	var e DirEntry
	clusterIdx := pos / DPC
	slot := pos % DPC
	c, err := fs.HandleFileCluster(dirIno, clusterIdx, OpGet)
	if err != nil {
		return e, err
	}
	if c == NullCluster {
		return e, newErr("readDirSlot", KindInconsistentDirectory)
	}
	b, err := fs.readCluster(c)
	if err != nil {
		return e, err
	}
	off := int(slot) * DirEntrySize
	return e, e.UnmarshalBinary(b[off : off+DirEntrySize])
}

// writeDirSlot writes e at packed position pos, allocating the cluster
// that holds it if this is the first entry to land there.
func (fs *FS) writeDirSlot(dirIno uint32, pos uint32, e *DirEntry) error {
	clusterIdx := pos / DPC
	slot := pos % DPC
	c, err := fs.HandleFileCluster(dirIno, clusterIdx, OpGet)
	if err != nil {
		return err
	}
	if c == NullCluster {
		c, err = fs.HandleFileCluster(dirIno, clusterIdx, OpAlloc)
		if err != nil {
			return err
		}
		buf := make([]byte, ClusterSize)
		if err := fs.writeCluster(c, buf); err != nil {
			return err
		}
	}
	b, err := fs.readCluster(c)
	if err != nil {
		return err
	}
	eb, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	off := int(slot) * DirEntrySize
	copy(b[off:off+DirEntrySize], eb)
	return fs.writeCluster(c, b)
}

// GetEntryByName scans dirIno's packed entries for name, returning the
// matching entry and its packed position.
func (fs *FS) GetEntryByName(dirIno uint32, name string) (DirEntry, uint32, error) {
	const op = "GetEntryByName"
	if len(name) == 0 || len(name) > MaxName {
		return DirEntry{}, 0, newErr(op, KindNameTooLong)
	}
	dir, err := fs.ReadInode(dirIno)
	if err != nil {
		return DirEntry{}, 0, err
	}
	if dir.Type() != uint16(TypeDir) {
		return DirEntry{}, 0, newErr(op, KindNotDirectory)
	}
	count := dirEntryCount(&dir)
	for pos := uint32(0); pos < count; pos++ {
		e, err := fs.readDirSlot(dirIno, pos)
		if err != nil {
			return DirEntry{}, 0, err
		}
		if e.name() == name {
			return e, pos, nil
		}
	}
	return DirEntry{}, 0, newErr(op, KindNoEntry)
}

// ListDir returns every entry currently stored in dirIno, in packed order
// (so "." and ".." are always first, matching mkdir's initial layout).
func (fs *FS) ListDir(dirIno uint32) ([]DirEntry, error) {
	const op = "ListDir"
	dir, err := fs.ReadInode(dirIno)
	if err != nil {
		return nil, err
	}
	if dir.Type() != uint16(TypeDir) {
		return nil, newErr(op, KindNotDirectory)
	}
	count := dirEntryCount(&dir)
	out := make([]DirEntry, 0, count)
	for pos := uint32(0); pos < count; pos++ {
		e, err := fs.readDirSlot(dirIno, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := fs.touchAtime(dirIno); err != nil {
		return nil, err
	}
	return out, nil
}

// AddAttachEntry creates a new directory entry called name under dirIno,
// pointing at targetIno, on behalf of process p. op=OpAdd gives targetIno
// a new name: a directory must still be nameless (Refcount 0), and this
// also lays down its "." and ".." entries; a regular file or symlink that
// already has a name gains an extra hard link. op=OpAttach
// reparents an already-initialized directory (targetIno.Refcount >= 1)
// under dirIno, rewriting its ".." entry; only directories may be
// attached this way. Grounded on soAddAttDirEntry.c.
func (fs *FS) AddAttachEntry(dirIno uint32, name string, targetIno uint32, op DirOp, p Process) error {
	const fn = "AddAttachEntry"
	if len(name) == 0 || len(name) > MaxName {
		return newErr(fn, KindNameTooLong)
	}
	dir, err := fs.ReadInode(dirIno)
	if err != nil {
		return err
	}
	if dir.Type() != uint16(TypeDir) {
		return newErr(fn, KindNotDirectory)
	}
	if err := CheckAccess(fn, &dir, p, AccessWrite); err != nil {
		return err
	}
	if err := CheckAccess(fn, &dir, p, AccessExec); err != nil {
		return err
	}

	target, err := fs.ReadInode(targetIno)
	if err != nil {
		return err
	}
	if target.Type() == uint16(TypeDir) {
		if err := CheckAccess(fn, &target, p, AccessRead); err != nil {
			return err
		}
		if err := CheckAccess(fn, &target, p, AccessWrite); err != nil {
			return err
		}
	}

	if _, _, err := fs.GetEntryByName(dirIno, name); err == nil {
		return newErr(fn, KindExists)
	} else if !IsKind(err, KindNoEntry) {
		return err
	}

	if target.Refcount == ^uint16(0) {
		return newErr(fn, KindTooManyLinks)
	}

	switch op {
	case OpAdd:
		if target.Type() == uint16(TypeDir) {
			if target.Refcount != 0 {
				return newErr(fn, KindInconsistentInode)
			}
			if err := fs.initEmptyDir(targetIno, &target, dirIno); err != nil {
				return err
			}
			target.Refcount++
			target.Size = 2 * DirEntrySize
			if err := fs.WriteInode(targetIno, &target); err != nil {
				return err
			}
			dir.Refcount++
			if err := fs.WriteInode(dirIno, &dir); err != nil {
				return err
			}
		}
	case OpAttach:
		if target.Type() != uint16(TypeDir) {
			return newErr(fn, KindNotDirectory)
		}
		if target.Refcount == 0 {
			return newErr(fn, KindInconsistentInode)
		}
		dotdot, pos, err := fs.GetEntryByName(targetIno, "..")
		if err != nil {
			return err
		}
		dotdot.Inode = dirIno
		if err := fs.writeDirSlot(targetIno, pos, &dotdot); err != nil {
			return err
		}
		dir.Refcount++
		if err := fs.WriteInode(dirIno, &dir); err != nil {
			return err
		}
	default:
		return newErr(fn, KindInvalidArgument)
	}

	// Re-read: the branch above may have mutated dir (refcount) or target
	// (refcount/size) and persisted them; pick up the committed state
	// before appending the new name.
	dir, err = fs.ReadInode(dirIno)
	if err != nil {
		return err
	}
	target, err = fs.ReadInode(targetIno)
	if err != nil {
		return err
	}

	count := dirEntryCount(&dir)
	var e DirEntry
	e.setName(name)
	e.Inode = targetIno
	if err := fs.writeDirSlot(dirIno, count, &e); err != nil {
		return err
	}
	dir.Size += DirEntrySize
	if err := fs.WriteInode(dirIno, &dir); err != nil {
		return err
	}

	target.Refcount++
	return fs.WriteInode(targetIno, &target)
}

// initEmptyDir lays down "." (self) and ".." (parent) as the only two
// entries of targetIno's freshly allocated cluster 0.
func (fs *FS) initEmptyDir(targetIno uint32, target *Inode, parentIno uint32) error {
	c, err := fs.HandleFileCluster(targetIno, 0, OpAlloc)
	if err != nil {
		return err
	}
	// HandleFileCluster persisted its own copy of the inode; pull the new
	// cluster reference into target so the caller's WriteInode keeps it.
	fresh, err := fs.readInodeRaw(targetIno)
	if err != nil {
		return err
	}
	target.D = fresh.D
	target.I1 = fresh.I1
	target.I2 = fresh.I2
	target.Clucount = fresh.Clucount
	buf := make([]byte, ClusterSize)
	var dot, dotdot DirEntry
	dot.setName(".")
	dot.Inode = targetIno
	dotdot.setName("..")
	dotdot.Inode = parentIno
	db, err := dot.MarshalBinary()
	if err != nil {
		return err
	}
	copy(buf[0:DirEntrySize], db)
	ddb, err := dotdot.MarshalBinary()
	if err != nil {
		return err
	}
	copy(buf[DirEntrySize:2*DirEntrySize], ddb)
	return fs.writeCluster(c, buf)
}

// RemDetachEntry removes the entry called name from dirIno. op==OpRem
// additionally decrements the target inode's link count, freeing the
// inode (and its data) once it reaches zero; op==OpDetach removes the
// entry only, leaving the target's link count untouched (used by Rename
// to move an entry without the transient refcount dip a
// detach-then-remove sequence would otherwise cause).
func (fs *FS) RemDetachEntry(dirIno uint32, name string, op DirOp, p Process) error {
	const fn = "RemDetachEntry"
	dir, err := fs.ReadInode(dirIno)
	if err != nil {
		return err
	}
	if dir.Type() != uint16(TypeDir) {
		return newErr(fn, KindNotDirectory)
	}
	if err := CheckAccess(fn, &dir, p, AccessWrite); err != nil {
		return err
	}
	if err := CheckAccess(fn, &dir, p, AccessExec); err != nil {
		return err
	}

	if name == "." || name == ".." {
		return newErr(fn, KindInvalidArgument)
	}

	e, pos, err := fs.GetEntryByName(dirIno, name)
	if err != nil {
		return err
	}

	if op == OpRem {
		target, err := fs.ReadInode(e.Inode)
		if err != nil {
			return err
		}
		if target.Type() == uint16(TypeDir) && dirEntryCount(&target) > 2 {
			return newErr(fn, KindNotEmpty)
		}
	}

	if err := fs.removeDirSlot(dirIno, &dir, pos); err != nil {
		return err
	}
	if err := fs.WriteInode(dirIno, &dir); err != nil {
		return err
	}

	if op == OpDetach {
		return nil
	}
	if op != OpRem {
		return newErr(fn, KindInvalidArgument)
	}

	target, err := fs.ReadInode(e.Inode)
	if err != nil {
		return err
	}
	if target.Type() == uint16(TypeDir) {
		// One decrement for the "."/".." relationship severed between
		// dir and target, plus the ordinary hard-link decrement below.
		target.Refcount--
		parent, err := fs.ReadInode(dirIno)
		if err != nil {
			return err
		}
		parent.Refcount--
		if err := fs.WriteInode(dirIno, &parent); err != nil {
			return err
		}
	}
	target.Refcount--
	if target.Refcount > 0 {
		return fs.WriteInode(e.Inode, &target)
	}
	// Persist Refcount==0 first: HandleFileClusters and FreeInode both
	// re-read the inode from disk.
	if err := fs.WriteInode(e.Inode, &target); err != nil {
		return err
	}
	if err := fs.HandleFileClusters(e.Inode, 0); err != nil {
		return err
	}
	return fs.FreeInode(e.Inode)
}

// removeDirSlot deletes the entry at packed position pos by swapping it
// with the last packed entry (if it isn't already last) and clearing the
// vacated final slot, then shrinking dir.Size by one entry.
func (fs *FS) removeDirSlot(dirIno uint32, dir *Inode, pos uint32) error {
	count := dirEntryCount(dir)
	lastPos := count - 1
	if pos != lastPos {
		last, err := fs.readDirSlot(dirIno, lastPos)
		if err != nil {
			return err
		}
		if err := fs.writeDirSlot(dirIno, pos, &last); err != nil {
			return err
		}
	}
	var empty DirEntry
	if err := fs.writeDirSlot(dirIno, lastPos, &empty); err != nil {
		return err
	}
	dir.Size -= DirEntrySize

	if lastPos%DPC == 0 {
		// The cluster holding lastPos now holds no live entries; release it.
		clusterIdx := lastPos / DPC
		if _, err := fs.HandleFileCluster(dirIno, clusterIdx, OpFree); err != nil {
			return err
		}
	}
	return nil
}

// MoveEntry relocates the entry called oldName in dirIno to be called
// newName in toDirIno (which may be the same directory as dirIno),
// leaving the target inode's own link count untouched. An existing entry
// already occupying the destination name is replaced (and, per rename(2),
// rejected with KindNotEmpty if it is a non-empty directory). If the
// moved entry is itself a directory and toDirIno differs from dirIno, its
// ".." entry is rewritten to point at the new parent. Grounded on
// soRenameDirEntry.c's cross-directory move path.
func (fs *FS) MoveEntry(dirIno uint32, oldName string, toDirIno uint32, newName string, p Process) error {
	const op = "MoveEntry"
	if len(newName) == 0 || len(newName) > MaxName {
		return newErr(op, KindNameTooLong)
	}

	e, _, err := fs.GetEntryByName(dirIno, oldName)
	if err != nil {
		return err
	}
	movedIno, err := fs.ReadInode(e.Inode)
	if err != nil {
		return err
	}

	if existing, _, err := fs.GetEntryByName(toDirIno, newName); err == nil {
		if dirIno == toDirIno && existing.Inode == e.Inode {
			return nil
		}
		existingIno, err := fs.ReadInode(existing.Inode)
		if err != nil {
			return err
		}
		movedIsDir := movedIno.Type() == uint16(TypeDir)
		existingIsDir := existingIno.Type() == uint16(TypeDir)
		if movedIsDir != existingIsDir {
			return newErr(op, KindIsDirectory)
		}
		if existingIsDir && dirEntryCount(&existingIno) > 2 {
			return newErr(op, KindNotEmpty)
		}
		if err := fs.RemDetachEntry(toDirIno, newName, OpRem, p); err != nil {
			return err
		}
	} else if !IsKind(err, KindNoEntry) {
		return err
	}

	if err := fs.RemDetachEntry(dirIno, oldName, OpDetach, p); err != nil {
		return err
	}

	toDir, err := fs.ReadInode(toDirIno)
	if err != nil {
		return err
	}
	if toDir.Type() != uint16(TypeDir) {
		return newErr(op, KindNotDirectory)
	}
	if err := CheckAccess(op, &toDir, p, AccessWrite); err != nil {
		return err
	}
	if err := CheckAccess(op, &toDir, p, AccessExec); err != nil {
		return err
	}

	count := dirEntryCount(&toDir)
	var ne DirEntry
	ne.setName(newName)
	ne.Inode = e.Inode
	if err := fs.writeDirSlot(toDirIno, count, &ne); err != nil {
		return err
	}
	toDir.Size += DirEntrySize
	if dirIno != toDirIno && movedIno.Type() == uint16(TypeDir) {
		toDir.Refcount++
	}
	if err := fs.WriteInode(toDirIno, &toDir); err != nil {
		return err
	}

	if dirIno == toDirIno || movedIno.Type() != uint16(TypeDir) {
		return nil
	}

	fromDir, err := fs.ReadInode(dirIno)
	if err != nil {
		return err
	}
	fromDir.Refcount--
	if err := fs.WriteInode(dirIno, &fromDir); err != nil {
		return err
	}

	dotdot, pos, err := fs.GetEntryByName(e.Inode, "..")
	if err != nil {
		return err
	}
	dotdot.Inode = toDirIno
	return fs.writeDirSlot(e.Inode, pos, &dotdot)
}

// RenameEntry changes the name of the entry currently called oldName to
// newName within the same directory, leaving its target inode and link
// count untouched. Grounded on soRenameDirEntry.c; the REDESIGN guidance
// calls for fixing that algorithm's comparison-for-assignment bug, so the
// lookup's match is assigned (not merely compared) before the rewrite.
func (fs *FS) RenameEntry(dirIno uint32, oldName, newName string, p Process) error {
	const op = "RenameEntry"
	if len(newName) == 0 || len(newName) > MaxName {
		return newErr(op, KindNameTooLong)
	}
	if oldName == "." || oldName == ".." || newName == "." || newName == ".." {
		return newErr(op, KindInvalidArgument)
	}
	dir, err := fs.ReadInode(dirIno)
	if err != nil {
		return err
	}
	if dir.Type() != uint16(TypeDir) {
		return newErr(op, KindNotDirectory)
	}
	if err := CheckAccess(op, &dir, p, AccessWrite); err != nil {
		return err
	}
	if err := CheckAccess(op, &dir, p, AccessExec); err != nil {
		return err
	}
	if _, _, err := fs.GetEntryByName(dirIno, newName); err == nil {
		return newErr(op, KindExists)
	} else if !IsKind(err, KindNoEntry) {
		return err
	}

	e, pos, err := fs.GetEntryByName(dirIno, oldName)
	if err != nil {
		return err
	}
	e.setName(newName)
	return fs.writeDirSlot(dirIno, pos, &e)
}
