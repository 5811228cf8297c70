package sofsfs

import "github.com/tiagoalexbastos/sofs/pkg/sofs"

// Truncate resolves path and resizes it to newSize. Shrinking frees every
// cluster no longer covered by the new size; growing only updates the
// recorded size — the newly exposed range reads back as zeros the same
// way an unallocated hole does, with no cluster eagerly allocated.
// Grounded on soTruncate.c.
func (fs *FS) Truncate(path string, p sofs.Process, newSize int64) error {
	const op = "Truncate"
	if newSize < 0 || newSize > sofs.MaxFileSize {
		return sofs.NewError(op, sofs.KindFileTooBig)
	}
	n, err := fs.TraversePath(path, p, true)
	if err != nil {
		return err
	}
	ino, err := fs.ReadInode(n)
	if err != nil {
		return err
	}
	if ino.Type() == sofs.ModeDir {
		return sofs.NewError(op, sofs.KindIsDirectory)
	}
	if err := sofs.CheckAccess(op, &ino, p, sofs.AccessRead); err != nil {
		return err
	}
	if err := sofs.CheckAccess(op, &ino, p, sofs.AccessWrite); err != nil {
		return err
	}

	if newSize < ino.Size {
		keep := (newSize + sofs.ClusterSize - 1) / sofs.ClusterSize
		if err := fs.HandleFileClusters(n, uint32(keep)); err != nil {
			return err
		}
		// HandleFileClusters frees clusters and persists the updated
		// D/I1/I2/Clucount directly; re-read so the Size update below
		// doesn't write a stale pre-free copy back over it.
		fresh, err := fs.ReadInode(n)
		if err != nil {
			return err
		}
		ino = fresh
	}

	ino.Size = newSize
	return fs.WriteInode(n, &ino)
}
