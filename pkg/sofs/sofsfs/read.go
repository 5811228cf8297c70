package sofsfs

import "github.com/tiagoalexbastos/sofs/pkg/sofs"

// Read resolves path, checks read permission, and copies up to len(buf)
// bytes starting at byte offset off into buf, returning the number of
// bytes actually read (0 at or past end of file). Grounded on soRead.c.
func (fs *FS) Read(path string, p sofs.Process, off int64, buf []byte) (int, error) {
	const op = "Read"
	n, err := fs.TraversePath(path, p, true)
	if err != nil {
		return 0, err
	}
	ino, err := fs.ReadInode(n)
	if err != nil {
		return 0, err
	}
	if ino.Type() == sofs.ModeDir {
		return 0, sofs.NewError(op, sofs.KindIsDirectory)
	}
	if err := sofs.CheckAccess(op, &ino, p, sofs.AccessRead); err != nil {
		return 0, err
	}
	return fs.ReadAt(n, &ino, off, buf)
}
