package sofsfs

import "github.com/tiagoalexbastos/sofs/pkg/sofs"

// Write resolves path, checks write permission, and writes buf starting at
// byte offset off, growing the file (and allocating clusters) as needed.
// Grounded on soWrite.c.
func (fs *FS) Write(path string, p sofs.Process, off int64, buf []byte) (int, error) {
	const op = "Write"
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
	if err := sofs.CheckAccess(op, &ino, p, sofs.AccessWrite); err != nil {
		return 0, err
	}
	written, err := fs.WriteAt(n, &ino, off, buf)
	if err != nil {
		return written, err
	}
	if werr := fs.WriteInode(n, &ino); werr != nil {
		return written, werr
	}
	return written, nil
}
