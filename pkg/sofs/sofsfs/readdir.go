package sofsfs

import "github.com/tiagoalexbastos/sofs/pkg/sofs"

// DirEntry is one listed entry: a name paired with the inode it names.
type DirEntry struct {
	Name  string
	Inode uint32
}

// Readdir resolves path to a directory and lists its entries (including
// "." and ".."). Grounded on soReaddir.c.
func (fs *FS) Readdir(path string, p sofs.Process) ([]DirEntry, error) {
	const op = "Readdir"
	n, err := fs.TraversePath(path, p, true)
	if err != nil {
		return nil, err
	}
	ino, err := fs.ReadInode(n)
	if err != nil {
		return nil, err
	}
	if ino.Type() != sofs.ModeDir {
		return nil, sofs.NewError(op, sofs.KindNotDirectory)
	}
	if err := sofs.CheckAccess(op, &ino, p, sofs.AccessRead); err != nil {
		return nil, err
	}

	raw, err := fs.ListDir(n)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, len(raw))
	for i, e := range raw {
		out[i] = DirEntry{Name: e.FileName(), Inode: e.Inode}
	}
	return out, nil
}
