package sofsfs

import (
	"path"
	"strings"

	"github.com/tiagoalexbastos/sofs/pkg/sofs"
)

// Rename moves the entry at oldPath to newPath, across directories if
// their parents differ, checking write permission on both parent
// directories. Grounded on soRename.c.
func (fs *FS) Rename(oldPath, newPath string, p sofs.Process) error {
	const op = "Rename"
	oldDir, oldName, err := splitLast(oldPath)
	if err != nil {
		return err
	}
	newDir, newName, err := splitLast(newPath)
	if err != nil {
		return err
	}

	oldDirIno, err := fs.TraversePath(oldDir, p, true)
	if err != nil {
		return err
	}
	oldDirInode, err := fs.ReadInode(oldDirIno)
	if err != nil {
		return err
	}
	if err := sofs.CheckAccess(op, &oldDirInode, p, sofs.AccessWrite); err != nil {
		return err
	}

	newDirIno, err := fs.TraversePath(newDir, p, true)
	if err != nil {
		return err
	}
	newDirInode, err := fs.ReadInode(newDirIno)
	if err != nil {
		return err
	}
	if err := sofs.CheckAccess(op, &newDirInode, p, sofs.AccessWrite); err != nil {
		return err
	}

	return fs.MoveEntry(oldDirIno, oldName, newDirIno, newName, p)
}

// splitLast splits an absolute path into its parent directory (itself an
// absolute path) and final component.
func splitLast(p string) (dir, name string, err error) {
	if len(p) == 0 || p[0] != '/' {
		return "", "", sofs.NewError("Rename", sofs.KindRelativePath)
	}
	clean := path.Clean(p)
	if clean == "/" {
		return "", "", sofs.NewError("Rename", sofs.KindInvalidArgument)
	}
	dir, name = path.Split(clean)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		dir = "/"
	}
	return dir, name, nil
}
