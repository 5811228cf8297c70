package sofs

import "strings"

// L4 path traversal: walks an absolute path component by component from
// the root directory, transparently resolving symbolic links encountered
// along the way (and, optionally, at the final component), bounding
// resolution depth to guard against symlink loops. Grounded on
// soGetDirEntryByPath.c and ResolvePathToInodeNo in
// pkg/vdecompiler/fs.go (direktiv-vorteil), which walks a path the same
// way: split on '/', descend one directory entry at a time.

// maxSymlinkHops bounds the number of symlink indirections a single
// TraversePath call will follow before reporting a loop. Per spec, a
// *second* symlink encountered within one resolution is itself the loop:
// this is not an amortized depth bound, it is a strict one-hop allowance.
const maxSymlinkHops = 1

// TraversePath resolves an absolute path to an inode number. If
// followFinal is true and the final component is itself a symlink, it is
// also resolved; otherwise TraversePath returns the symlink inode itself.
func (fs *FS) TraversePath(path string, p Process, followFinal bool) (uint32, error) {
	n, _, err := fs.traverse(path, p, followFinal, 0)
	return n, err
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// traverse is TraversePath's recursive core; hops counts symlink
// indirections across the whole call tree so a chain of absolute-path
// symlinks pointing at each other cannot recurse unboundedly.
func (fs *FS) traverse(path string, p Process, followFinal bool, hops int) (uint32, int, error) {
	const op = "TraversePath"
	if len(path) == 0 {
		return NullInode, hops, newErr(op, KindInvalidArgument)
	}
	if len(path) > MaxPath {
		return NullInode, hops, newErr(op, KindNameTooLong)
	}
	if path[0] != '/' {
		return NullInode, hops, newErr(op, KindRelativePath)
	}

	segs := splitPath(path)
	cur := RootDirInode
	for i, seg := range segs {
		if len(seg) > MaxName {
			return NullInode, hops, newErr(op, KindNameTooLong)
		}
		curIno, err := fs.ReadInode(cur)
		if err != nil {
			return NullInode, hops, err
		}
		if curIno.Type() != uint16(TypeDir) {
			return NullInode, hops, newErr(op, KindNotDirectory)
		}
		if err := CheckAccess(op, &curIno, p, AccessExec); err != nil {
			return NullInode, hops, err
		}

		e, _, err := fs.GetEntryByName(cur, seg)
		if err != nil {
			return NullInode, hops, err
		}
		next := e.Inode

		isLast := i == len(segs)-1
		if !isLast || followFinal {
			nextIno, err := fs.ReadInode(next)
			if err != nil {
				return NullInode, hops, err
			}
			if nextIno.Type() == uint16(TypeSymlink) {
				hops++
				if hops > maxSymlinkHops {
					return NullInode, hops, newErr(op, KindLoop)
				}
				target, err := fs.readAll(next, &nextIno)
				if err != nil {
					return NullInode, hops, err
				}
				resolvedPath := string(target)
				if len(resolvedPath) == 0 || resolvedPath[0] != '/' {
					// Relative target: resolve against the symlink's own
					// parent directory, not the root (§4.7).
					resolvedPath = "/" + strings.Join(segs[:i], "/") + "/" + resolvedPath
				}
				resolved, newHops, err := fs.traverse(resolvedPath, p, true, hops)
				if err != nil {
					return NullInode, newHops, err
				}
				hops = newHops
				next = resolved
			}
		}
		cur = next
	}
	return cur, hops, nil
}
