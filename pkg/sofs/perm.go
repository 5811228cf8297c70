package sofs

// L4 permission model: owner/group/other rwx bits. uid 0 (root) is always
// granted R and W, and is granted X only when owner, group and other all
// carry X. Grounded on soAccessGranted.c
// (original_source/src/sofs15/sofs_ifuncs_3).

const rootUID uint32 = 0

// Access reports whether p may perform op against ino, given the triple of
// permission bits that applies to p's relationship with ino (owner, group,
// or other).
func Access(ino *Inode, p Process, op AccessOp) bool {
	perm := ino.Perm()
	// op uses the owner-triple encoding (0400/0200/0100); shift it down to
	// a plain rwx triple so it can be compared against any of the three.
	want := (uint16(op) >> 6) & 07

	if p.UID == rootUID {
		if want&01 == 0 {
			// R and W are always granted to root.
			return true
		}
		// X requires every one of owner/group/other to carry it.
		ownerX := perm&PermOwnerX != 0
		groupX := perm&PermGroupX != 0
		otherX := perm&PermOtherX != 0
		return ownerX && groupX && otherX
	}

	var bits uint16
	switch {
	case p.UID == ino.Owner:
		bits = (perm >> 6) & 07
	case p.GID == ino.Group:
		bits = (perm >> 3) & 07
	default:
		bits = perm & 07
	}
	return bits&want == want
}

// CheckAccess is Access wrapped as a *Error-returning helper for call sites
// that want to propagate a KindAccess failure directly.
func CheckAccess(op string, ino *Inode, p Process, want AccessOp) error {
	if !Access(ino, p, want) {
		return newErr(op, KindAccess)
	}
	return nil
}
