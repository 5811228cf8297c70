package sofs

// L2 data-cluster allocator: the three-tier design of spec.md §4.4 — a
// retrieval cache consumed by Alloc-Cluster, an insertion cache filled by
// Free-Cluster, and the on-disk free-cluster table (FCT) ring that the two
// caches exchange with (directly, or through the ring) when one empties or
// the other fills. Grounded on the original
// soAllocDataCluster.c/soFreeDataCluster.c/soReplenish/soDeplete algorithms
// (original_source/src/sofs15/sofs_ifuncs_2).

// ringCount returns the number of free-cluster references currently parked
// in the on-disk FCT ring (neither cache holds them). The ring has no
// separate live counter; it is derived from the overall free-cluster
// accounting, since DzoneFree is always the sum of all three tiers.
func (fs *FS) ringCount() uint32 {
	return fs.sb.DzoneFree - fs.sb.Retrieval.Idx - fs.sb.Insertion.Idx
}

// AllocCluster removes one reference from the retrieval cache (replenishing
// it first if empty) and returns the allocated cluster number.
func (fs *FS) AllocCluster() (uint32, error) {
	const op = "AllocCluster"
	if fs.sb.DzoneFree == 0 {
		return 0, newErr(op, KindNoSpace)
	}
	if fs.sb.Retrieval.Idx == 0 {
		if err := fs.replenish(); err != nil {
			return 0, err
		}
	}
	fs.sb.Retrieval.Idx--
	c := fs.sb.Retrieval.Refs[fs.sb.Retrieval.Idx]
	fs.sb.DzoneFree--
	return c, nil
}

// replenish refills the (empty) retrieval cache from the FCT ring, or, if
// the ring itself is empty, by exchanging directly with the insertion
// cache — avoiding a disk round trip when clusters just freed are about to
// be reallocated.
func (fs *FS) replenish() error {
	const op = "replenish"
	rc := fs.ringCount()
	if rc > 0 {
		n := rc
		if n > CacheCap {
			n = CacheCap
		}
		for i := uint32(0); i < n; i++ {
			ref, err := fs.readFCTRef(fs.sb.TbfcHead)
			if err != nil {
				return err
			}
			if err := fs.writeFCTRef(fs.sb.TbfcHead, NullCluster); err != nil {
				return err
			}
			fs.sb.Retrieval.Refs[i] = ref
			fs.sb.TbfcHead = fs.sb.fctNext(fs.sb.TbfcHead)
		}
		fs.sb.Retrieval.Idx = n
		return nil
	}
	if fs.sb.Insertion.Idx > 0 {
		fs.sb.Retrieval.Refs = fs.sb.Insertion.Refs
		fs.sb.Retrieval.Idx = fs.sb.Insertion.Idx
		fs.sb.Insertion.Idx = 0
		return nil
	}
	// DzoneFree > 0 (checked by the caller) but neither tier has anything
	// to offer: the free-cluster accounting has drifted from reality.
	return newErr(op, KindInconsistentFCT)
}

// FreeCluster returns cluster c to the insertion cache (depleting it to the
// FCT ring first if full).
func (fs *FS) FreeCluster(c uint32) error {
	const op = "FreeCluster"
	if c == 0 || c == NullCluster || c >= fs.sb.DzoneTotal {
		return newErr(op, KindInvalidArgument)
	}
	if fs.sb.Insertion.Idx == CacheCap {
		if err := fs.deplete(); err != nil {
			return err
		}
	}
	fs.sb.Insertion.Refs[fs.sb.Insertion.Idx] = c
	fs.sb.Insertion.Idx++
	fs.sb.DzoneFree++
	return nil
}

// deplete flushes the (full) insertion cache to the FCT ring.
func (fs *FS) deplete() error {
	const op = "deplete"
	n := fs.sb.Insertion.Idx
	avail := fs.sb.fctCapacity() - fs.ringCount()
	if n > avail {
		return newErr(op, KindInconsistentFCT)
	}
	for i := uint32(0); i < n; i++ {
		if err := fs.writeFCTRef(fs.sb.TbfcTail, fs.sb.Insertion.Refs[i]); err != nil {
			return err
		}
		fs.sb.TbfcTail = fs.sb.fctNext(fs.sb.TbfcTail)
	}
	fs.sb.Insertion.Idx = 0
	return nil
}
