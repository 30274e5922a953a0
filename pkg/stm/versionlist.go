package stm

// versionList is a tobj's bounded, cts-ascending version history
// (spec §3, §4.2). Length is capped at K; once full, inserting a new
// version evicts the oldest first, releasing its reader-list entries
// (original_source/PKTO.cpp's insertAndSortVL does the same eviction
// before inserting).
type versionList struct {
	k        int
	versions []*Version
	stats    *stats
}

func newVersionList(k int, initial *Version, st *stats) *versionList {
	vl := &versionList{k: k, versions: make([]*Version, 0, k), stats: st}
	vl.versions = append(vl.versions, initial)
	st.versionsCreated()
	return vl
}

// findLTS returns the version with the largest cts strictly less than
// cts, or nil if none exists (spec §4.2). The list is kept ascending,
// so a linear scan retaining the last candidate seen is sufficient —
// exactly PKTO.cpp's findLTS_STL.
func (vl *versionList) findLTS(cts TxID) *Version {
	var cur *Version
	for _, v := range vl.versions {
		if v.cts < cts {
			cur = v
		} else {
			break // ascending order: nothing further can qualify
		}
	}
	return cur
}

// insert places version in cts-ascending order, evicting the oldest
// entry first if the list is already at capacity K (spec §4.2).
func (vl *versionList) insert(version *Version) {
	if len(vl.versions) >= vl.k {
		evicted := vl.versions[0]
		vl.stats.readListNodesFreed(evicted.rl.len())
		vl.stats.versionEvicted()
		vl.versions = vl.versions[1:]
	}

	idx := len(vl.versions)
	for i, v := range vl.versions {
		if v.cts > version.cts {
			idx = i
			break
		}
	}
	vl.versions = append(vl.versions, nil)
	copy(vl.versions[idx+1:], vl.versions[idx:])
	vl.versions[idx] = version
	vl.stats.versionsCreated()
}

// len reports the current version count; must never exceed k
// (invariant 1 of spec §8).
func (vl *versionList) len() int {
	return len(vl.versions)
}
