package stm

// Version is one immutable committed value in a tobj's history
// (spec §3 "Version"). Everything except rl is immutable after
// install; rl is mutated only while holding the owning tobj's mutex
// (spec §5).
type Version struct {
	// cts is the commit timestamp: 0 for the initial version, otherwise
	// the committing transaction's g_cts.
	cts TxID
	// val is the committed payload. The protocol is agnostic to its
	// type (spec §3 Design Notes); callers should treat it as
	// copy-on-write.
	val any
	rl  *readerList
}

func newVersion(cts TxID, val any) *Version {
	return &Version{cts: cts, val: val, rl: &readerList{}}
}

// CTS returns the version's commit timestamp.
func (v *Version) CTS() TxID { return v.cts }

// Val returns the version's committed payload.
func (v *Version) Val() any { return v.val }
