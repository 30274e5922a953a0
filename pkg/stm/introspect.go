package stm

// TobjView is a point-in-time, read-only view of one tobj's current
// committed state, for diagnostic and query surfaces that sit outside
// the transactional protocol itself (the HTTP control plane's
// /snapshot endpoint, the GraphQL schema). It is not part of spec §6's
// transactional interface: nothing here participates in a read-set.
type TobjView struct {
	ID           int
	Value        any
	CTS          TxID
	VersionCount int
	ReaderCount  int
}

// View returns a snapshot of tobj id's latest committed version. It
// takes the tobj's mutex only long enough to copy the fields out, the
// same granularity stmRead uses to look at a version list.
func (r *Runtime) View(id int) (TobjView, error) {
	to, err := r.reg.get(id)
	if err != nil {
		return TobjView{}, err
	}

	to.mu.Lock()
	defer to.mu.Unlock()

	latest := to.vl.versions[len(to.vl.versions)-1]
	return TobjView{
		ID:           to.id,
		Value:        latest.val,
		CTS:          latest.cts,
		VersionCount: to.vl.len(),
		ReaderCount:  latest.rl.len(),
	}, nil
}

// Views returns a TobjView for every tobj in the registry, ordered by
// id. Used by the /snapshot endpoint and the GraphQL tobjs query.
func (r *Runtime) Views() []TobjView {
	views := make([]TobjView, len(r.reg.objs))
	for i, to := range r.reg.objs {
		to.mu.Lock()
		latest := to.vl.versions[len(to.vl.versions)-1]
		views[i] = TobjView{
			ID:           to.id,
			Value:        latest.val,
			CTS:          latest.cts,
			VersionCount: to.vl.len(),
			ReaderCount:  latest.rl.len(),
		}
		to.mu.Unlock()
	}
	return views
}
