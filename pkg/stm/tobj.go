package stm

import "sync"

// tobj is a transactional object: a stable integer id, a mutex, and a
// bounded version history (spec §3 "Transactional object (tobj)"). The
// registry that owns tobjs is immutable after construction — only the
// version list inside each tobj mutates, and only under tobj.mu (spec
// §5).
type tobj struct {
	id int
	mu sync.Mutex
	vl *versionList
}

func newTobj(id, k int, st *stats) *tobj {
	return &tobj{
		id: id,
		vl: newVersionList(k, newVersion(0, 0), st),
	}
}

// registry is the fixed-size array of tobjs (spec §3 "Ownership": "The
// tobj registry exclusively owns tobjs and transitively their
// version-lists"). Size and identities are fixed at construction and
// never change afterward, so no registry-level mutex is needed — only
// per-tobj locking (spec §5 "The tobj registry is immutable after
// construction").
type registry struct {
	objs []*tobj
}

func newRegistry(n, k int, st *stats) *registry {
	objs := make([]*tobj, n)
	for i := range objs {
		objs[i] = newTobj(i, k, st)
	}
	return &registry{objs: objs}
}

func (r *registry) get(id int) (*tobj, error) {
	if id < 0 || id >= len(r.objs) {
		return nil, &FatalError{Op: "tobj lookup", Tobj: id, Err: ErrTobjOutOfRange}
	}
	return r.objs[id], nil
}

func (r *registry) size() int { return len(r.objs) }
