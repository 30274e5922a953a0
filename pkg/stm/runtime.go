package stm

// Status is the only outcome visible at the protocol boundary (spec
// §7): "Only two outcomes exist at the protocol boundary: OK and
// ABORTED." Aborts are not exceptional — callers retry, they don't
// handle a cause code.
type Status int

const (
	// OK indicates the operation succeeded.
	OK Status = iota
	// Aborted indicates the transaction must retry (via Begin with the
	// aborted transaction's GITS) or give up; it carries no cause code.
	Aborted
)

func (s Status) String() string {
	if s == OK {
		return "OK"
	}
	return "ABORTED"
}

// Config configures a Runtime at construction time.
type Config struct {
	// K is the per-tobj bound on retained version history (spec §3).
	K int
}

// DefaultConfig returns the spec's default K of 5 (spec §3).
func DefaultConfig() *Config {
	return &Config{K: 5}
}

// Runtime is the single shared PKTO instance (spec §2 "System
// Overview"): a fixed tobj registry plus the timestamp allocator. It is
// safe for concurrent use by many goroutines.
type Runtime struct {
	reg   *registry
	alloc *allocator
	stats *stats
	k     int
}

// New initializes a runtime with n tobjs, each starting at a single
// version (cts=0, val=0), per spec §6's `new(N)` contract. A nil cfg
// uses DefaultConfig.
func New(n int, cfg *Config) *Runtime {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	k := cfg.K
	if k < 1 {
		k = 1
	}
	st := &stats{}
	return &Runtime{
		reg:   newRegistry(n, k, st),
		alloc: newAllocator(),
		stats: st,
		k:     k,
	}
}

// Size returns N, the fixed tobj count this runtime was created with.
func (r *Runtime) Size() int { return r.reg.size() }

// Stats returns a point-in-time snapshot of the runtime's observational
// counters (spec §5).
func (r *Runtime) Stats() Snapshot { return r.stats.snapshot() }

// Begin allocates a fresh transaction id and starts a new transaction
// (spec §6 `tbegin`). its == NilTimestamp means this is a first attempt
// (g_its = g_cts = id); any other value means this is a retry
// inheriting its from a previously aborted attempt (g_its = its,
// g_cts = a fresh id). Begin returns a *FatalError if the timestamp
// allocator has overflowed.
func (r *Runtime) Begin(its TxID) (*Transaction, error) {
	id, ok := r.alloc.alloc()
	if !ok {
		return nil, &FatalError{Op: "tbegin", Err: ErrAllocatorOverflow}
	}
	if its == NilTimestamp {
		return newTransaction(id, id, id), nil
	}
	return newTransaction(id, its, id), nil
}
