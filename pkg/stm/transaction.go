package stm

import "sync"

// txnState is the transaction state machine of spec §4.7, with the
// valid/state collapse from Design Notes §9: stateDoomed folds the
// source's separate "g_valid = false while state = LIVE" flag into the
// enum as an explicit fourth state, while keeping state transitions
// externally equivalent to {LIVE, COMMIT, ABORT}.
type txnState int

const (
	stateLive txnState = iota
	stateDoomed
	stateCommitted
	stateAborted
)

// NilTimestamp is the sentinel passed to Begin for a transaction's very
// first attempt (spec §GLOSSARY "NIL", §6 tbegin contract).
const NilTimestamp TxID = 0

// pair is a (tobj id, value) pair, the wire shape of TobIdValPair in
// original_source/PKTO.cpp, used for both read-set and write-set
// entries.
type pair struct {
	id  int
	val any
}

// Transaction is a transaction descriptor (spec §3). It has two
// logical facets folded into one struct, exactly as PKTO.cpp's
// GTransaction/LTransaction split is described: a global part other
// transactions observe through the descriptor mutex (ID, GITS, GCTS,
// state), and a local part private to the owning goroutine (read-set,
// write-set, held-lock bookkeeping).
type Transaction struct {
	ID   TxID
	GITS TxID // initial timestamp: inherited across retries, encodes priority
	GCTS TxID // current timestamp: fresh on every (re)begin

	mu    sync.Mutex
	state txnState

	// readSet and writeSet are kept sorted ascending by tobj id, exactly
	// as find_set/stmWrite require in the source.
	readSet  []pair
	writeSet []pair

	// Lock bookkeeping private to the owning goroutine: which tobj ids
	// and which descriptors this transaction currently holds locked, so
	// stmAbort/stmTryCommit can release exactly what they acquired
	// (spec §9 "Manual lock tracking").
	tobjsLocked []int
	transLocked []*Transaction
}

func newTransaction(id, its, cts TxID) *Transaction {
	return &Transaction{ID: id, GITS: its, GCTS: cts, state: stateLive}
}

// isDoomed reports whether the transaction should be treated as a
// non-reader/non-survivor by anyone inspecting it from another
// goroutine: already aborted, or live-but-invalidated (PKTO.cpp's
// isAborted: g_valid == FALSE || g_state == ABORT). Callers must NOT
// already hold t.mu; use isDoomedLocked for that case.
func (t *Transaction) isDoomed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isDoomedLocked()
}

// isDoomedLocked is isDoomed for a caller that already holds t.mu (the
// commit protocol's Phase-2 descriptor locks, spec §4.3 steps 6-7).
func (t *Transaction) isDoomedLocked() bool {
	return t.state == stateDoomed || t.state == stateAborted
}

// State reports the transaction's externally visible state. A doomed
// transaction that has not yet run its own abort path still reports
// Live here (the spec models "doomed" as an internal detail the owner
// observes at its next operation, per spec §4.7) but isDoomed reflects
// it immediately for other goroutines deciding whether to trust it as
// a reader.
func (t *Transaction) State() (live, committed, aborted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case stateCommitted:
		return false, true, false
	case stateAborted:
		return false, false, true
	default:
		return true, false, false
	}
}

// markDoomed sets the transaction to the "aborting soon" phase without
// flipping it to the terminal ABORT state — only the owning goroutine
// does that, at its next operation (spec §4.7). TryCommit's step 7 does
// not call it: it already holds each victim's descriptor mutex and sets
// the state directly.
func (t *Transaction) markDoomed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateLive {
		t.state = stateDoomed
	}
}

// findInWriteSet returns the buffered value for id and true if id is in
// the write-set (spec §4.4 read-your-own-write).
func (t *Transaction) findInWriteSet(id int) (any, bool) {
	for _, p := range t.writeSet {
		if p.id == id {
			return p.val, true
		}
	}
	return nil, false
}

// findInReadSet returns the cached value for id and true if id is in
// the read-set (spec §4.4 repeatable read).
func (t *Transaction) findInReadSet(id int) (any, bool) {
	for _, p := range t.readSet {
		if p.id == id {
			return p.val, true
		}
	}
	return nil, false
}

// appendReadSet records that id was read with value val, keeping the
// read-set in ascending-id order. Callers hold t.mu.
func (t *Transaction) appendReadSet(id int, val any) {
	at := len(t.readSet)
	for i, p := range t.readSet {
		if p.id > id {
			at = i
			break
		}
	}
	t.readSet = append(t.readSet, pair{})
	copy(t.readSet[at+1:], t.readSet[at:])
	t.readSet[at] = pair{id: id, val: val}
}

// upsertWriteSet inserts (id, val) into the write-set in ascending-id
// order, collapsing an existing entry for id (latest write wins),
// exactly as PKTO.cpp's stmWrite.
func (t *Transaction) upsertWriteSet(id int, val any) {
	for i, p := range t.writeSet {
		if p.id == id {
			t.writeSet[i].val = val
			return
		}
		if p.id > id {
			t.writeSet = append(t.writeSet, pair{})
			copy(t.writeSet[i+1:], t.writeSet[i:])
			t.writeSet[i] = pair{id: id, val: val}
			return
		}
	}
	t.writeSet = append(t.writeSet, pair{id: id, val: val})
}

// noteTobjLocked and noteTransLocked track acquisitions so abort/commit can
// release exactly what was taken (spec §9 "no lock outlives the
// transaction that acquired it").
func (t *Transaction) noteTobjLocked(id int) {
	t.tobjsLocked = append(t.tobjsLocked, id)
}

func (t *Transaction) noteTransLocked(other *Transaction) {
	t.transLocked = append(t.transLocked, other)
}
