package stm

// Abort implements stmAbort (spec §4.6, §6): terminal, returns OK except
// for a nil or already-committed transaction, which is a *FatalError.
// It releases every lock the transaction currently holds (tracked in
// tobjsLocked/transLocked — spec §9 "Manual lock tracking") and marks
// the descriptor ABORT. No version-list mutation happens here: pending
// writes were never installed, and any read-set reader-list entries
// are released lazily on version eviction (spec §4.6).
func (r *Runtime) Abort(tx *Transaction) (Status, error) {
	if tx == nil {
		return Aborted, &FatalError{Op: "stmAbort", Err: ErrNilTransaction}
	}

	tx.mu.Lock()
	if tx.state == stateCommitted {
		tx.mu.Unlock()
		return Aborted, &FatalError{Op: "stmAbort", TxID: tx.ID, Err: ErrTerminalTransaction}
	}
	tx.state = stateAborted
	locked := tx.tobjsLocked
	transLocked := tx.transLocked
	tx.tobjsLocked = nil
	tx.transLocked = nil
	tx.mu.Unlock()

	r.unlockAll(tx, locked, transLocked)
	r.stats.abortedExplicit()
	return OK, nil
}

// unlockAll releases every tobj mutex and every descriptor mutex this
// transaction is recorded as holding, in any order (unlocking commutes
// regardless of the acquisition order that matters for deadlock
// avoidance). Mirrors original_source/PKTO.cpp's unlockAll.
func (r *Runtime) unlockAll(tx *Transaction, tobjIDs []int, trans []*Transaction) {
	for _, id := range tobjIDs {
		if to, err := r.reg.get(id); err == nil {
			to.mu.Unlock()
		}
	}
	for _, other := range trans {
		other.mu.Unlock()
	}
}
