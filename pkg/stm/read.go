package stm

// Read implements stmRead (spec §4.4, §6). It returns the value read
// (valid only when status == OK), the status, and a non-nil error only
// for the fatal conditions of spec §7 (nil transaction, out-of-range
// tobj id, re-entrant use of a terminal descriptor).
func (r *Runtime) Read(tx *Transaction, id int) (any, Status, error) {
	if tx == nil {
		return nil, Aborted, &FatalError{Op: "stmRead", Err: ErrNilTransaction}
	}

	// Read-your-own-write (spec §4.4): write-set is local-only, no locks
	// needed.
	tx.mu.Lock()
	if tx.state == stateCommitted || tx.state == stateAborted {
		tx.mu.Unlock()
		return nil, Aborted, &FatalError{Op: "stmRead", TxID: tx.ID, Err: ErrTerminalTransaction}
	}
	if v, ok := tx.findInWriteSet(id); ok {
		tx.mu.Unlock()
		return v, OK, nil
	}
	// Repeatable read (spec §4.4): same transaction, same answer.
	if v, ok := tx.findInReadSet(id); ok {
		tx.mu.Unlock()
		return v, OK, nil
	}
	tx.mu.Unlock()

	to, err := r.reg.get(id)
	if err != nil {
		return nil, Aborted, err
	}

	// spec §5(iii): at most one tobj mutex and one descriptor mutex held
	// at a time on the read path, tobj acquired first.
	to.mu.Lock()
	defer to.mu.Unlock()

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state == stateDoomed {
		tx.state = stateAborted
		r.stats.abortedInvalidated()
		return nil, Aborted, nil
	}
	if tx.state != stateLive {
		return nil, Aborted, &FatalError{Op: "stmRead", TxID: tx.ID, Err: ErrTerminalTransaction}
	}

	v := to.vl.findLTS(tx.GCTS)
	if v == nil {
		// Eviction-induced staleness (spec §7, §8 scenario S5): the
		// predecessor this transaction needed has been evicted.
		tx.state = stateAborted
		r.stats.abortedMissingPredecessor()
		return nil, Aborted, nil
	}

	tx.appendReadSet(id, v.val)
	v.rl.insertSorted(tx, r.stats)

	return v.val, OK, nil
}
