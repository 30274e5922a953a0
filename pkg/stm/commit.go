package stm

// insertTxSorted inserts tx into set in ascending-GCTS order,
// deduplicating by GCTS and skipping tx if it is already doomed or
// terminal — the same "optimization check" original_source/PKTO.cpp's
// insertAndSortRL applies everywhere it builds a transaction set
// (allRL, largeRL, abortRL) during commit. Callers must not already
// hold tx's own descriptor lock.
func insertTxSorted(set []*Transaction, tx *Transaction) []*Transaction {
	if tx == nil || tx.isDoomed() {
		return set
	}
	insertAt := len(set)
	for i, other := range set {
		if other.GCTS == tx.GCTS {
			return set // duplicate by g_cts
		}
		if other.GCTS > tx.GCTS {
			insertAt = i
			break
		}
	}
	set = append(set, nil)
	copy(set[insertAt+1:], set[insertAt:])
	set[insertAt] = tx
	return set
}

// TryCommit implements stmTryCommit (spec §4.3, §6): the nine-step
// multi-object commit protocol. It returns OK once every write is
// installed and the transaction is COMMIT, or Aborted (the transaction
// is now terminal either way).
//
// Locking note: largeRL always contains tx itself (step 3), so Phase-2
// (step 4) already locks tx's own descriptor mutex as part of locking
// largeRL in ascending g_cts order. Steps 5-9 below therefore access
// tx's and every largeRL member's fields directly, without locking
// again — sync.Mutex is not reentrant, and the lock is already held.
func (r *Runtime) TryCommit(tx *Transaction) (Status, error) {
	if tx == nil {
		return Aborted, &FatalError{Op: "stmTryCommit", Err: ErrNilTransaction}
	}

	// Step 1: self-validity recheck. Held only briefly, released before
	// the main acquisition sequence (spec §9 Design Notes — no
	// correctness property depends on keeping this lock across Phase-1).
	tx.mu.Lock()
	if tx.state == stateCommitted || tx.state == stateAborted {
		tx.mu.Unlock()
		return Aborted, &FatalError{Op: "stmTryCommit", TxID: tx.ID, Err: ErrTerminalTransaction}
	}
	if tx.state == stateDoomed {
		tx.state = stateAborted
		tx.mu.Unlock()
		r.stats.abortedInvalidated()
		return Aborted, nil
	}
	tx.mu.Unlock()

	// abortPrePhase2 aborts tx before Phase-2 has locked anything beyond
	// tx.tobjsLocked — tx's own descriptor mutex is not held by us yet,
	// so it must be locked fresh here.
	abortPrePhase2 := func(reason func()) (Status, error) {
		tx.mu.Lock()
		tx.state = stateAborted
		tx.mu.Unlock()
		r.unlockAll(tx, tx.tobjsLocked, nil)
		tx.tobjsLocked = nil
		reason()
		return Aborted, nil
	}

	// Step 2: Phase-1 acquire. write-set is kept sorted by id (write.go
	// upsertWriteSet), which is exactly the global tobj acquisition order
	// spec §5(i) requires to prevent deadlock. Every acquisition is
	// recorded on tx itself (spec §9 "Manual lock tracking") so Abort
	// can release exactly what Phase-1/Phase-2 took.
	var allRL []*Transaction
	for _, w := range tx.writeSet {
		to, err := r.reg.get(w.id)
		if err != nil {
			r.unlockAll(tx, tx.tobjsLocked, nil)
			tx.tobjsLocked = nil
			return Aborted, err
		}
		to.mu.Lock()
		tx.noteTobjLocked(w.id)

		prevVer := to.vl.findLTS(tx.GCTS)
		if prevVer == nil {
			return abortPrePhase2(r.stats.abortedMissingPredecessor)
		}
		for _, reader := range prevVer.rl.live() {
			allRL = insertTxSorted(allRL, reader)
		}
	}

	// Step 3: derive largeRL = {R in allRL | R.GCTS > T.GCTS} ∪ {T}.
	var largeRL []*Transaction
	for _, reader := range allRL {
		if reader.GCTS > tx.GCTS {
			largeRL = insertTxSorted(largeRL, reader)
		}
	}
	largeRL = insertTxSorted(largeRL, tx)

	// Step 4: Phase-2 acquire, ascending g_cts order — this extends the
	// total lock order established in Phase-1 to descriptors (spec §5).
	// largeRL contains tx itself, so this also (re-)locks tx.mu. Each
	// acquisition is recorded on tx so Abort can release exactly this
	// set (spec §9 "Manual lock tracking").
	for _, other := range largeRL {
		other.mu.Lock()
		tx.noteTransLocked(other)
	}

	// From here on, every transaction in largeRL (including tx) is
	// locked by us; access fields directly.

	// Step 5: re-validate under those locks.
	if tx.isDoomedLocked() {
		tx.state = stateAborted
		r.unlockAll(tx, tx.tobjsLocked, tx.transLocked)
		tx.tobjsLocked, tx.transLocked = nil, nil
		r.stats.abortedInvalidated()
		return Aborted, nil
	}

	// Step 6: resolve conflicts.
	var abortRL []*Transaction
	for _, other := range largeRL {
		if other == tx {
			continue
		}
		if other.isDoomedLocked() {
			continue // already aborted or about to be; ignore
		}
		if tx.GITS < other.GITS && other.state == stateLive {
			// T has the older original attempt: higher priority, T
			// survives, the younger reader is marked for abort.
			abortRL = append(abortRL, other)
			continue
		}
		// T must yield.
		tx.state = stateAborted
		r.unlockAll(tx, tx.tobjsLocked, tx.transLocked)
		tx.tobjsLocked, tx.transLocked = nil, nil
		r.stats.abortedPriorityLoss()
		return Aborted, nil
	}

	// Step 7: cascade aborts. The victim observes this at its own next
	// operation and self-transitions to ABORT there (spec §4.3 step 7).
	for _, victim := range abortRL {
		if victim.state == stateLive {
			victim.state = stateDoomed
			r.stats.victimMarked()
		}
	}

	// Step 8: install writes. The tobj mutexes were taken in Phase-1 and
	// are still held.
	for _, w := range tx.writeSet {
		to, _ := r.reg.get(w.id) // already validated to exist above
		to.vl.insert(newVersion(tx.GCTS, w.val))
	}

	// Step 9: commit.
	tx.state = stateCommitted
	r.unlockAll(tx, tx.tobjsLocked, tx.transLocked)
	tx.tobjsLocked, tx.transLocked = nil, nil
	r.stats.committed()

	return OK, nil
}
