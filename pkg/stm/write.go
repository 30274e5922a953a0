package stm

// Write implements stmWrite (spec §4.5, §6): local-only, never fails,
// never touches shared state. It buffers (id, val) into the
// transaction's write-set, collapsing a duplicate id so the latest
// write wins.
func (r *Runtime) Write(tx *Transaction, id int, val any) (Status, error) {
	if tx == nil {
		return Aborted, &FatalError{Op: "stmWrite", Err: ErrNilTransaction}
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != stateLive && tx.state != stateDoomed {
		return Aborted, &FatalError{Op: "stmWrite", TxID: tx.ID, Err: ErrTerminalTransaction}
	}

	tx.upsertWriteSet(id, val)
	return OK, nil
}
