package stm

import "weak"

// readerList is the ordered, deduplicated set of live readers of one
// version (spec §3 "Reader list (RL)"). Entries are kept ascending by
// g_cts with no duplicate g_cts values, exactly as
// original_source/PKTO.cpp's insertAndSortRL maintains them.
//
// Reader-list entries hold a weak.Pointer to the reading transaction
// rather than a strong *Transaction: per spec §3's ownership rule, "the
// RL does not extend a transaction's lifetime" — the RL is a
// back-reference relation, not ownership. Using the standard library's
// weak package (instead of a hand-rolled id+generation handle table)
// gives us that decoupling for free: once nothing but reader-lists
// reference a transaction, it becomes collectible, and any RL that
// still names it simply resolves to nil on next access.
type readerList struct {
	entries []weak.Pointer[Transaction]
}

// insertSorted inserts tx into the list, skipping it if tx is already
// doomed or terminal (PKTO.cpp's insertAndSortRL "optimization check":
// a transaction that is already going to abort is never worth tracking
// as a reader) and skipping it if its g_cts is already present. A
// linear scan mirrors PKTO.cpp's list walk directly; reader lists stay
// small (bounded by concurrently live readers of one version), so this
// is not a hot-path concern. Callers hold tx.mu (stmRead takes it
// after the tobj mutex).
func (rl *readerList) insertSorted(tx *Transaction, st *stats) {
	if tx == nil || tx.isDoomedLocked() {
		return
	}
	cts := tx.GCTS
	insertAt := len(rl.entries)
	for i, e := range rl.entries {
		other := e.Value()
		if other == nil {
			continue // stale slot, collected reader; skip over it
		}
		if other.GCTS == cts {
			return // duplicate by g_cts: already present
		}
		if other.GCTS > cts {
			insertAt = i
			break
		}
	}
	ptr := weak.Make(tx)
	rl.entries = append(rl.entries, weak.Pointer[Transaction]{})
	copy(rl.entries[insertAt+1:], rl.entries[insertAt:])
	rl.entries[insertAt] = ptr
	st.readListNodeAdded()
}

// live returns the strong, ascending-by-g_cts list of readers that are
// still resolvable and not yet doomed/terminal. Stale (collected) or
// doomed entries are dropped, not returned.
func (rl *readerList) live() []*Transaction {
	out := make([]*Transaction, 0, len(rl.entries))
	for _, e := range rl.entries {
		tx := e.Value()
		if tx == nil || tx.isDoomed() {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// len reports the raw slot count, including possibly-stale entries;
// used for the observational node-count accounting (spec §5) and for
// TobjView.ReaderCount.
func (rl *readerList) len() int {
	return len(rl.entries)
}
