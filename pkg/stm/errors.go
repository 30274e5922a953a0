package stm

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by pkg/stm. These never represent a normal
// ABORTED outcome (see Status) — they are the fatal, non-recoverable
// conditions spec §7 calls out: allocator overflow, an out-of-range
// tobj id, or re-entrant use of a terminal transaction.
var (
	// ErrAllocatorOverflow is returned when the timestamp allocator's
	// counter has been exhausted. The runtime must be recreated.
	ErrAllocatorOverflow = errors.New("stm: timestamp allocator overflow")

	// ErrTobjOutOfRange is returned when a caller references a tobj id
	// outside [0, N).
	ErrTobjOutOfRange = errors.New("stm: tobj id out of range")

	// ErrTerminalTransaction is returned when an operation is attempted
	// on a transaction that has already committed or aborted.
	ErrTerminalTransaction = errors.New("stm: transaction is no longer live")

	// ErrNilTransaction is returned when a nil transaction descriptor is
	// passed to an entry point. The source's isAborted(nil) fell through
	// without a return; this module treats that case as a programming
	// error rather than "not aborted".
	ErrNilTransaction = errors.New("stm: nil transaction")
)

// FatalError wraps one of the sentinels above with the offending ids so
// callers and logs can tell which transaction or tobj triggered it.
// Fatal errors are distinct from Aborted: they indicate programmer error
// or resource exhaustion, never a normal conflict-resolution outcome.
type FatalError struct {
	Op   string
	TxID TxID
	Tobj int
	Err  error
}

func (e *FatalError) Error() string {
	if e.Err == ErrTobjOutOfRange {
		return fmt.Sprintf("stm: %s: tobj %d: %v", e.Op, e.Tobj, e.Err)
	}
	if e.TxID != 0 {
		return fmt.Sprintf("stm: %s: tx %d: %v", e.Op, e.TxID, e.Err)
	}
	return fmt.Sprintf("stm: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
