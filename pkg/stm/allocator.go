package stm

import (
	"math"

	"github.com/mnohosten/pkto/pkg/concurrent"
)

// TxID is a transaction identifier and also the unit of timestamp
// ordering used for both g_its and g_cts (spec §4.1, §GLOSSARY).
type TxID uint64

// allocator is the single shared, strictly monotonic timestamp source
// (spec §4.1), built on the same lock-free concurrent.Counter the rest
// of this package uses for its observational stats. It never recycles
// a value; once exhausted it reports overflow rather than wrapping,
// per spec §9's recommended policy.
type allocator struct {
	next concurrent.Counter // 0 is reserved for "no value"
}

func newAllocator() *allocator {
	return &allocator{}
}

// alloc returns the next strictly increasing id, or false once the
// counter has reached its maximum; the counter then stays there.
func (a *allocator) alloc() (TxID, bool) {
	for {
		cur := a.next.Load()
		if cur == math.MaxUint64 {
			return 0, false
		}
		if a.next.CompareAndSwap(cur, cur+1) {
			return TxID(cur + 1), true
		}
	}
}

// peek returns the last value handed out, for diagnostics only.
func (a *allocator) peek() TxID {
	return TxID(a.next.Load())
}
