package stm

import "github.com/mnohosten/pkto/pkg/concurrent"

// stats holds the observational, protocol-independent counters spec §5
// calls out: "Global memory-accounting counters (version count,
// RL-node count) are atomic and observational only (not consulted by
// the protocol)." They mirror original_source/PKTO.cpp's totalVersions
// and totalReadListNodes atomics, extended with the commit/abort
// tallies (and the finer abort classification from SPEC_FULL.md's
// supplemented benchmark driver) that pkg/metrics exposes. Every
// counter is a concurrent.Counter rather than a bare atomic field: the
// protocol increments or decrements by one node at a time, except that
// evicting a version subtracts its whole reader list at once, which is
// what Counter's lock-free Inc/Dec/Sub already give the rest of this
// codebase.
type stats struct {
	totalVersions      concurrent.Counter
	totalReadListNodes concurrent.Counter

	commits                  concurrent.Counter
	abortsMissingPredecessor concurrent.Counter
	abortsInvalidated        concurrent.Counter
	abortsPriorityLoss       concurrent.Counter
	abortsExplicit           concurrent.Counter // stmAbort called directly by the driver
	victimsMarked            concurrent.Counter // transactions doomed by someone else's commit
}

func (s *stats) versionsCreated() { s.totalVersions.Inc() }
func (s *stats) versionEvicted()  { s.totalVersions.Dec() }
func (s *stats) readListNodesFreed(n int) {
	if n > 0 {
		s.totalReadListNodes.Sub(uint64(n))
	}
}
func (s *stats) readListNodeAdded() { s.totalReadListNodes.Inc() }

func (s *stats) committed()                 { s.commits.Inc() }
func (s *stats) abortedMissingPredecessor() { s.abortsMissingPredecessor.Inc() }
func (s *stats) abortedInvalidated()        { s.abortsInvalidated.Inc() }
func (s *stats) abortedPriorityLoss()       { s.abortsPriorityLoss.Inc() }
func (s *stats) abortedExplicit()           { s.abortsExplicit.Inc() }
func (s *stats) victimMarked()              { s.victimsMarked.Inc() }

// Snapshot is a point-in-time, lock-free read of runtime counters,
// returned by (*Runtime).Stats and consumed by pkg/metrics and
// pkg/server's /stats endpoint.
type Snapshot struct {
	TotalVersions            uint64
	TotalReadListNodes       uint64
	Commits                  uint64
	AbortsMissingPredecessor uint64
	AbortsInvalidated        uint64
	AbortsPriorityLoss       uint64
	AbortsExplicit           uint64
	VictimsMarked            uint64
}

func (s *stats) snapshot() Snapshot {
	return Snapshot{
		TotalVersions:            s.totalVersions.Load(),
		TotalReadListNodes:       s.totalReadListNodes.Load(),
		Commits:                  s.commits.Load(),
		AbortsMissingPredecessor: s.abortsMissingPredecessor.Load(),
		AbortsInvalidated:        s.abortsInvalidated.Load(),
		AbortsPriorityLoss:       s.abortsPriorityLoss.Load(),
		AbortsExplicit:           s.abortsExplicit.Load(),
		VictimsMarked:            s.victimsMarked.Load(),
	}
}
