// Command benchctl drives a PKTO runtime with concurrent workers, each
// repeatedly running short transactions over a shared tobj universe and
// retrying on abort. It mirrors the load pattern of
// original_source/PKTO_testApp.cpp's TestAppln: a worker begins a
// transaction, issues a random mix of reads and writes across the tobj
// range, tries to commit, and on ABORTED restarts the same transaction by
// inheriting its GITS so priority carries across retries.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mnohosten/pkto/pkg/stm"
)

func main() {
	workers := flag.Int("workers", 64, "number of concurrent worker goroutines")
	transactions := flag.Int("transactions", 10000, "total number of transactions to run to completion")
	tobjs := flag.Int("tobjs", 5, "number of transactional objects in the runtime")
	k := flag.Int("k", 5, "per-tobj bound on retained version history")
	opsPerTx := flag.Int("ops", 10, "operations per transaction")
	readPercent := flag.Int("read-pct", 10, "percent chance (0-100) that an operation is a read rather than a write")
	writeRange := flag.Int("write-range", 1000, "writes use a random value in [0, write-range)")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if *workers < 1 || *transactions < 1 || *tobjs < 1 {
		fmt.Fprintln(os.Stderr, "workers, transactions, and tobjs must all be positive")
		os.Exit(1)
	}

	rt := stm.New(*tobjs, &stm.Config{K: *k})

	var completed int64
	var readAborts, writeAborts uint64
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(*seed + int64(workerID)))
			for {
				if atomic.AddInt64(&completed, 1) > int64(*transactions) {
					return
				}
				runTransaction(rt, rng, *opsPerTx, *tobjs, *readPercent, *writeRange, &readAborts, &writeAborts)
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	snap := rt.Stats()
	fmt.Printf("transactions:      %d\n", *transactions)
	fmt.Printf("workers:           %d\n", *workers)
	fmt.Printf("elapsed:           %s\n", elapsed)
	fmt.Printf("commits/sec:       %.0f\n", float64(snap.Commits)/elapsed.Seconds())
	fmt.Printf("read aborts:       %d\n", readAborts)
	fmt.Printf("write aborts:      %d\n", writeAborts)
	fmt.Printf("commits:           %d\n", snap.Commits)
	fmt.Printf("aborts (missing):  %d\n", snap.AbortsMissingPredecessor)
	fmt.Printf("aborts (stale):    %d\n", snap.AbortsInvalidated)
	fmt.Printf("aborts (priority): %d\n", snap.AbortsPriorityLoss)
	fmt.Printf("victims marked:    %d\n", snap.VictimsMarked)
	fmt.Printf("total versions:    %d\n", snap.TotalVersions)
}

// runTransaction drives one transaction to a terminal outcome, retrying
// with the same GITS (and therefore the same priority) after every abort,
// the same loop shape as TestAppln::testFunc's "goto label" retry.
func runTransaction(rt *stm.Runtime, rng *rand.Rand, opsPerTx, tobjCount, readPercent, writeRange int, readAborts, writeAborts *uint64) {
	var its stm.TxID
	for {
		tx, err := rt.Begin(its)
		if err != nil {
			return
		}

		aborted := false
		for i := 0; i < opsPerTx; i++ {
			id := rng.Intn(tobjCount)
			if rng.Intn(100) < readPercent {
				if _, status, _ := rt.Read(tx, id); status == stm.Aborted {
					atomic.AddUint64(readAborts, 1)
					aborted = true
					break
				}
				continue
			}
			if status, _ := rt.Write(tx, id, rng.Intn(writeRange)); status == stm.Aborted {
				atomic.AddUint64(writeAborts, 1)
				aborted = true
				break
			}
		}

		if aborted {
			its = tx.GITS
			continue
		}

		if status, _ := rt.TryCommit(tx); status == stm.Aborted {
			atomic.AddUint64(writeAborts, 1)
			its = tx.GITS
			continue
		}
		return
	}
}
