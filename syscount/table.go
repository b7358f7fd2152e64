package syscount

import (
	"sync/atomic"
	"time"
)

// MaxSyscalls is the fixed capacity of the counter table. Syscall numbers at
// or above this value are dropped.
const MaxSyscalls = 512

// Table maps syscall numbers to running invocation counts.
//
// The table is sized once and never grows. Slots are mutated only by atomic
// increment, so any number of writers and readers can touch it at the same
// time without locks.
type Table struct {
	counts [MaxSyscalls]atomic.Uint64
}

func NewTable() *Table {
	return &Table{}
}

// Get returns the running count for nr. Numbers outside the table read as
// zero.
func (t *Table) Get(nr uint64) uint64 {
	if nr >= MaxSyscalls {
		return 0
	}

	return t.counts[nr].Load()
}

// Increment adds one to nr's slot. Numbers outside the table are dropped
// silently: the caller sits on the syscall hot path and has nowhere to
// report a failure to.
func (t *Table) Increment(nr uint64) {
	if nr >= MaxSyscalls {
		return
	}

	t.counts[nr].Add(1)
}

// Snapshot copies every slot. Counters keep moving underneath, so slots are
// consistent individually, not with each other.
func (t *Table) Snapshot() *Snapshot {
	snap := Snapshot{Timestamp: uint64(time.Now().UnixNano())}

	for nr := range t.counts {
		snap.Counts[nr] = t.counts[nr].Load()
	}

	return &snap
}
