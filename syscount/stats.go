package syscount

// Stat is one syscall's running total.
type Stat struct {
	SyscallNr uint64 `json:"syscall_nr"`
	Count     uint64 `json:"count"`
}

// Snapshot is a point-in-time copy of the whole counter table.
type Snapshot struct {
	Timestamp uint64
	Counts    [MaxSyscalls]uint64
}

// NonZero returns a stat for every syscall that has fired at least once,
// in syscall number order.
func (s *Snapshot) NonZero() []Stat {
	var stats []Stat

	for nr, count := range s.Counts {
		if count == 0 {
			continue
		}

		stats = append(stats, Stat{SyscallNr: uint64(nr), Count: count})
	}

	return stats
}

// Total is the number of syscalls across all slots.
func (s *Snapshot) Total() uint64 {
	var total uint64

	for _, count := range s.Counts {
		total += count
	}

	return total
}

// Delta subtracts an earlier snapshot slot by slot. Counters are monotonic
// within one attachment, so no difference ever goes negative. A nil prev
// returns a copy of s.
func (s *Snapshot) Delta(prev *Snapshot) *Snapshot {
	delta := Snapshot{Timestamp: s.Timestamp, Counts: s.Counts}

	if prev == nil {
		return &delta
	}

	for nr := range delta.Counts {
		delta.Counts[nr] -= prev.Counts[nr]
	}

	return &delta
}
