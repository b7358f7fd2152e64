package syscount

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

type Reporter interface {
	Report(snap *Snapshot)
	WriteFile(filepath string) error
}

type countsReporter struct {
	logger *zap.SugaredLogger
	// latest is the newest snapshot; counters are running totals, so older
	// snapshots carry no extra information
	latest *Snapshot
	mu     sync.Mutex
}

// NewCountsReporter is a thread safe reporter that keeps the most recent
// snapshot and writes it out as a JSON object of "syscall_<nr>" keys. Slots
// that never fired are omitted.
func NewCountsReporter(logger *zap.SugaredLogger) Reporter {
	return &countsReporter{logger: logger}
}

func (r *countsReporter) Report(snap *Snapshot) {
	r.mu.Lock()
	r.latest = snap
	r.mu.Unlock()
}

func (r *countsReporter) WriteFile(filepath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Infow("saving syscall counts", "filepath", filepath)

	out := make(map[string]uint64)

	if r.latest != nil {
		for _, stat := range r.latest.NonZero() {
			out[fmt.Sprintf("syscall_%d", stat.SyscallNr)] = stat.Count
		}
	}

	bts, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshall counts: %w", err)
	}

	if err := os.WriteFile(filepath, bts, 0o777); err != nil {
		return fmt.Errorf("failed to save syscall counts: %w", err)
	}

	return nil
}
