package syscount_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/syscount/syscount"
	"golang.org/x/sync/errgroup"
)

func TestIncrementLeavesOtherSlotsAlone(t *testing.T) {
	table := syscount.NewTable()

	for i := 0; i < 3; i++ {
		table.Increment(0)
	}

	require.Equal(t, uint64(3), table.Get(0))

	for nr := uint64(1); nr < syscount.MaxSyscalls; nr++ {
		require.Zero(t, table.Get(nr), "slot %d should be untouched", nr)
	}
}

func TestIncrementMaxValidSlot(t *testing.T) {
	table := syscount.NewTable()

	table.Increment(syscount.MaxSyscalls - 1)

	require.Equal(t, uint64(1), table.Get(syscount.MaxSyscalls-1))
}

func TestIncrementOutOfRangeIsNoOp(t *testing.T) {
	cases := []struct {
		name string
		nr   uint64
	}{
		{name: "one past max", nr: syscount.MaxSyscalls},
		{name: "far past max", nr: 1 << 20},
		{name: "max uint64", nr: ^uint64(0)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			table := syscount.NewTable()
			table.Increment(7)

			before := table.Snapshot()

			table.Increment(c.nr)

			require.Equal(t, before.Counts, table.Snapshot().Counts)
		})
	}
}

func TestGetOutOfRangeReadsZero(t *testing.T) {
	table := syscount.NewTable()

	require.Zero(t, table.Get(syscount.MaxSyscalls))
	require.Zero(t, table.Get(^uint64(0)))
}

func TestConcurrentIncrementsLoseNothing(t *testing.T) {
	const (
		workers   = 8
		perWorker = 125
		syscallNr = 7
		wantCalls = workers * perWorker
	)

	table := syscount.NewTable()

	var group errgroup.Group

	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for j := 0; j < perWorker; j++ {
				table.Increment(syscallNr)
			}

			return nil
		})
	}

	require.NoError(t, group.Wait())

	require.Equal(t, uint64(wantCalls), table.Get(syscallNr))
}

func TestSnapshotIsIdempotent(t *testing.T) {
	table := syscount.NewTable()

	table.Increment(1)
	table.Increment(1)
	table.Increment(42)

	first := table.Snapshot()
	second := table.Snapshot()

	require.Equal(t, first.Counts, second.Counts)
}
