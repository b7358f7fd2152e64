package syscount_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/syscount/syscount"
)

func TestSnapshotNonZero(t *testing.T) {
	table := syscount.NewTable()

	table.Increment(3)
	table.Increment(3)
	table.Increment(511)

	stats := table.Snapshot().NonZero()

	require.Equal(t, []syscount.Stat{
		{SyscallNr: 3, Count: 2},
		{SyscallNr: 511, Count: 1},
	}, stats)
}

func TestStatJSONEncoding(t *testing.T) {
	bts, err := json.Marshal([]syscount.Stat{
		{SyscallNr: 3, Count: 2},
		{SyscallNr: 511, Count: 1},
	})
	require.NoError(t, err)

	require.JSONEq(
		t,
		`[{"syscall_nr":3,"count":2},{"syscall_nr":511,"count":1}]`,
		string(bts),
	)
}

func TestSnapshotTotal(t *testing.T) {
	table := syscount.NewTable()

	for i := 0; i < 10; i++ {
		table.Increment(uint64(i % 3))
	}

	require.Equal(t, uint64(10), table.Snapshot().Total())
}

func TestSnapshotDelta(t *testing.T) {
	table := syscount.NewTable()

	table.Increment(5)
	first := table.Snapshot()

	table.Increment(5)
	table.Increment(9)
	second := table.Snapshot()

	delta := second.Delta(first)

	require.Equal(t, uint64(1), delta.Counts[5])
	require.Equal(t, uint64(1), delta.Counts[9])
	require.Equal(t, uint64(2), delta.Total())
}

func TestSnapshotDeltaNilPrev(t *testing.T) {
	table := syscount.NewTable()

	table.Increment(2)
	snap := table.Snapshot()

	require.Equal(t, snap.Counts, snap.Delta(nil).Counts)
}
