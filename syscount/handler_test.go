package syscount_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tcassar-diss/syscount/syscount"
	"golang.org/x/sync/errgroup"
)

func TestHandleSysEnterCounts(t *testing.T) {
	cases := []struct {
		name   string
		events []syscount.SysEnterEvent
		nr     uint64
		want   uint64
	}{
		{
			name: "slot zero three times",
			events: []syscount.SysEnterEvent{
				{Nr: 0, Timestamp: 1},
				{Nr: 0, Timestamp: 2},
				{Nr: 0, Timestamp: 3},
			},
			nr:   0,
			want: 3,
		},
		{
			name:   "max valid slot once",
			events: []syscount.SysEnterEvent{{Nr: syscount.MaxSyscalls - 1}},
			nr:     syscount.MaxSyscalls - 1,
			want:   1,
		},
		{
			name: "mixed slots",
			events: []syscount.SysEnterEvent{
				{Nr: 1}, {Nr: 60}, {Nr: 1},
			},
			nr:   1,
			want: 2,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			table := syscount.NewTable()
			handler := syscount.NewHandler(table)

			for _, event := range c.events {
				require.Equal(t, syscount.ActionContinue, handler.HandleSysEnter(event))
			}

			require.Equal(t, c.want, table.Get(c.nr))
		})
	}
}

func TestHandleSysEnterOutOfRange(t *testing.T) {
	table := syscount.NewTable()
	handler := syscount.NewHandler(table)

	action := handler.HandleSysEnter(syscount.SysEnterEvent{Nr: syscount.MaxSyscalls})

	require.Equal(t, syscount.ActionContinue, action)

	for nr := uint64(0); nr < syscount.MaxSyscalls; nr++ {
		require.Zero(t, table.Get(nr), "slot %d should be untouched", nr)
	}
}

func TestHandleSysEnterConcurrent(t *testing.T) {
	const (
		workers   = 8
		perWorker = 125
	)

	table := syscount.NewTable()
	handler := syscount.NewHandler(table)

	var group errgroup.Group

	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for j := 0; j < perWorker; j++ {
				if action := handler.HandleSysEnter(syscount.SysEnterEvent{Nr: 7}); action != syscount.ActionContinue {
					return fmt.Errorf("unexpected action %d", action)
				}
			}

			return nil
		})
	}

	require.NoError(t, group.Wait())

	require.Equal(t, uint64(workers*perWorker), table.Get(7))
}
