package syscount

// SysEnterEvent is one syscall entry as the kernel hands it over. Nr mirrors
// raw user/kernel state and arrives unvalidated.
type SysEnterEvent struct {
	Nr        uint64
	Timestamp uint64
}

// Action tells the host what to do with the syscall that raised the event.
type Action int32

// ActionContinue lets the syscall proceed untouched. Tracing is purely
// observational; no other action exists.
const ActionContinue Action = 0

// Handler counts syscall entries into a shared table. It holds no state of
// its own between invocations.
type Handler struct {
	table *Table
}

func NewHandler(table *Table) *Handler {
	return &Handler{table: table}
}

// HandleSysEnter records one syscall entry. It never allocates, never
// blocks, and returns ActionContinue whatever the event contains; an out of
// range number leaves the table as it was.
func (h *Handler) HandleSysEnter(event SysEnterEvent) Action {
	h.table.Increment(event.Nr)

	return ActionContinue
}
