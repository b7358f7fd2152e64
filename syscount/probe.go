package syscount

import (
	"fmt"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"go.uber.org/zap"
)

// License is declared to the kernel at program load. GPL is required for the
// helpers the programs call.
const License = "GPL"

// sysEnterNrOffset is where the syscall number sits inside the raw
// sys_enter tracepoint context (args[1], after the pt_regs pointer). This is
// kernel ABI, not ours to choose.
const sysEnterNrOffset = 8

// eventsRingSize is the ring buffer capacity in bytes. Must be a power of
// two multiple of the page size.
const eventsRingSize = 1 << 16

// Probe owns the kernel side of the tracer: the counter table map, the event
// ring, and the two sys_enter programs.
type Probe struct {
	logger   *zap.SugaredLogger
	counts   *ebpf.Map
	events   *ebpf.Map
	counter  *ebpf.Program
	streamer *ebpf.Program
}

// NewProbe loads the maps and programs into the kernel. The kernel verifier
// rejects anything unbounded or unsafe here, before attachment.
func NewProbe(logger *zap.SugaredLogger) (*Probe, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("are you root? failed to remove memlock: %w", err)
	}

	counts, err := ebpf.NewMap(countsMapSpec())
	if err != nil {
		return nil, fmt.Errorf("failed to create syscall counts map: %w", err)
	}

	events, err := ebpf.NewMap(eventsMapSpec())
	if err != nil {
		counts.Close()
		return nil, fmt.Errorf("failed to create syscall events ring: %w", err)
	}

	counter, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "sys_enter_count",
		Type:         ebpf.RawTracepoint,
		Instructions: counterInstructions(counts.FD()),
		License:      License,
	})
	if err != nil {
		counts.Close()
		events.Close()
		return nil, fmt.Errorf("failed to load counter program: %w", err)
	}

	streamer, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:         "sys_enter_stream",
		Type:         ebpf.RawTracepoint,
		Instructions: streamerInstructions(events.FD()),
		License:      License,
	})
	if err != nil {
		counts.Close()
		events.Close()
		counter.Close()
		return nil, fmt.Errorf("failed to load streamer program: %w", err)
	}

	return &Probe{
		logger:   logger,
		counts:   counts,
		events:   events,
		counter:  counter,
		streamer: streamer,
	}, nil
}

func countsMapSpec() *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       "syscall_counts",
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: MaxSyscalls,
	}
}

func eventsMapSpec() *ebpf.MapSpec {
	return &ebpf.MapSpec{
		Name:       "syscall_events",
		Type:       ebpf.RingBuf,
		MaxEntries: eventsRingSize,
	}
}

// counterInstructions builds the in-kernel entry handler. One straight path
// per event: read the syscall number, look its slot up in the array map,
// atomic fetch-and-add on a hit. A number >= MaxSyscalls misses the lookup
// and falls through to return 0, so untrusted input can never fault.
func counterInstructions(countsFD int) asm.Instructions {
	return asm.Instructions{
		// r0 = args[1], the syscall number
		asm.LoadMem(asm.R0, asm.R1, sysEnterNrOffset, asm.DWord),
		// the array key is u32; spill the low half to the stack
		asm.StoreMem(asm.RFP, -8, asm.R0, asm.Word),
		asm.LoadMapPtr(asm.R1, countsFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -8),
		asm.FnMapLookupElem.Call(),
		asm.JEq.Imm(asm.R0, 0, "out"),
		asm.Mov.Imm(asm.R1, 1),
		asm.StoreXAdd(asm.R0, asm.R1, asm.DWord),
		asm.Mov.Imm(asm.R0, 0).WithSymbol("out"),
		asm.Return(),
	}
}

// streamerInstructions builds the event-emitting handler: the syscall number
// and a timestamp go out through the ring buffer, and user space does the
// counting. A full ring drops the event; the syscall continues either way.
func streamerInstructions(eventsFD int) asm.Instructions {
	return asm.Instructions{
		// r6 survives the helper call below
		asm.LoadMem(asm.R6, asm.R1, sysEnterNrOffset, asm.DWord),
		asm.FnKtimeGetNs.Call(),
		// event record on the stack: nr then timestamp
		asm.StoreMem(asm.RFP, -16, asm.R6, asm.DWord),
		asm.StoreMem(asm.RFP, -8, asm.R0, asm.DWord),
		asm.LoadMapPtr(asm.R1, eventsFD),
		asm.Mov.Reg(asm.R2, asm.RFP),
		asm.Add.Imm(asm.R2, -16),
		asm.Mov.Imm(asm.R3, eventSize),
		asm.Mov.Imm(asm.R4, 0),
		asm.FnRingbufOutput.Call(),
		asm.Mov.Imm(asm.R0, 0),
		asm.Return(),
	}
}

// AttachCounter attaches the counting program to the sys_enter raw
// tracepoint. Closing the returned link detaches it.
func (p *Probe) AttachCounter() (link.Link, error) {
	tp, err := link.AttachRawTracepoint(link.RawTracepointOptions{
		Name:    "sys_enter",
		Program: p.counter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to raw tracepoint: %w", err)
	}

	return tp, nil
}

// AttachStreamer attaches the event-emitting program to the sys_enter raw
// tracepoint.
func (p *Probe) AttachStreamer() (link.Link, error) {
	tp, err := link.AttachRawTracepoint(link.RawTracepointOptions{
		Name:    "sys_enter",
		Program: p.streamer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to raw tracepoint: %w", err)
	}

	return tp, nil
}

// Events exposes the ring buffer map for a ringbuf reader.
func (p *Probe) Events() *ebpf.Map {
	return p.events
}

// Counts reads all MaxSyscalls slots of the kernel table into a snapshot.
// Readers never coordinate with the programs, so slots are consistent
// individually, not with each other.
func (p *Probe) Counts() (*Snapshot, error) {
	snap := Snapshot{Timestamp: uint64(time.Now().UnixNano())}

	for nr := uint32(0); nr < MaxSyscalls; nr++ {
		var count uint64

		if err := p.counts.Lookup(&nr, &count); err != nil {
			return nil, fmt.Errorf("failed to read counter slot %d: %w", nr, err)
		}

		snap.Counts[nr] = count
	}

	return &snap, nil
}

// Reset zeroes every slot of the counter table. The kernel zeroes the map at
// creation; Reset is for reattaching without reloading the probe.
func (p *Probe) Reset() error {
	zero := uint64(0)

	for nr := uint32(0); nr < MaxSyscalls; nr++ {
		if err := p.counts.Put(&nr, &zero); err != nil {
			return fmt.Errorf("failed to zero counter slot %d: %w", nr, err)
		}
	}

	return nil
}

// Pin exposes the counter table at path on a bpffs mount so other processes
// can read it directly.
func (p *Probe) Pin(path string) error {
	if err := p.counts.Pin(path); err != nil {
		return fmt.Errorf("failed to pin counter table at %s: %w", path, err)
	}

	return nil
}

func (p *Probe) Close() error {
	for name, closer := range map[string]interface{ Close() error }{
		"counter program":  p.counter,
		"streamer program": p.streamer,
		"counts map":       p.counts,
		"events map":       p.events,
	} {
		if err := closer.Close(); err != nil {
			p.logger.Errorw("failed to close bpf object", "object", name, "err", err)
		}
	}

	return nil
}
