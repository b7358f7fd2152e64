package syscount

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cilium/ebpf/ringbuf"
	"go.uber.org/zap"
)

type Config struct {
	// PollInterval is how often the kernel counter table is read while the
	// counting program is attached.
	PollInterval time.Duration

	// Timeout bounds the whole trace. Zero means run until interrupted.
	Timeout time.Duration

	// PinPath, when set, pins the counter table on bpffs so other processes
	// can read it.
	PinPath string
}

// Tracer counts every syscall made on the machine while it runs.
type Tracer struct {
	logger   *zap.SugaredLogger
	probe    *Probe
	reporter Reporter
	cfg      Config
}

// NewTracer loads the probe into the kernel, ready to attach.
func NewTracer(logger *zap.SugaredLogger, reporter Reporter, cfg Config) (*Tracer, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	probe, err := NewProbe(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load probe: %w", err)
	}

	return &Tracer{
		logger:   logger,
		probe:    probe,
		reporter: reporter,
		cfg:      cfg,
	}, nil
}

// Run attaches the in-kernel counting program and polls the counter table
// until the context is cancelled, the timeout passes, or an interrupt
// arrives. The final snapshot always reaches the reporter.
func (t *Tracer) Run(ctx context.Context) error {
	t.logger.Infow("tracing system-wide syscalls", "interval", t.cfg.PollInterval)

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	if err := t.probe.Reset(); err != nil {
		return fmt.Errorf("failed to zero counter table: %w", err)
	}

	tp, err := t.probe.AttachCounter()
	if err != nil {
		return fmt.Errorf("failed to attach counter: %w", err)
	}
	defer tp.Close()

	if t.cfg.PinPath != "" {
		if err := t.probe.Pin(t.cfg.PinPath); err != nil {
			return fmt.Errorf("failed to pin counter table: %w", err)
		}

		t.logger.Infow("counter table pinned", "path", t.cfg.PinPath)
	}

	stopper := make(chan os.Signal, 1)
	signal.Notify(stopper, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopper)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	var prev *Snapshot

	for {
		select {
		case <-ctx.Done():
			t.logger.Infow("context done, exiting...")
			return t.finish()
		case interrupt := <-stopper:
			t.logger.Infow("received interrupt, exiting...", "interrupt", interrupt)
			return t.finish()
		case <-ticker.C:
			prev = t.pollTick(t.probe.Counts, prev)
		}
	}
}

// pollTick reads the table and hands the snapshot to the reporter. A failed
// read skips the tick rather than ending the trace; the next tick retries.
func (t *Tracer) pollTick(read func() (*Snapshot, error), prev *Snapshot) *Snapshot {
	snap, err := read()
	if err != nil {
		t.logger.Errorw("failed to read counter table", "err", err)

		return prev
	}

	delta := snap.Delta(prev)
	t.logger.Infow(
		"syscalls observed",
		"interval", t.cfg.PollInterval,
		"calls", delta.Total(),
		"total", snap.Total(),
	)

	t.reporter.Report(snap)

	return snap
}

// RunStream attaches the event-emitting program instead and counts in user
// space: ring buffer records are decoded and pushed through the entry
// handler into a process-local table.
func (t *Tracer) RunStream(ctx context.Context) error {
	t.logger.Infow("tracing system-wide syscalls via ring buffer")

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	tp, err := t.probe.AttachStreamer()
	if err != nil {
		return fmt.Errorf("failed to attach streamer: %w", err)
	}
	defer tp.Close()

	rd, err := ringbuf.NewReader(t.probe.Events())
	if err != nil {
		return fmt.Errorf("failed to get reader to syscall events ring: %w", err)
	}
	defer rd.Close()

	stopper := make(chan os.Signal, 1)
	signal.Notify(stopper, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopper)

	go func() {
		select {
		case <-ctx.Done():
			rd.Close()
			t.logger.Infow("context done, exiting...")
		case interrupt := <-stopper:
			rd.Close()
			t.logger.Infow("received interrupt, exiting...", "interrupt", interrupt)
		}
	}()

	table := NewTable()
	processor := NewProcessor(t.logger, rd, NewHandler(table), nil)

	if err := processor.Start(ctx); err != nil {
		return fmt.Errorf("failed to process events from kernel: %w", err)
	}

	t.reporter.Report(table.Snapshot())

	return nil
}

// finish reads the table one last time so the reporter holds the counts as
// they were at detach.
func (t *Tracer) finish() error {
	snap, err := t.probe.Counts()
	if err != nil {
		return fmt.Errorf("failed to read final counter table: %w", err)
	}

	t.logger.Infow("trace finished", "total", snap.Total(), "timestamp", snap.Timestamp)

	t.reporter.Report(snap)

	return nil
}

func (t *Tracer) Close() error {
	return t.probe.Close()
}
