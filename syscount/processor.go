package syscount

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cilium/ebpf/ringbuf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// eventSize is the byte length of one ring buffer record: nr and timestamp,
// both u64, little endian. Must match what the streamer program writes.
const eventSize = 16

var ErrShortRecord = errors.New("short ringbuf record")

type ProcessorCfg struct {
	Workers         int
	EventChanBuffer int
}

// RecordReader is the stream of raw ring buffer records, usually a
// *ringbuf.Reader.
type RecordReader interface {
	Read() (ringbuf.Record, error)
}

// Processor drains syscall events from the ring buffer and feeds them
// through the entry handler.
type Processor struct {
	logger  *zap.SugaredLogger
	rb      RecordReader
	handler *Handler
	cfg     *ProcessorCfg
}

func NewProcessor(
	logger *zap.SugaredLogger,
	rb RecordReader,
	handler *Handler,
	cfg *ProcessorCfg,
) *Processor {
	if cfg == nil {
		cfg = &ProcessorCfg{
			Workers:         4,
			EventChanBuffer: 1024,
		}
	}

	return &Processor{
		logger:  logger,
		rb:      rb,
		handler: handler,
		cfg:     cfg,
	}
}

func (p *Processor) Start(ctx context.Context) error {
	// a listener error has to cancel the workers too, or they would wait on
	// the event channel forever
	group, ctx := errgroup.WithContext(ctx)

	eventChan := make(chan SysEnterEvent, p.cfg.EventChanBuffer)

	for i := 0; i < p.cfg.Workers; i++ {
		group.Go(func() error {
			p.consume(ctx, eventChan)
			return nil
		})
	}

	group.Go(func() error {
		if err := p.listen(ctx, eventChan); err != nil {
			return fmt.Errorf("failed to listen to ring buffer: %w", err)
		}

		return nil
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("failed while processing events: %w", err)
	}

	return nil
}

func (p *Processor) listen(ctx context.Context, eventChan chan<- SysEnterEvent) error {
	// listen is the only writer, so the channel closes here on every return
	// path; workers drain what is buffered and stop
	defer close(eventChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		record, err := p.rb.Read()
		if errors.Is(err, ringbuf.ErrClosed) {
			p.logger.Info("ringbuffer closed, exiting...")

			return nil
		} else if err != nil {
			return fmt.Errorf("failed to read from ringbuffer: %w", err)
		}

		event, err := decodeEvent(record.RawSample)
		if err != nil {
			return fmt.Errorf("failed to decode ringbuf record: %w", err)
		}

		select {
		case eventChan <- event:
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *Processor) consume(ctx context.Context, eventChan <-chan SysEnterEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}

			p.handler.HandleSysEnter(event)
		}
	}
}

func decodeEvent(raw []byte) (SysEnterEvent, error) {
	var event SysEnterEvent

	if len(raw) < eventSize {
		return event, fmt.Errorf("%w: got %d bytes, want %d", ErrShortRecord, len(raw), eventSize)
	}

	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &event); err != nil {
		return event, fmt.Errorf("failed to parse event from ringbuf record: %w", err)
	}

	return event, nil
}
