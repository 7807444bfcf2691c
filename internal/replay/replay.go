// Package replay turns decoded instructions into HID report writes.
package replay

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/losdos/motionglove/device/keyboard"
	"github.com/losdos/motionglove/device/media"
	"github.com/losdos/motionglove/device/mouse"
	"github.com/losdos/motionglove/internal/transport"
	"github.com/losdos/motionglove/wire"
)

// Sink receives HID reports. Implementations must not block for long; the
// engine is the only writer.
type Sink interface {
	WriteMouse(mouse.Report) error
	WriteKeyboard(keyboard.Report) error
	WriteMedia(media.Report) error
}

// Observer is told about every replayed instruction.
type Observer func(wire.Instruction)

// Stats counts replay activity since start.
type Stats struct {
	Instructions uint64
	Failures     uint64
}

// Engine drains a queue into a Sink.
type Engine struct {
	queue     *transport.Queue
	sink      Sink
	logger    *slog.Logger
	observers []Observer

	instructions atomic.Uint64
	failures     atomic.Uint64
}

// New returns an engine replaying q into sink.
func New(q *transport.Queue, sink Sink, logger *slog.Logger, observers ...Observer) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{queue: q, sink: sink, logger: logger, observers: observers}
}

// Run replays until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		in, err := e.queue.Receive(ctx)
		if err != nil {
			return nil
		}
		e.Replay(in)
	}
}

// Replay performs the five writes for one instruction: mouse, keyboard,
// keyboard release, media, media release. A failed write is logged and the
// rest still happen.
func (e *Engine) Replay(in wire.Instruction) {
	e.instructions.Add(1)
	e.check("mouse", e.sink.WriteMouse(in.Mouse))
	e.check("keyboard", e.sink.WriteKeyboard(in.Keyboard))
	e.check("keyboard release", e.sink.WriteKeyboard(keyboard.Release))
	e.check("media", e.sink.WriteMedia(in.Media))
	e.check("media release", e.sink.WriteMedia(media.Release))
	for _, o := range e.observers {
		o(in)
	}
}

func (e *Engine) check(report string, err error) {
	if err == nil {
		return
	}
	e.failures.Add(1)
	e.logger.Warn("HID write failed", "report", report, "error", err)
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return Stats{Instructions: e.instructions.Load(), Failures: e.failures.Load()}
}
