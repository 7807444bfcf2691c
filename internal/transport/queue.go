// Package transport provides the bounded FIFO that hands instructions from
// one pipeline stage to the next.
package transport

import (
	"context"

	"github.com/losdos/motionglove/wire"
)

// DefaultCapacity matches the single-slot queue of the firmware.
const DefaultCapacity = 1

// Queue is a single-producer single-consumer FIFO of instructions. Send
// blocks while the queue is full and Receive blocks while it is empty.
// Nothing is ever dropped.
type Queue struct {
	ch chan wire.Instruction
}

// NewQueue returns a queue holding up to capacity instructions.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan wire.Instruction, capacity)}
}

// Send enqueues in, waiting for room or ctx cancellation.
func (q *Queue) Send(ctx context.Context, in wire.Instruction) error {
	select {
	case q.ch <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive dequeues the oldest instruction, waiting for one or ctx cancellation.
func (q *Queue) Receive(ctx context.Context) (wire.Instruction, error) {
	select {
	case in := <-q.ch:
		return in, nil
	case <-ctx.Done():
		return wire.Instruction{}, ctx.Err()
	}
}

// Len returns the number of queued instructions.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
