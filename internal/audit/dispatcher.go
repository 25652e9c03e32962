package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Overflow selects what Emit does when the queue is full.
type Overflow int

const (
	// OverflowDrop discards the event and counts it.
	OverflowDrop Overflow = iota
	// OverflowBlock waits for room, for the caller's ctx, or for Close.
	OverflowBlock
)

// Config sizes the dispatcher queue.
type Config struct {
	Enabled  bool
	Buffer   int
	Overflow Overflow
}

// Dispatcher hands events to a single drain goroutine that feeds the sink
// in emit order. A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	sink     Sink
	overflow Overflow
	now      func() time.Time

	// mu guards closed and the send side of queue: Emit holds it shared,
	// Close exclusively, so nothing is sent after the queue is closed.
	mu      sync.RWMutex
	closed  bool
	queue   chan Event
	drained chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewDispatcher starts the drain goroutine. It returns nil when cfg is
// disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:     sink,
		overflow: cfg.Overflow,
		now:      time.Now,
		queue:    make(chan Event, max(cfg.Buffer, 1)),
		drained:  make(chan struct{}),
	}
	go d.drain()
	return d
}

func (d *Dispatcher) drain() {
	defer close(d.drained)
	// Sinks run detached from any request.
	ctx := context.Background()
	for ev := range d.queue {
		d.sink.Emit(ctx, ev)
		d.delivered.Add(1)
	}
}

// Emit queues ev, stamping it with the current time if unset.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.overflow == OverflowBlock {
		select {
		case d.queue <- ev:
		case <-ctx.Done():
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
	}
}

// Close stops accepting events and waits until every queued event has
// reached the sink. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.drained
}

// Dropped counts events discarded on overflow or on a cancelled blocking emit.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered counts events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
