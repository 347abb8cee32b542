package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit fail fast instead of waiting for buffer space.
	DropIfFull bool
}

// Stats is a point-in-time view of dispatcher counters.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Panicked  uint64
	Pending   int
}

// Dispatcher hands events to a Sink on a single background goroutine so
// that request paths never wait on audit I/O. A nil *Dispatcher is valid and
// discards everything.
type Dispatcher struct {
	sink  Sink
	block bool
	queue chan Event

	// mu orders Emit against Close: senders hold it shared, Close exclusively.
	mu      sync.RWMutex
	closing bool
	stop    chan struct{}
	exited  chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panicked  atomic.Uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:   sink,
		block:  !cfg.DropIfFull,
		queue:  make(chan Event, cfg.BufferSize),
		stop:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.exited)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			// No sender can be active once stop is closed.
			for n := len(d.queue); n > 0; n-- {
				d.deliver(<-d.queue)
			}
			return
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.panicked.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

// Emit queues ev and reports whether it was accepted. In drop mode a full
// buffer counts a drop; otherwise Emit waits for space or ctx.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closing {
		return false
	}

	if !d.block {
		select {
		case d.queue <- ev:
			return true
		default:
			d.dropped.Add(1)
			return false
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
		return true
	case <-ctx.Done():
		d.dropped.Add(1)
		return false
	}
}

// Close rejects further events, delivers what is buffered and waits for the
// worker to exit. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closing {
		d.closing = true
		close(d.stop)
	}
	d.mu.Unlock()
	<-d.exited
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Panicked:  d.panicked.Load(),
		Pending:   len(d.queue),
	}
}

func (d *Dispatcher) Dropped() uint64 { return d.Stats().Dropped }

func (d *Dispatcher) Delivered() uint64 { return d.Stats().Delivered }
