package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrQueueFull = errors.New("notify: queue full")
	ErrClosed    = errors.New("notify: dispatcher closed")
)

// Func delivers one message.
type Func[T any] func(ctx context.Context, msg T) error

// Config sizes the queue and the worker pool.
type Config struct {
	BufferSize int
	Workers    int
	// Timeout bounds each delivery attempt.
	Timeout time.Duration
}

// Stats is a point-in-time view of dispatcher counters.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

// Dispatcher runs deliveries on background workers.
type Dispatcher[T any] struct {
	cfg     Config
	deliver Func[T]
	logger  *slog.Logger

	ch        chan T
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// New starts cfg.Workers goroutines that call deliver for each queued message.
func New[T any](cfg Config, deliver Func[T], logger *slog.Logger) *Dispatcher[T] {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Dispatcher[T]{
		cfg:     cfg,
		deliver: deliver,
		logger:  logger,
		ch:      make(chan T, cfg.BufferSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher[T]) worker() {
	defer d.wg.Done()
	for msg := range d.ch {
		if err := d.run(msg); err != nil {
			d.failed.Add(1)
			d.logger.Warn("notification delivery failed", "error", err)
			continue
		}
		d.sent.Add(1)
	}
}

func (d *Dispatcher[T]) run(msg T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notify: deliver panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()
	return d.deliver(ctx, msg)
}

// Enqueue hands msg to the pool without waiting. It returns ErrQueueFull
// when the buffer is saturated and ErrClosed after Close.
func (d *Dispatcher[T]) Enqueue(ctx context.Context, msg T) error {
	if d == nil {
		return ErrClosed
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.ch <- msg:
		return nil
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

// Close stops intake and waits until queued messages have been attempted.
func (d *Dispatcher[T]) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher[T]) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}
