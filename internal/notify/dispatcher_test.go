package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDeliversQueuedMessages(t *testing.T) {
	var mu sync.Mutex
	var got []string
	d := New[string](Config{BufferSize: 8, Workers: 2}, func(_ context.Context, msg string) error {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
		return nil
	}, nil)

	for _, m := range []string{"a", "b", "c"} {
		if err := d.Enqueue(context.Background(), m); err != nil {
			t.Fatalf("enqueue %s: %v", m, err)
		}
	}
	d.Close()

	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(got))
	}
	if s := d.Stats(); s.Sent != 3 || s.Failed != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestFailuresAreCountedNotReturned(t *testing.T) {
	d := New[int](Config{BufferSize: 4}, func(context.Context, int) error {
		return errors.New("smtp down")
	}, nil)
	if err := d.Enqueue(context.Background(), 1); err != nil {
		t.Fatalf("enqueue must succeed even when delivery will fail: %v", err)
	}
	d.Close()
	if s := d.Stats(); s.Failed != 1 || s.Sent != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestPanicInDeliverIsContained(t *testing.T) {
	d := New[int](Config{BufferSize: 4}, func(context.Context, int) error {
		panic("boom")
	}, nil)
	_ = d.Enqueue(context.Background(), 1)
	_ = d.Enqueue(context.Background(), 2)
	d.Close()
	if s := d.Stats(); s.Failed != 2 {
		t.Fatalf("expected 2 failures, got %+v", s)
	}
}

func TestEnqueueNeverBlocksWhenFull(t *testing.T) {
	gate := make(chan struct{})
	d := New[int](Config{BufferSize: 1, Workers: 1}, func(context.Context, int) error {
		<-gate
		return nil
	}, nil)
	defer func() {
		close(gate)
		d.Close()
	}()

	_ = d.Enqueue(context.Background(), 1)
	_ = d.Enqueue(context.Background(), 2)

	start := time.Now()
	err := d.Enqueue(context.Background(), 3)
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("enqueue blocked on a full queue")
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	d := New[int](Config{}, func(context.Context, int) error { return nil }, nil)
	d.Close()
	if err := d.Enqueue(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	var nilD *Dispatcher[int]
	if err := nilD.Enqueue(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from nil dispatcher, got %v", err)
	}
}

func TestDeliveryTimeoutIsApplied(t *testing.T) {
	deadlineSeen := make(chan bool, 1)
	d := New[int](Config{Timeout: 50 * time.Millisecond}, func(ctx context.Context, _ int) error {
		_, ok := ctx.Deadline()
		deadlineSeen <- ok
		return nil
	}, nil)
	_ = d.Enqueue(context.Background(), 1)
	d.Close()
	if !<-deadlineSeen {
		t.Fatal("expected delivery context to carry a deadline")
	}
}
