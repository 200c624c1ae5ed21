package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestAcquireBlocksUntilRelease(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 1

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	h, _ := p.Acquire(context.Background())
	res := h.Resource()

	got := make(chan *Handle[*mockResource], 1)
	go func() {
		h2, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("Blocked acquire failed: %v", err)
		}
		got <- h2
	}()
	waitFor(t, "second acquire to block", func() bool {
		return p.Stats().NumWaiting == 1
	})

	select {
	case <-got:
		t.Fatal("Second acquire should block while the pool is saturated")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(h)

	select {
	case h2 := <-got:
		// The waiter receives the exact released resource, post-reset.
		if h2.Resource() != res {
			t.Error("Waiter should receive the released resource")
		}
		p.Release(h2)
	case <-time.After(2 * time.Second):
		t.Fatal("Blocked acquire was not woken by release")
	}

	if got := p.Stats().TotalCreated; got != 1 {
		t.Errorf("Expected 1 construction, got %d", got)
	}
}

func TestThreeBorrowersTwoSlots(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 2

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	h1, _ := p.Acquire(context.Background())
	h2, _ := p.Acquire(context.Background())
	res1 := h1.Resource()

	got := make(chan *Handle[*mockResource], 1)
	go func() {
		h3, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("Third acquire failed: %v", err)
		}
		got <- h3
	}()
	waitFor(t, "third acquire to block", func() bool {
		return p.Stats().NumWaiting == 1
	})

	p.Release(h1)

	select {
	case h3 := <-got:
		if h3.Resource() != res1 {
			t.Error("Third borrower should receive the first released resource")
		}
		p.Release(h3)
	case <-time.After(2 * time.Second):
		t.Fatal("Third acquire was not satisfied by the release")
	}

	if got := p.Stats().TotalCreated; got != 2 {
		t.Errorf("Expected exactly 2 constructions, got %d", got)
	}
	p.Release(h2)
}

func TestWaitersServedInArrivalOrder(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 1

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	h, _ := p.Acquire(context.Background())

	const numWaiters = 5
	order := make(chan int, numWaiters)
	var wg sync.WaitGroup

	// Park waiters one at a time so arrival order is deterministic.
	for i := 0; i < numWaiters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			hw, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("Waiter %d failed: %v", i, err)
				return
			}
			order <- i
			p.Release(hw)
		}()
		waitFor(t, "waiter to park", func() bool {
			return p.Stats().NumWaiting == i+1
		})
	}

	p.Release(h)
	wg.Wait()
	close(order)

	want := 0
	for got := range order {
		if got != want {
			t.Fatalf("Waiters served out of order: got %d, want %d", got, want)
		}
		want++
	}
	if want != numWaiters {
		t.Errorf("Expected %d completions, got %d", numWaiters, want)
	}
}

func TestCancelledWaiterLeavesNoReservation(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 1

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	h, _ := p.Acquire(context.Background())

	// First waiter will give up; the second must still be served.
	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		cancelled <- err
	}()
	waitFor(t, "first waiter to park", func() bool {
		return p.Stats().NumWaiting == 1
	})

	got := make(chan *Handle[*mockResource], 1)
	go func() {
		h2, err := p.Acquire(context.Background())
		if err != nil {
			t.Errorf("Second waiter failed: %v", err)
		}
		got <- h2
	}()
	waitFor(t, "second waiter to park", func() bool {
		return p.Stats().NumWaiting == 2
	})

	cancel()
	select {
	case err := <-cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancelled waiter did not return")
	}
	waitFor(t, "cancelled waiter to deregister", func() bool {
		return p.Stats().NumWaiting == 1
	})

	p.Release(h)
	select {
	case h2 := <-got:
		p.Release(h2)
	case <-time.After(2 * time.Second):
		t.Fatal("Surviving waiter was not served after the cancellation")
	}
}

func TestDeadlineWaiterReportsExhausted(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 1

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	h, _ := p.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("Expected ErrPoolExhausted on deadline, got %v", err)
	}
	waitFor(t, "timed-out waiter to deregister", func() bool {
		return p.Stats().NumWaiting == 0
	})

	p.Release(h)
}

func TestReleaseCancellationRace(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 1

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	// A release racing a waiter's cancellation must neither leak the slot
	// nor lose the resource, whichever side wins.
	for i := 0; i < 500; i++ {
		h, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire failed on iteration %d: %v", i, err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			h2, err := p.Acquire(ctx)
			if err == nil {
				p.Release(h2)
			} else if !errors.Is(err, context.Canceled) {
				t.Errorf("Unexpected waiter error on iteration %d: %v", i, err)
			}
		}()

		go cancel()
		p.Release(h)
		<-done

		if s := p.Stats(); s.NumOpen > s.MaxSize {
			t.Fatalf("Capacity invariant broken on iteration %d: %d open > %d max",
				i, s.NumOpen, s.MaxSize)
		}

		// The slot must be immediately reusable either way.
		h3, err := p.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Slot unusable after iteration %d: %v", i, err)
		}
		p.Release(h3)
	}
}

func TestConcurrentAcquireRelease(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 5

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	const (
		numWorkers   = 20
		opsPerWorker = 25
	)

	// Sample the capacity invariant while the workers hammer the pool.
	stop := make(chan struct{})
	violations := make(chan Stats, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				if s := p.Stats(); s.NumOpen > s.MaxSize {
					select {
					case violations <- s:
					default:
					}
					return
				}
				time.Sleep(time.Millisecond)
			}
		}
	}()

	var g errgroup.Group
	for i := 0; i < numWorkers; i++ {
		g.Go(func() error {
			for j := 0; j < opsPerWorker; j++ {
				h, err := p.Acquire(context.Background())
				if err != nil {
					return err
				}
				h.Resource().markDirty()
				time.Sleep(time.Millisecond)
				if err := p.Release(h); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Worker failed: %v", err)
	}
	close(stop)

	select {
	case s := <-violations:
		t.Fatalf("Capacity invariant broken under load: %d open > %d max", s.NumOpen, s.MaxSize)
	default:
	}

	stats := p.Stats()
	if want := uint64(numWorkers * opsPerWorker); stats.AcquireSuccess != want {
		t.Errorf("Expected %d successful acquires, got %d", want, stats.AcquireSuccess)
	}
	if stats.AcquireFailed != 0 {
		t.Errorf("Expected 0 failed acquires, got %d", stats.AcquireFailed)
	}
	if stats.NumOpen > stats.MaxSize {
		t.Errorf("Capacity invariant broken: %d open > %d max", stats.NumOpen, stats.MaxSize)
	}
	if stats.TotalCreated > uint64(cfg.MaxSize) {
		t.Errorf("Constructed more than MaxSize resources: %d", stats.TotalCreated)
	}
}
