package pool

import (
	"context"
	"errors"
	"testing"
)

func TestHandleDoubleRelease(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 2

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	h, _ := p.Acquire(context.Background())
	if err := p.Release(h); err != nil {
		t.Fatalf("First release failed: %v", err)
	}

	before := p.Stats()
	if err := p.Release(h); !errors.Is(err, ErrDoubleRelease) {
		t.Errorf("Expected ErrDoubleRelease, got %v", err)
	}

	// The rejected call must leave all bookkeeping untouched.
	after := p.Stats()
	if after.NumOpen != before.NumOpen || after.NumIdle != before.NumIdle {
		t.Errorf("Rejected release changed pool state: %+v -> %+v", before, after)
	}
	if after.ReleaseCount != before.ReleaseCount {
		t.Errorf("Rejected release counted: %d -> %d", before.ReleaseCount, after.ReleaseCount)
	}
}

func TestHandleStaleAfterRecirculation(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 1

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	h1, _ := p.Acquire(context.Background())
	p.Release(h1)

	// The same underlying resource goes out under a new generation.
	h2, _ := p.Acquire(context.Background())
	if h2.Resource() != h1.entry.res {
		t.Fatal("Expected the resource to recirculate")
	}

	// The stale handle must not be able to release the new borrower's
	// resource out from under it.
	if err := p.Release(h1); !errors.Is(err, ErrDoubleRelease) {
		t.Errorf("Expected ErrDoubleRelease for stale handle, got %v", err)
	}
	if !h2.Valid() {
		t.Error("Current handle must stay valid after stale release attempt")
	}
	if err := p.Release(h2); err != nil {
		t.Errorf("Current handle release failed: %v", err)
	}
}

func TestHandleForeignPool(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 1

	p1, _ := New[*mockResource](lc, cfg)
	defer p1.Close()
	p2, _ := New[*mockResource](&mockLifecycle{}, cfg)
	defer p2.Close()

	h, _ := p1.Acquire(context.Background())
	if err := p2.Release(h); !errors.Is(err, ErrDoubleRelease) {
		t.Errorf("Expected ErrDoubleRelease for a foreign handle, got %v", err)
	}
	if err := p1.Release(h); err != nil {
		t.Errorf("Release into the owning pool failed: %v", err)
	}
}

func TestHandleAccessAfterRelease(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 1

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	h, _ := p.Acquire(context.Background())
	if !h.Valid() {
		t.Error("Handle should be valid while checked out")
	}
	p.Release(h)

	if h.Valid() {
		t.Error("Handle should be invalid after release")
	}
	if res := h.Resource(); res != nil {
		t.Error("Resource access after release should yield the zero value")
	}
}

func TestHandleNilRelease(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 1

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	if err := p.Release(nil); !errors.Is(err, ErrDoubleRelease) {
		t.Errorf("Expected ErrDoubleRelease for nil handle, got %v", err)
	}
}

func TestHandleStrictModePanics(t *testing.T) {
	lc := &mockLifecycle{}
	cfg := DefaultConfig()
	cfg.MaxSize = 1
	cfg.Strict = true

	p, err := New[*mockResource](lc, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	h, _ := p.Acquire(context.Background())
	p.Release(h)

	defer func() {
		if recover() == nil {
			t.Error("Expected strict mode to panic on double release")
		}
	}()
	p.Release(h)
}
