package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fishy/errbatch"
)

var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("pool: pool is closed")
	// ErrPoolExhausted is returned when no slot becomes available within the
	// requested wait bound.
	ErrPoolExhausted = errors.New("pool: resource pool exhausted")
	// ErrDoubleRelease is returned when a handle is released twice or was
	// never checked out of this pool.
	ErrDoubleRelease = errors.New("pool: double release or unknown handle")
	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("pool: invalid configuration")
)

// Config configures the resource pool.
type Config struct {
	// MaxSize is the upper bound on simultaneously live resources
	// (idle + checked out + being constructed). Required, positive.
	MaxSize int
	// AcquireTimeout is the default wait bound applied when the Acquire
	// context carries no deadline. Zero means block indefinitely.
	AcquireTimeout time.Duration
	// ValidateOnRelease enables health-checking returned resources when the
	// lifecycle implements Validator. DefaultConfig enables it.
	ValidateOnRelease bool
	// IdleTarget is the baseline the maintenance loop shrinks the idle stack
	// toward. Zero disables proactive shrinking; ShrinkIdle remains available.
	IdleTarget int
	// MaxIdleTime is how long an idle resource may sit unused before it is
	// evicted. Zero means idle resources never go stale.
	MaxIdleTime time.Duration
	// MaintenanceInterval is how often the background loop evicts stale idle
	// resources and applies IdleTarget. Zero disables the loop.
	MaintenanceInterval time.Duration
	// Strict makes caller contract violations (double release, use after
	// release) panic instead of being logged and reported as an error.
	Strict bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:           10,
		ValidateOnRelease: true,
	}
}

// entry wraps a live resource with pool bookkeeping.
type entry[T any] struct {
	res       T
	gen       uint64
	createdAt time.Time
	lastUsed  time.Time
}

// grant is what a blocked acquirer receives when it is woken. A nil entry
// with a nil error means the slot reservation was transferred to the waiter,
// which then constructs a resource itself.
type grant[T any] struct {
	e   *entry[T]
	err error
}

// waiter is one blocked Acquire call. The channel is buffered so the releaser
// never blocks handing a grant to a waiter that is concurrently cancelling.
type waiter[T any] struct {
	ready chan grant[T]
}

// Pool is a bounded resource pool.
//
// All bookkeeping (idle stack, checked-out set, waiter queue, live count)
// lives behind a single mutex held only for short, non-blocking sections;
// Create, Reset, Validate and Destroy always run outside the lock.
type Pool[T any] struct {
	lc  Lifecycle[T]
	vd  Validator[T] // nil when absent or disabled
	cfg Config

	mu       sync.Mutex
	idle     []*entry[T] // LIFO stack; most recently released on top
	borrowed map[*entry[T]]uint64
	waiters  []*waiter[T] // FIFO arrival order
	numOpen  int          // idle + borrowed + in-flight creations
	lastGen  uint64
	closed   bool

	stopMaint chan struct{}
	maintDone chan struct{}

	// Counters, updated atomically so Stats never needs the hot-path lock
	// for them.
	totalCreated    uint64
	acquireCount    uint64
	acquireSuccess  uint64
	acquireFailed   uint64
	timeoutCount    uint64
	releaseCount    uint64
	discardCount    uint64
	validationFails uint64
	waitCount       uint64
	waitNanos       uint64
}

// New creates a pool managing resources built by the given lifecycle.
// If the lifecycle also implements Validator and cfg.ValidateOnRelease is
// set, returned resources are health-checked before reuse.
func New[T any](lc Lifecycle[T], cfg Config) (*Pool[T], error) {
	if lc == nil {
		return nil, ErrInvalidConfig
	}
	if cfg.MaxSize <= 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.IdleTarget < 0 || cfg.IdleTarget > cfg.MaxSize {
		return nil, ErrInvalidConfig
	}

	p := &Pool[T]{
		lc:        lc,
		cfg:       cfg,
		idle:      make([]*entry[T], 0, cfg.MaxSize),
		borrowed:  make(map[*entry[T]]uint64, cfg.MaxSize),
		stopMaint: make(chan struct{}),
		maintDone: make(chan struct{}),
	}
	if cfg.ValidateOnRelease {
		if v, ok := lc.(Validator[T]); ok {
			p.vd = v
		}
	}

	if cfg.MaintenanceInterval > 0 {
		go p.maintenanceLoop()
	} else {
		close(p.maintDone)
	}

	log.WithField("maxSize", cfg.MaxSize).
		WithField("acquireTimeout", cfg.AcquireTimeout).
		Debug("pool created")
	return p, nil
}

// Acquire checks a resource out of the pool, preferring the most recently
// released idle resource and constructing a new one while under capacity.
// When the pool is saturated it blocks until a slot frees, the context is
// done, or the configured default timeout elapses. Blocked callers are
// served in arrival order.
//
// A deadline expiry is reported as ErrPoolExhausted; caller cancellation is
// reported as the context's own error. Construction errors from the
// lifecycle are returned unchanged.
func (p *Pool[T]) Acquire(ctx context.Context) (*Handle[T], error) {
	atomic.AddUint64(&p.acquireCount, 1)
	began := time.Now()

	// Apply the configured default wait bound only when the caller did not
	// bring a deadline of their own.
	acquireCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		atomic.AddUint64(&p.acquireFailed, 1)
		return nil, ErrPoolClosed
	}
	if err := acquireCtx.Err(); err != nil {
		p.mu.Unlock()
		return nil, p.failWait(acquireCtx)
	}

	if e := p.popIdleLocked(); e != nil {
		h := p.checkoutLocked(e)
		p.mu.Unlock()
		atomic.AddUint64(&p.acquireSuccess, 1)
		AcquireLatency.Observe(time.Since(began).Seconds())
		log.Debug("acquired idle resource from pool")
		return h, nil
	}

	if p.numOpen < p.cfg.MaxSize {
		p.numOpen++ // reserve the slot before constructing outside the lock
		p.mu.Unlock()
		return p.createAndCheckout(acquireCtx, began)
	}

	// Saturated: park in the FIFO waiter queue.
	w := &waiter[T]{ready: make(chan grant[T], 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	atomic.AddUint64(&p.waitCount, 1)
	start := time.Now()
	log.Debug("waiting for available resource")

	select {
	case g := <-w.ready:
		atomic.AddUint64(&p.waitNanos, uint64(time.Since(start)))
		if g.err != nil {
			atomic.AddUint64(&p.acquireFailed, 1)
			return nil, g.err
		}
		if g.e == nil {
			// A slot reservation was transferred to us.
			return p.createAndCheckout(acquireCtx, began)
		}
		atomic.AddUint64(&p.acquireSuccess, 1)
		AcquireLatency.Observe(time.Since(began).Seconds())
		return &Handle[T]{pool: p, entry: g.e, gen: g.e.gen}, nil

	case <-acquireCtx.Done():
		p.cancelWait(w)
		atomic.AddUint64(&p.waitNanos, uint64(time.Since(start)))
		return nil, p.failWait(acquireCtx)
	}
}

// TryAcquire is the non-blocking variant of Acquire: when the pool is
// saturated it returns ErrPoolExhausted immediately instead of waiting.
func (p *Pool[T]) TryAcquire() (*Handle[T], error) {
	atomic.AddUint64(&p.acquireCount, 1)
	began := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		atomic.AddUint64(&p.acquireFailed, 1)
		return nil, ErrPoolClosed
	}
	if e := p.popIdleLocked(); e != nil {
		h := p.checkoutLocked(e)
		p.mu.Unlock()
		atomic.AddUint64(&p.acquireSuccess, 1)
		AcquireLatency.Observe(time.Since(began).Seconds())
		return h, nil
	}
	if p.numOpen < p.cfg.MaxSize {
		p.numOpen++
		p.mu.Unlock()
		return p.createAndCheckout(context.Background(), began)
	}
	p.mu.Unlock()

	atomic.AddUint64(&p.acquireFailed, 1)
	atomic.AddUint64(&p.timeoutCount, 1)
	return nil, ErrPoolExhausted
}

// Release returns a checked-out resource to the pool. The resource is reset
// first, then validated when the lifecycle supports it; a resource failing
// validation is destroyed and its slot freed for a future construction.
// A handle that is not currently checked out yields ErrDoubleRelease (or a
// panic in strict mode) and leaves the pool's bookkeeping untouched.
func (p *Pool[T]) Release(h *Handle[T]) error {
	e, err := p.takeBack(h, "release")
	if err != nil {
		return err
	}
	atomic.AddUint64(&p.releaseCount, 1)

	// User-supplied work happens strictly outside the lock.
	p.lc.Reset(e.res)
	if p.vd != nil && !p.vd.Validate(e.res) {
		atomic.AddUint64(&p.validationFails, 1)
		log.Debug("released resource failed validation, discarding")
		p.destroyEntry(e)
		p.mu.Lock()
		p.freeSlotLocked()
		p.mu.Unlock()
		return nil
	}

	p.recycle(e)
	return nil
}

// Discard removes a checked-out resource from the pool and destroys it.
// Use it when the caller knows the resource is broken; the freed slot lets a
// later Acquire construct a replacement.
func (p *Pool[T]) Discard(h *Handle[T]) error {
	e, err := p.takeBack(h, "discard")
	if err != nil {
		return err
	}
	atomic.AddUint64(&p.discardCount, 1)
	log.Debug("discarding resource")

	p.destroyEntry(e)
	p.mu.Lock()
	p.freeSlotLocked()
	p.mu.Unlock()
	return nil
}

// takeBack consumes a handle, removing its entry from the checked-out set.
// The generation tag catches handles that went stale while their entry was
// recirculated to another borrower.
func (p *Pool[T]) takeBack(h *Handle[T], op string) (*entry[T], error) {
	if h == nil || h.entry == nil {
		return nil, p.violation(op + " of nil handle")
	}

	p.mu.Lock()
	gen, ok := p.borrowed[h.entry]
	if !ok || gen != h.gen || h.released.Load() {
		p.mu.Unlock()
		return nil, p.violation(op + " of a handle that is not checked out")
	}
	h.released.Store(true)
	delete(p.borrowed, h.entry)
	p.mu.Unlock()
	return h.entry, nil
}

// violation reports a caller contract breach per the configured policy.
func (p *Pool[T]) violation(msg string) error {
	if p.cfg.Strict {
		panic("pool: " + msg)
	}
	log.WithField("violation", msg).Error("pool contract violation")
	return ErrDoubleRelease
}

// recycle puts an already-reset entry back into circulation: handed straight
// to the front waiter if any, pushed onto the idle stack otherwise.
func (p *Pool[T]) recycle(e *entry[T]) {
	e.lastUsed = time.Now()

	p.mu.Lock()
	if p.closed {
		p.numOpen--
		p.mu.Unlock()
		p.destroyEntry(e)
		return
	}
	p.handOffOrParkLocked(e)
	p.mu.Unlock()
}

// handOffOrParkLocked gives the entry to the longest-waiting acquirer or, if
// nobody is waiting, parks it on the idle stack. Hand-off registers the entry
// as checked out under the same lock so the resource is never visible in two
// places.
func (p *Pool[T]) handOffOrParkLocked(e *entry[T]) {
	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.lastGen++
		e.gen = p.lastGen
		p.borrowed[e] = e.gen
		w.ready <- grant[T]{e: e}
		log.Debug("resource handed off to waiter")
		return
	}
	p.idle = append(p.idle, e)
}

// freeSlotLocked releases one capacity slot. If an acquirer is waiting, the
// reservation transfers to it directly so a newcomer cannot steal the slot.
func (p *Pool[T]) freeSlotLocked() {
	p.numOpen--
	if len(p.waiters) > 0 && !p.closed {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.numOpen++
		w.ready <- grant[T]{}
	}
}

// popIdleLocked pops the most recently released idle entry, evicting any
// stale ones it passes over. Caller must hold the lock.
func (p *Pool[T]) popIdleLocked() *entry[T] {
	now := time.Now()
	for len(p.idle) > 0 {
		e := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]

		if p.cfg.MaxIdleTime > 0 && now.Sub(e.lastUsed) > p.cfg.MaxIdleTime {
			log.Debug("evicting stale idle resource")
			p.numOpen--
			go p.destroyEntry(e)
			continue
		}
		return e
	}
	return nil
}

// checkoutLocked registers the entry as borrowed under a fresh generation.
// Caller must hold the lock.
func (p *Pool[T]) checkoutLocked(e *entry[T]) *Handle[T] {
	p.lastGen++
	e.gen = p.lastGen
	e.lastUsed = time.Now()
	p.borrowed[e] = e.gen
	return &Handle[T]{pool: p, entry: e, gen: e.gen}
}

// createAndCheckout constructs a resource for an already-reserved slot.
// On failure the reservation is returned to the pool and the error reaches
// the caller unchanged. began is when the acquire attempt started, for the
// latency histogram.
func (p *Pool[T]) createAndCheckout(ctx context.Context, began time.Time) (*Handle[T], error) {
	res, err := p.lc.Create(ctx)
	if err != nil {
		p.mu.Lock()
		p.freeSlotLocked()
		p.mu.Unlock()
		atomic.AddUint64(&p.acquireFailed, 1)
		log.WithError(err).Debug("resource construction failed")
		return nil, err
	}

	now := time.Now()
	e := &entry[T]{res: res, createdAt: now, lastUsed: now}
	atomic.AddUint64(&p.totalCreated, 1)

	p.mu.Lock()
	h := p.checkoutLocked(e)
	p.mu.Unlock()
	atomic.AddUint64(&p.acquireSuccess, 1)
	AcquireLatency.Observe(time.Since(began).Seconds())
	log.Debug("constructed new resource")
	return h, nil
}

// cancelWait deregisters a waiter that gave up. If a grant raced with the
// cancellation, whatever it carried is put back so no slot or resource leaks.
func (p *Pool[T]) cancelWait(w *waiter[T]) {
	p.mu.Lock()
	for i, x := range p.waiters {
		if x == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return
		}
	}
	p.mu.Unlock()

	// Not in the queue, so a grant was already sent; the channel is buffered
	// so this receive cannot block.
	g := <-w.ready
	switch {
	case g.err != nil:
		// Pool closed while we were cancelling; nothing held.
	case g.e != nil:
		// A resource was handed to us; put it back into circulation.
		p.mu.Lock()
		delete(p.borrowed, g.e)
		if p.closed {
			p.numOpen--
			p.mu.Unlock()
			p.destroyEntry(g.e)
			return
		}
		p.handOffOrParkLocked(g.e)
		p.mu.Unlock()
	default:
		// A slot reservation was transferred to us; give it back.
		p.mu.Lock()
		p.freeSlotLocked()
		p.mu.Unlock()
	}
}

// failWait maps a done context to the pool's error taxonomy: deadline expiry
// is backpressure (ErrPoolExhausted), cancellation stays the caller's own.
func (p *Pool[T]) failWait(ctx context.Context) error {
	atomic.AddUint64(&p.acquireFailed, 1)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		atomic.AddUint64(&p.timeoutCount, 1)
		return ErrPoolExhausted
	}
	return ctx.Err()
}

// destroyEntry tears a resource down, logging rather than propagating the
// error since eviction paths have no caller to report to.
func (p *Pool[T]) destroyEntry(e *entry[T]) {
	if err := p.lc.Destroy(e.res); err != nil {
		log.WithError(err).Warn("destroying resource failed")
	}
}

// ShrinkIdle evicts idle resources, oldest first, until at most target
// remain. It returns the number evicted and any destruction errors batched
// together. Checked-out resources are never touched.
func (p *Pool[T]) ShrinkIdle(target int) (int, error) {
	if target < 0 {
		target = 0
	}

	p.mu.Lock()
	var evicted []*entry[T]
	for len(p.idle) > target {
		// The bottom of the stack is the least recently used.
		e := p.idle[0]
		p.idle = p.idle[1:]
		p.numOpen--
		evicted = append(evicted, e)
	}
	p.mu.Unlock()

	var eb errbatch.ErrBatch
	for _, e := range evicted {
		eb.Add(p.lc.Destroy(e.res))
	}
	if len(evicted) > 0 {
		log.WithField("evicted", len(evicted)).Debug("idle resources shrunk")
	}
	return len(evicted), eb.Compile()
}

// Close shuts the pool down: idle resources are destroyed, blocked acquirers
// fail with ErrPoolClosed, and resources still checked out are destroyed as
// they come back. Destruction errors are batched into the returned error.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.closed = true
	close(p.stopMaint)

	idle := p.idle
	p.idle = nil
	p.numOpen -= len(idle)
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		w.ready <- grant[T]{err: ErrPoolClosed}
	}

	var eb errbatch.ErrBatch
	for _, e := range idle {
		eb.Add(p.lc.Destroy(e.res))
	}

	<-p.maintDone
	log.Debug("pool closed")
	return eb.Compile()
}

// maintenanceLoop periodically evicts stale idle resources and applies the
// configured idle target.
func (p *Pool[T]) maintenanceLoop() {
	defer close(p.maintDone)

	ticker := time.NewTicker(p.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopMaint:
			return
		case <-ticker.C:
			p.runMaintenance()
		}
	}
}

// runMaintenance performs one maintenance pass.
func (p *Pool[T]) runMaintenance() {
	now := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	var evicted []*entry[T]
	kept := p.idle[:0]
	for _, e := range p.idle {
		if p.cfg.MaxIdleTime > 0 && now.Sub(e.lastUsed) > p.cfg.MaxIdleTime {
			p.numOpen--
			evicted = append(evicted, e)
			continue
		}
		kept = append(kept, e)
	}
	p.idle = kept

	if t := p.cfg.IdleTarget; t > 0 {
		for len(p.idle) > t {
			e := p.idle[0]
			p.idle = p.idle[1:]
			p.numOpen--
			evicted = append(evicted, e)
		}
	}
	p.mu.Unlock()

	for _, e := range evicted {
		p.destroyEntry(e)
	}
	if len(evicted) > 0 {
		log.WithField("evicted", len(evicted)).Debug("maintenance evicted idle resources")
	}

	UpdateMetrics(p.Stats())
}

// Stats describes the pool's current state and lifetime counters.
type Stats struct {
	// MaxSize is the configured capacity.
	MaxSize int
	// NumOpen is the current number of live resources, including in-flight
	// constructions.
	NumOpen int
	// NumIdle is the current number of idle resources.
	NumIdle int
	// NumInUse is the number of resources currently checked out.
	NumInUse int
	// NumWaiting is the number of callers blocked in Acquire.
	NumWaiting int
	// TotalCreated is the lifetime count of successful constructions.
	TotalCreated uint64
	// AcquireCount is the total number of acquire attempts.
	AcquireCount uint64
	// AcquireSuccess is the number of successful acquires.
	AcquireSuccess uint64
	// AcquireFailed is the number of failed acquires.
	AcquireFailed uint64
	// TimeoutCount is the number of acquires that gave up waiting.
	TimeoutCount uint64
	// ReleaseCount is the number of accepted releases.
	ReleaseCount uint64
	// DiscardCount is the number of caller-discarded resources.
	DiscardCount uint64
	// ValidationFails is the number of resources discarded on release.
	ValidationFails uint64
	// WaitCount is the number of acquires that had to block.
	WaitCount uint64
	// WaitTime is the cumulative time acquirers spent blocked.
	WaitTime time.Duration
}

// Stats returns a snapshot of the pool's state.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	numOpen := p.numOpen
	numIdle := len(p.idle)
	numWaiting := len(p.waiters)
	p.mu.Unlock()

	return Stats{
		MaxSize:         p.cfg.MaxSize,
		NumOpen:         numOpen,
		NumIdle:         numIdle,
		NumInUse:        numOpen - numIdle,
		NumWaiting:      numWaiting,
		TotalCreated:    atomic.LoadUint64(&p.totalCreated),
		AcquireCount:    atomic.LoadUint64(&p.acquireCount),
		AcquireSuccess:  atomic.LoadUint64(&p.acquireSuccess),
		AcquireFailed:   atomic.LoadUint64(&p.acquireFailed),
		TimeoutCount:    atomic.LoadUint64(&p.timeoutCount),
		ReleaseCount:    atomic.LoadUint64(&p.releaseCount),
		DiscardCount:    atomic.LoadUint64(&p.discardCount),
		ValidationFails: atomic.LoadUint64(&p.validationFails),
		WaitCount:       atomic.LoadUint64(&p.waitCount),
		WaitTime:        time.Duration(atomic.LoadUint64(&p.waitNanos)),
	}
}
