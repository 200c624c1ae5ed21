// Package pool provides a generic, bounded resource pool for amortizing the
// cost of expensive or scarce resources across many concurrent borrowers.
//
// The pool supports:
//   - Configurable maximum number of live resources
//   - Lazy construction through a caller-supplied Lifecycle
//   - Reset-on-release so a borrower never sees another session's state
//   - Optional validation of returned resources with discard-and-replace
//   - FIFO-fair blocking acquisition with context cancellation
//   - Idle shrinking, both on demand and from a background maintenance loop
//   - Metrics for pool utilization and wait behavior
//
// # Basic Usage
//
//	type connLifecycle struct{}
//
//	func (connLifecycle) Create(ctx context.Context) (*Conn, error) { return dial(ctx) }
//	func (connLifecycle) Reset(c *Conn)                             { c.ClearSession() }
//	func (connLifecycle) Destroy(c *Conn) error                     { return c.Close() }
//
//	cfg := pool.DefaultConfig()
//	cfg.MaxSize = 10
//
//	p, err := pool.New[*Conn](connLifecycle{}, cfg)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	h, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Release(h)
//
//	// Use h.Resource() exclusively until Release...
//
// # Validation
//
// A lifecycle that also implements Validator is consulted on every release.
// Resources that fail validation are destroyed instead of going back to the
// idle stack, and the freed slot lets a later Acquire construct a fresh one:
//
//	func (connLifecycle) Validate(c *Conn) bool { return c.Ping() == nil }
//
// # Handles
//
// Acquire returns a Handle rather than the raw resource. A handle is consumed
// by Release; using it afterwards, or releasing it twice, is a caller bug the
// pool detects via a generation tag and reports as ErrDoubleRelease (or a
// panic when Config.Strict is set). Handles must not be copied.
//
// # Metrics
//
// Pool utilization metrics are registered with the metrics package:
//   - respool_resources_max: Maximum pool size
//   - respool_resources_open: Current live resources
//   - respool_resources_idle: Current idle resources
//   - respool_resources_in_use: Resources currently checked out
//   - respool_waiters: Callers currently blocked in Acquire
//   - respool_acquire_total: Total acquire attempts
//   - respool_acquire_success_total: Successful acquires
//   - respool_acquire_failed_total: Failed acquires
//   - respool_acquire_timeout_total: Acquires that gave up waiting
//   - respool_release_total: Total releases
//   - respool_validation_fails_total: Resources discarded on release
//   - respool_acquire_duration_seconds: Time spent acquiring a resource
package pool
