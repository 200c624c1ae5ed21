package pool

import "context"

// Lifecycle is the capability contract a pooled resource type must satisfy.
// The pool never runs any Lifecycle method while holding its internal lock,
// so implementations are free to block or perform I/O.
type Lifecycle[T any] interface {
	// Create constructs a new resource. Errors are propagated unchanged to
	// the Acquire caller; the pool never retries and a failed construction
	// does not consume a capacity slot.
	Create(ctx context.Context) (T, error)

	// Reset clears transient session state so the resource looks unused.
	// It runs on release, before the resource becomes visible to the next
	// borrower, and must leave no field carrying data between borrowers.
	Reset(res T)

	// Destroy tears the resource down. It is called when a resource is
	// evicted: validation failure, Discard, ShrinkIdle, idle timeout, or
	// pool Close.
	Destroy(res T) error
}

// Validator is an optional capability. When the Lifecycle passed to New also
// implements Validator and Config.ValidateOnRelease is set, every returned
// resource is checked and discarded on failure. Lifecycles without Validator
// have their returned resources treated as always valid.
type Validator[T any] interface {
	// Validate reports whether a returned resource is still usable.
	Validate(res T) bool
}
