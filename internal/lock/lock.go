// Package lock implements the TTL advisory lock that keeps generation
// jobs at-most-once across stateless handlers.
//
// Two implementations share the Locker interface: SQLLocker coordinates
// through the shared store and gives cross-process exclusion, while
// LocalLocker is a process-scoped fallback with strictly weaker
// guarantees. Mode() makes the two distinguishable in logs.
package lock

import (
	"context"
	"errors"
	"time"
)

// Reason explains a denied acquire.
type Reason string

const (
	// ReasonBusy means another owner holds an unexpired lock.
	ReasonBusy Reason = "busy"

	// ReasonUnavailable means the lock store could not be reached.
	// Distinct from busy so callers can retry immediately instead of
	// backing off.
	ReasonUnavailable Reason = "unavailable"
)

// Sentinel errors surfaced by RunWithLock.
var (
	ErrBusy        = errors.New("lock busy")
	ErrUnavailable = errors.New("lock store unavailable")
	ErrNotHeld     = errors.New("lock not held")
)

// AcquireResult is the outcome of an acquire attempt.
type AcquireResult struct {
	// Granted is true when the caller now owns the lock.
	Granted bool

	// Token is the opaque owner token. Required for extend and release.
	Token string

	// Reason is set when Granted is false.
	Reason Reason
}

// Locker is the advisory-lock contract.
//
// Acquire must be atomic from the store's perspective: a single
// conditional write, never read-then-write. On store failure it
// returns Reason unavailable together with the underlying error.
type Locker interface {
	// Acquire takes the named lock for ttl. At most one of two
	// concurrent callers observes Granted true.
	Acquire(ctx context.Context, name string, ttl time.Duration) (AcquireResult, error)

	// Extend renews the lock's expiry. Succeeds only while token is
	// the current owner and the lock has not expired.
	Extend(ctx context.Context, name, token string, ttl time.Duration) (bool, error)

	// Release removes the lock if token is the current owner, and is
	// a no-op otherwise. Correctness does not depend on Release
	// succeeding; TTL expiry is the backstop.
	Release(ctx context.Context, name, token string) error

	// Mode identifies the implementation ("sql" or "local") for logs
	// and metrics.
	Mode() string
}
