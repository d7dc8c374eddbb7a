// Package lock provides per-object mutual exclusion for the commit
// pipeline. Every mutating operation on an object must run inside
// DoInWriteLock for the duration of load-mutate-commit; operations
// against distinct objects never contend. Readers do not take locks.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ocfl/internal/ocflerr"
)

// ErrLocked is wrapped into the returned error when the object could
// not be locked within the caller's timeout.
var ErrLocked = errors.New("lock: failed to acquire lock for object")

// Lock serializes access to a single object ID across the lifetime of
// a repository. Implementations must be safe for concurrent use by
// multiple goroutines locking different object IDs.
type Lock interface {
	// DoInWriteLock runs fn with objectID's lock held, waiting up to
	// timeout to acquire it. The lock is released when fn returns,
	// regardless of outcome.
	DoInWriteLock(ctx context.Context, objectID string, timeout time.Duration, fn func(ctx context.Context) error) error
}

func failedToAcquire(objectID string, cause error) error {
	return ocflerr.Wrap(ocflerr.LockError, "DoInWriteLock", objectID, fmt.Errorf("%w %q: %v", ErrLocked, objectID, cause))
}
