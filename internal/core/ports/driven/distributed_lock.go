package driven

import (
	"context"
	"time"
)

// DistributedLock serializes index bootstrap across replicas sharing one cluster
type DistributedLock interface {
	// Acquire takes the named lock for ttl. Returns false if another holder has it.
	// The lock is not reentrant.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release frees the lock if this instance holds it; otherwise a no-op
	Release(ctx context.Context, name string) error

	// Holder returns the current holder's identity, or "" if the lock is free
	Holder(ctx context.Context, name string) (string, error)
}
