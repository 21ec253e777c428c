package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/clinical-search/internal/core/domain"
	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

const lockPrefix = "clinical:lock:"

// Lock implements DistributedLock with SET NX PX.
// Keys are scoped by namespace so deployments against different clusters never contend.
type Lock struct {
	client    redis.UniversalClient
	namespace string
	holderID  string
}

// NewLock creates a lock scoped to namespace (typically the cluster address)
func NewLock(client redis.UniversalClient, namespace string) *Lock {
	return &Lock{
		client:    client,
		namespace: namespace,
		holderID:  newHolderID(),
	}
}

// newHolderID identifies this process in lock values: clinical-search@host:pid:uuid
func newHolderID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("clinical-search@%s:%d:%s", hostname, os.Getpid(), uuid.NewString())
}

func (l *Lock) key(name string) string {
	if l.namespace == "" {
		return lockPrefix + name
	}
	return lockPrefix + l.namespace + ":" + name
}

// Acquire takes the lock if free
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(name), l.holderID, ttl).Result()
	if err != nil {
		return false, goerr.Wrap(domain.ErrServiceUnavailable, "failed to acquire lock",
			goerr.V("lock", name), goerr.V("cause", err.Error()))
	}
	return ok, nil
}

// releaseScript deletes the key only while it still holds our value
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// Release frees the lock if this instance still holds it
func (l *Lock) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key(name)}, l.holderID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return goerr.Wrap(domain.ErrServiceUnavailable, "failed to release lock",
			goerr.V("lock", name), goerr.V("cause", err.Error()))
	}
	return nil
}

// Holder returns the identity stored in the lock, or "" if free
func (l *Lock) Holder(ctx context.Context, name string) (string, error) {
	holder, err := l.client.Get(ctx, l.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", goerr.Wrap(domain.ErrServiceUnavailable, "failed to read lock holder",
			goerr.V("lock", name), goerr.V("cause", err.Error()))
	}
	return holder, nil
}

// HolderID returns the identity this instance writes into locks
func (l *Lock) HolderID() string {
	return l.holderID
}
