package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/clinical-search/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*MockDistributedLock)(nil)

// MockDistributedLock holds named locks in memory with expiry.
// Every instance acts as the same holder; use SetLockHeld to simulate another replica.
type MockDistributedLock struct {
	mu    sync.Mutex
	locks map[string]heldLock

	// AcquireFn overrides Acquire when set
	AcquireFn func(name string, ttl time.Duration) (bool, error)

	// HolderFn overrides Holder when set
	HolderFn func(name string) (string, error)

	acquires int
}

type heldLock struct {
	holder string
	until  time.Time
}

const mockHolder = "clinical-search@test"

// NewMockDistributedLock creates an empty lock table
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{locks: make(map[string]heldLock)}
}

// Acquire takes the lock if free or expired
func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	m.acquires++
	m.mu.Unlock()

	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[name]; ok && time.Now().Before(l.until) {
		return false, nil
	}
	m.locks[name] = heldLock{holder: mockHolder, until: time.Now().Add(ttl)}
	return true, nil
}

// Release frees the lock only if this holder has it
func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[name]; ok && l.holder == mockHolder {
		delete(m.locks, name)
	}
	return nil
}

// Holder returns the live holder or ""
func (m *MockDistributedLock) Holder(ctx context.Context, name string) (string, error) {
	if m.HolderFn != nil {
		return m.HolderFn(name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[name]; ok && time.Now().Before(l.until) {
		return l.holder, nil
	}
	return "", nil
}

// IsHeld reports whether any holder has the lock
func (m *MockDistributedLock) IsHeld(name string) bool {
	holder, _ := m.Holder(context.Background(), name)
	return holder != ""
}

// SetLockHeld makes another replica hold the lock for ttl
func (m *MockDistributedLock) SetLockHeld(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[name] = heldLock{holder: "clinical-search@other-replica", until: time.Now().Add(ttl)}
}

// AcquireCount returns the number of Acquire calls
func (m *MockDistributedLock) AcquireCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires
}
