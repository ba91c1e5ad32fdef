package core

import (
	"context"
	"sync"
)

// KeyLock provides per-key mutual exclusion with FIFO handoff.
//
// Each key gets its own queue of waiters, created on demand and removed
// when the last holder releases. Two different keys never contend, so
// independent rooms can be mutated concurrently while operations on one
// room are totally ordered by acquisition order.
type KeyLock struct {
	mu      sync.Mutex
	held    map[string]bool
	waiters map[string][]chan struct{}
}

// NewKeyLock creates an empty lock table.
func NewKeyLock() *KeyLock {
	return &KeyLock{
		held:    make(map[string]bool),
		waiters: make(map[string][]chan struct{}),
	}
}

// Acquire blocks until the caller holds the key exclusively, or until ctx
// is done. On a nil return the caller owns the key and must call Release.
func (kl *KeyLock) Acquire(ctx context.Context, key string) error {
	kl.mu.Lock()
	if !kl.held[key] {
		kl.held[key] = true
		kl.mu.Unlock()
		return nil
	}

	grant := make(chan struct{})
	kl.waiters[key] = append(kl.waiters[key], grant)
	kl.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		if kl.abandon(key, grant) {
			return ctx.Err()
		}
		// The grant raced with cancellation; we own the key now and
		// must pass it on.
		kl.Release(key)
		return ctx.Err()
	}
}

// Release hands the key to the next queued waiter, if any, else clears it.
// Calling Release for a key that is not held is a no-op.
func (kl *KeyLock) Release(key string) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	if !kl.held[key] {
		return
	}

	queue := kl.waiters[key]
	if len(queue) == 0 {
		delete(kl.held, key)
		delete(kl.waiters, key)
		return
	}

	next := queue[0]
	if len(queue) == 1 {
		delete(kl.waiters, key)
	} else {
		kl.waiters[key] = queue[1:]
	}
	close(next)
}

// abandon removes a waiter from the queue. It reports false when the
// waiter was already granted the key.
func (kl *KeyLock) abandon(key string, grant chan struct{}) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	queue := kl.waiters[key]
	for i, ch := range queue {
		if ch == grant {
			kl.waiters[key] = append(queue[:i:i], queue[i+1:]...)
			if len(kl.waiters[key]) == 0 {
				delete(kl.waiters, key)
			}
			return true
		}
	}
	return false
}

// Len returns the number of currently held keys.
func (kl *KeyLock) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.held)
}
