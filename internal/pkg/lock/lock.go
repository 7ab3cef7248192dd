// Package lock provides in-process keyed mutual exclusion. It serializes work
// for one key (an owner, a day+kind pool) inside a single process; storage-level
// atomicity remains the source of truth across processes.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock cannot be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timeout")

type entry struct {
	ch   chan struct{} // capacity 1; holding the token means holding the lock
	refs int
}

// KeyLock hands out one lock per key. Entries are dropped once no goroutine
// holds or waits for them.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{entries: make(map[string]*entry)}
}

func (l *KeyLock) acquire(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *KeyLock) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock blocks until the key is held.
func (l *KeyLock) Lock(key string) {
	e := l.acquire(key)
	e.ch <- struct{}{}
}

// Unlock releases the key. Unlocking a key that is not held panics, like sync.Mutex.
func (l *KeyLock) Unlock(key string) {
	l.mu.Lock()
	e, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		panic("lock: unlock of unlocked key " + key)
	}
	<-e.ch
	l.release(key, e)
}

// TryLock acquires the key only if it is free.
func (l *KeyLock) TryLock(key string) bool {
	e := l.acquire(key)
	select {
	case e.ch <- struct{}{}:
		return true
	default:
		l.release(key, e)
		return false
	}
}

// LockContext waits for the key until ctx is done or timeout elapses.
func (l *KeyLock) LockContext(ctx context.Context, key string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e := l.acquire(key)
	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.release(key, e)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}

// WithLock runs fn while holding key.
func (l *KeyLock) WithLock(key string, fn func() error) error {
	l.Lock(key)
	defer l.Unlock(key)
	return fn()
}

// WithLockContext runs fn while holding key, giving up after timeout.
func (l *KeyLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	if err := l.LockContext(ctx, key, timeout); err != nil {
		return err
	}
	defer l.Unlock(key)
	return fn()
}

// IsLocked is a point-in-time check.
func (l *KeyLock) IsLocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	return ok && len(e.ch) == 1
}

// Len reports how many keys are currently tracked.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
