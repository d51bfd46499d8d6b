package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTimeout is returned when a lock could not be acquired within the
// configured window. Callers should surface it as a retryable busy condition.
var ErrTimeout = errors.New("lock acquisition timed out")

// KeyedMutex serializes work per resource key. Locks are created on demand
// and garbage collected once the last waiter releases them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

type entry struct {
	ch   chan struct{}
	refs int
}

// New builds a KeyedMutex with the given default acquisition timeout.
func New(timeout time.Duration) *KeyedMutex {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KeyedMutex{
		entries: make(map[string]*entry),
		timeout: timeout,
	}
}

// Acquire takes the locks for every key, in sorted order so that two
// requests touching overlapping key sets cannot deadlock each other.
// The returned release function must be called exactly once; it is safe to
// call from a deferred statement. On failure no locks remain held.
func (k *KeyedMutex) Acquire(ctx context.Context, keys ...string) (func(), error) {
	if len(keys) == 0 {
		return func() {}, nil
	}

	ordered := dedupe(keys)
	sort.Strings(ordered)

	timer := time.NewTimer(k.timeout)
	defer timer.Stop()

	held := make([]string, 0, len(ordered))
	for _, key := range ordered {
		if err := k.acquireOne(ctx, key, timer.C); err != nil {
			k.releaseAll(held)
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { k.releaseAll(held) })
	}, nil
}

func (k *KeyedMutex) acquireOne(ctx context.Context, key string, deadline <-chan time.Time) error {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.unref(key, e)
		return ctx.Err()
	case <-deadline:
		k.unref(key, e)
		return ErrTimeout
	}
}

func (k *KeyedMutex) releaseAll(keys []string) {
	// Reverse of acquisition order; order does not matter for correctness
	// since each release is independent, but it keeps traces readable.
	for i := len(keys) - 1; i >= 0; i-- {
		k.mu.Lock()
		e, ok := k.entries[keys[i]]
		k.mu.Unlock()
		if !ok {
			continue
		}
		<-e.ch
		k.unref(keys[i], e)
	}
}

func (k *KeyedMutex) unref(key string, e *entry) {
	k.mu.Lock()
	e.refs--
	if e.refs <= 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
