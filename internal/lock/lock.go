// Package lock provides per-path write locks with a bounded wait.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"cargohold/pkg/domain"
)

// DefaultTimeout bounds how long a writer waits for a path.
const DefaultTimeout = 5 * time.Second

// Manager hands out one exclusive lock per key. Entries are dropped once no
// caller holds or waits for them.
type Manager struct {
	mu      sync.Mutex
	timeout time.Duration
	locks   map[string]*entry
}

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// New constructs a Manager; a non-positive timeout means DefaultTimeout.
func New(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{timeout: timeout, locks: make(map[string]*entry)}
}

// Timeout returns the configured wait bound.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Lock acquires the lock for key. It fails with domain.ErrLockContention when
// the lock is not free within the timeout, or with the context error when ctx
// ends first. The returned release func is safe to call more than once.
func (m *Manager) Lock(ctx context.Context, key string) (func(), error) {
	e := m.ref(key)
	wait, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := e.sem.Acquire(wait, 1); err != nil {
		m.unref(key, e)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s not released within %s", domain.ErrLockContention, key, m.timeout)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			m.unref(key, e)
		})
	}, nil
}

// Held reports how many keys are currently locked or awaited.
func (m *Manager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Manager) ref(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Manager) unref(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
