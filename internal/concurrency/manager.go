// Package concurrency guards against running two reviews of the same item at
// once. Quick successive edits give one item several revisions in flight,
// and each review posts its own comment, so the item is the unit of exclusion.
package concurrency

import (
	"strconv"
	"sync"
)

// ItemKey returns the guard key of a Podio item.
func ItemKey(itemID int64) string {
	return "item:" + strconv.FormatInt(itemID, 10)
}

// Manager holds one non-blocking lock per key.
type Manager struct {
	locks sync.Map // map[string]chan struct{}
}

// NewManager creates a new concurrency manager
func NewManager() *Manager {
	return &Manager{}
}

// TryAcquire attempts to acquire the lock for key.
// Returns true if the lock was acquired, false if already held.
func (m *Manager) TryAcquire(key string) bool {
	actual, _ := m.locks.LoadOrStore(key, make(chan struct{}, 1))
	ch := actual.(chan struct{})

	select {
	case ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release releases the lock for key.
// Safe to call even if the lock was never acquired or already released.
func (m *Manager) Release(key string) {
	if actual, ok := m.locks.Load(key); ok {
		ch := actual.(chan struct{})
		select {
		case <-ch:
		default:
		}
	}
}

// Held reports whether the lock for key is currently held.
func (m *Manager) Held(key string) bool {
	actual, ok := m.locks.Load(key)
	if !ok {
		return false
	}
	return len(actual.(chan struct{})) > 0
}

// Active returns the number of held locks.
func (m *Manager) Active() int {
	n := 0
	m.locks.Range(func(_, v any) bool {
		if len(v.(chan struct{})) > 0 {
			n++
		}
		return true
	})
	return n
}
