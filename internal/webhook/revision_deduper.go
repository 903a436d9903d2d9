package webhook

import (
	"fmt"
	"sync"
	"time"
)

type revisionDeduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func newRevisionDeduper(ttl time.Duration) *revisionDeduper {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &revisionDeduper{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

func revisionKey(itemID, revisionID int64) string {
	return fmt.Sprintf("%d:%d", itemID, revisionID)
}

// markIfNew returns true if the key has not been seen recently.
// When it returns true, the key is recorded with an expiry timestamp.
func (d *revisionDeduper) markIfNew(key string) bool {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for k, expiry := range d.entries {
		if now.After(expiry) {
			delete(d.entries, k)
		}
	}

	if expiry, ok := d.entries[key]; ok && now.Before(expiry) {
		return false
	}

	d.entries[key] = now.Add(d.ttl)
	return true
}

// forget drops a key so the next delivery is processed again.
func (d *revisionDeduper) forget(key string) {
	d.mu.Lock()
	delete(d.entries, key)
	d.mu.Unlock()
}
