package client

import (
	"encoding/json"
	"log"
	"sync"
)

// Persisted is a value mirrored into a SessionStore on every change. On
// construction a stored value, when present and parseable, wins over the
// initializer. Storage failures never escape: the in-memory value is always
// authoritative for the current process.
type Persisted[T any] struct {
	mu    sync.Mutex
	key   string
	store SessionStore
	value T
}

// NewPersisted loads the value under key, falling back to initial (which may
// be nil for the zero value).
func NewPersisted[T any](store SessionStore, key string, initial func() T) *Persisted[T] {
	p := &Persisted[T]{key: key, store: store}

	if raw, ok := store.Get(key); ok {
		var loaded T
		if err := json.Unmarshal(raw, &loaded); err == nil {
			p.value = loaded
			return p
		}
		log.Printf("persisted %q: discarding unparseable stored value", key)
	}

	if initial != nil {
		p.value = initial()
	}
	return p
}

func (p *Persisted[T]) Value() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

// Set updates the in-memory value and mirrors it to the store. The write is
// synchronous; last write wins.
func (p *Persisted[T]) Set(value T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.value = value

	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("persisted %q: encode: %v", p.key, err)
		return
	}
	p.store.Set(p.key, raw)
}

// Reset restores the zero value and removes the stored copy.
func (p *Persisted[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero T
	p.value = zero
	p.store.Clear(p.key)
}
