package track

import (
	"context"
	"sync"
	"time"
)

// UpsertFunc receives every track accepted by a NotifyingStore.
type UpsertFunc func(Track)

// NotifyingStore wraps a Store and fans successful upserts out to registered
// subscribers (the websocket hub, the NATS publisher). Subscribers run on the
// caller's goroutine and must not block; store semantics are unchanged.
type NotifyingStore struct {
	Store

	mu   sync.RWMutex
	subs []UpsertFunc
	now  func() time.Time
}

// NewNotifyingStore wraps the given store.
func NewNotifyingStore(inner Store) *NotifyingStore {
	return &NotifyingStore{Store: inner, now: time.Now}
}

// Subscribe registers fn to be called after every successful upsert.
func (n *NotifyingStore) Subscribe(fn UpsertFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

// Upsert stamps the track, writes through to the inner store and notifies
// subscribers on success. Stamping happens here so subscribers see the same
// updated_at the store persisted.
func (n *NotifyingStore) Upsert(ctx context.Context, t Track) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = n.now().UTC()
	}
	if t.Meta == nil {
		t.Meta = map[string]string{}
	}

	if err := n.Store.Upsert(ctx, t); err != nil {
		return err
	}

	n.mu.RLock()
	subs := n.subs
	n.mu.RUnlock()

	for _, fn := range subs {
		fn(t)
	}
	return nil
}
