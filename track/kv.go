package track

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/takbridge/errors"
)

// KVStore persists tracks in a NATS JetStream key-value bucket, one JSON
// value per UID. History depth 1 gives last-write-wins semantics for free.
type KVStore struct {
	bucket jetstream.KeyValue
	now    func() time.Time
}

// NewKVStore wraps an existing KV bucket as a track Store.
func NewKVStore(bucket jetstream.KeyValue) *KVStore {
	return &KVStore{bucket: bucket, now: time.Now}
}

// Upsert inserts or fully replaces the track keyed by its UID.
func (s *KVStore) Upsert(ctx context.Context, t Track) error {
	if t.UID == "" {
		return errors.WrapInvalid(errors.ErrMissingUID, "KVStore", "Upsert", "uid validation")
	}

	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.now().UTC()
	}
	if t.Meta == nil {
		t.Meta = map[string]string{}
	}

	data, err := json.Marshal(t)
	if err != nil {
		return errors.WrapInvalid(err, "KVStore", "Upsert", "track encoding")
	}

	if _, err := s.bucket.Put(ctx, t.UID, data); err != nil {
		return errors.WrapTransient(err, "KVStore", "Upsert", "kv put")
	}
	return nil
}

// List returns all stored tracks. Keys deleted between the listing and the
// read are skipped rather than failing the whole listing.
func (s *KVStore) List(ctx context.Context) ([]Track, error) {
	lister, err := s.bucket.ListKeys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "List", "kv key listing")
	}
	defer func() { _ = lister.Stop() }()

	var out []Track
	for key := range lister.Keys() {
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			if stderrors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errors.WrapTransient(err, "KVStore", "List", "kv get "+key)
		}

		var t Track
		if err := json.Unmarshal(entry.Value(), &t); err != nil {
			// A corrupt value should not poison the listing
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
