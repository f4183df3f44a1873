package cache

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope is the shared-tier wire format. The freshness bounds travel with
// the value so a stale entry can still be recognised as such after a
// round-trip through the backend.
type envelope[V any] struct {
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Value     V         `json:"value"`
}

// Codec converts entries to and from shared-tier bytes.
type Codec[V any] interface {
	Encode(Entry[V]) ([]byte, error)
	Decode([]byte) (Entry[V], error)
}

// JSONCodec encodes entries as a JSON envelope.
type JSONCodec[V any] struct{}

// Encode implements Codec.
func (JSONCodec[V]) Encode(e Entry[V]) ([]byte, error) {
	data, err := json.Marshal(envelope[V]{
		StoredAt:  e.StoredAt.UTC(),
		ExpiresAt: e.ExpiresAt.UTC(),
		Value:     e.Value,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: encode entry: %w", err)
	}
	return data, nil
}

// Decode implements Codec.
func (JSONCodec[V]) Decode(data []byte) (Entry[V], error) {
	var env envelope[V]
	if err := json.Unmarshal(data, &env); err != nil {
		return Entry[V]{}, fmt.Errorf("cache: decode entry: %w", err)
	}
	if env.ExpiresAt.IsZero() {
		return Entry[V]{}, fmt.Errorf("cache: decode entry: missing expires_at")
	}
	return Entry[V]{
		Value:     env.Value,
		StoredAt:  env.StoredAt,
		ExpiresAt: env.ExpiresAt,
		Source:    SourceShared,
	}, nil
}
