package cache

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tugasin/tugasin-blog/types"
)

// Encoded is a value as stored by an out-of-process backend.
type Encoded []byte

// Load reads key and returns it as T. Memory entries are asserted directly; encoded entries are
// decoded with msgpack. Values of another type read as a miss.
func Load[T any](c types.CacheManager, key string) (T, bool) {
	var zero T

	raw, ok := c.Get(key)
	if !ok || raw == nil {
		return zero, false
	}

	if value, isT := raw.(T); isT {
		return value, true
	}

	if encoded, isEncoded := raw.(Encoded); isEncoded {
		var value T
		if err := msgpack.Unmarshal(encoded, &value); err != nil {
			return zero, false
		}
		return value, true
	}

	return zero, false
}
