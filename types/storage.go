package types

import "context"

// ObjectStore keeps opaque documents under string keys. Get reports ErrStorageNotFound for unknown keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
}
