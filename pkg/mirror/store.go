package mirror

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("Not found")

// ObjectInfo describes one file in a bucket.
type ObjectInfo struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Store reads objects from a buildcache bucket. Keys are slash separated
// and relative to the bucket.
type Store interface {
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// OpenStore returns the Store for a target, picking S3 or the local
// filesystem from the base URL.
func OpenStore(ctx context.Context, t Target, opts S3Options) (Store, error) {
	if t.IsS3() {
		return NewS3Store(ctx, t.Path(), opts)
	}
	return NewLocalStore(t.Path())
}
