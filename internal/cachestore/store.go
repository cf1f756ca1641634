// Package cachestore provides the key/value stores with per-key expiry that are
// shared between requests: a bounded in-process LRU, a leveldb-backed disk store
// and a redis client.
package cachestore

import (
	"context"
	"errors"
	"time"
)

// Store is a get/set-with-expiry store over string keys. A ttl <= 0 means the
// entry never expires. A miss is reported as ok == false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

var ErrValueTooLarge = errors.New("cachestore: value exceeds memory budget")

// deadline converts a ttl into an absolute unix-nano deadline (0 = never).
func deadline(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).UnixNano()
}

func expired(expiresAt int64, now time.Time) bool {
	return expiresAt > 0 && now.UnixNano() >= expiresAt
}
