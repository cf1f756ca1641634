package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"opensearch/internal/cachestore"
)

// ReverseLookup rebuilds an item's context from the cache and joins it with a
// fresh detail record from the backend.
type ReverseLookup struct {
	backend Backend
	cache   cachestore.Store
	keys    keySpace
	log     *logrus.Entry
	warn    *rateLimitedLogger
	stats   *statsCollector
}

func NewReverseLookup(backend Backend, cache cachestore.Store, keyPrefix string, log *logrus.Entry) *ReverseLookup {
	return &ReverseLookup{
		backend: backend,
		cache:   cache,
		keys:    keySpace{prefix: keyPrefix},
		log:     log,
		warn:    newRateLimitedLogger(log, time.Minute),
		stats:   newStatsCollector(),
	}
}

// LookupByMagnetKey returns ErrNotFound when the item is not cached, the
// detail call fails, or the detail has no magnet link.
func (l *ReverseLookup) LookupByMagnetKey(ctx context.Context, key, token string) (DetailView, error) {
	l.stats.lookups.Add(1)
	view, err := l.lookup(ctx, key, token)
	if err != nil {
		l.stats.lookupMisses.Add(1)
	}
	return view, err
}

func (l *ReverseLookup) lookup(ctx context.Context, key, token string) (DetailView, error) {
	if key == "" {
		return DetailView{}, fmt.Errorf("empty magnet key: %w", ErrNotFound)
	}

	cacheKey := l.keys.item(key)
	b, ok, err := l.cache.Get(ctx, cacheKey)
	if err != nil {
		l.log.Warnf("read item %s: %v", cacheKey, err)
		return DetailView{}, fmt.Errorf("magnet %s: %w", key, ErrNotFound)
	}
	if !ok {
		return DetailView{}, fmt.Errorf("magnet %s not cached: %w", key, ErrNotFound)
	}
	var cached ResultItem
	if err := json.Unmarshal(b, &cached); err != nil {
		l.log.Warnf("decode item %s: %v", cacheKey, err)
		return DetailView{}, fmt.Errorf("magnet %s: %w", key, ErrNotFound)
	}

	detail, err := l.backend.FetchDetail(ctx, key, token)
	if err != nil {
		l.warn.Warnf("Failure for magnet %s: %v", key, err)
		return DetailView{}, fmt.Errorf("magnet %s: %w", key, ErrNotFound)
	}
	if detail.MagnetLink == "" {
		l.log.Warnf("Empty for magnet %s.", key)
		return DetailView{}, fmt.Errorf("magnet %s has no link: %w", key, ErrNotFound)
	}

	return DetailView{
		Key:        key,
		Query:      cached.Query,
		BoardLabel: cached.BoardLabel,
		InfoHash:   infoHash(detail.MagnetLink),
		Cached:     cached,
		Detail:     detail,
	}, nil
}

// infoHash extracts the btih value from a magnet URI, or "" if there is none.
func infoHash(magnet string) string {
	_, rest, ok := strings.Cut(magnet, ":btih:")
	if !ok {
		return ""
	}
	hash, _, _ := strings.Cut(rest, "&")
	return hash
}
