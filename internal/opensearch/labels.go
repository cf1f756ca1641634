package opensearch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"opensearch/internal/cachestore"
)

// UnknownBoardLabel is shown when a board's label cannot be resolved.
const UnknownBoardLabel = "Неизвестная категория"

type labelEntry struct {
	Label string `json:"label"`
}

// LabelResolver maps (board id, tracker) to a category label through the
// cache, falling back to the backend on a miss.
type LabelResolver struct {
	cache   cachestore.Store
	backend Backend
	keys    keySpace
	ttl     time.Duration
	log     *logrus.Entry
	warn    *rateLimitedLogger
	stats   *statsCollector
}

func NewLabelResolver(cache cachestore.Store, backend Backend, keyPrefix string, ttl time.Duration, log *logrus.Entry) *LabelResolver {
	return &LabelResolver{
		cache:   cache,
		backend: backend,
		keys:    keySpace{prefix: keyPrefix},
		ttl:     ttl,
		log:     log,
		warn:    newRateLimitedLogger(log, time.Minute),
		stats:   newStatsCollector(),
	}
}

// Resolve never fails. Without a cached or fetched label it returns
// UnknownBoardLabel, and the placeholder is never cached.
func (r *LabelResolver) Resolve(ctx context.Context, boardID, tracker string) string {
	key := r.keys.board(boardID, tracker)
	if label, ok := r.cached(ctx, key); ok {
		r.stats.labelHits.Add(1)
		return label
	}
	r.stats.labelMisses.Add(1)

	label, err := r.backend.FetchLabel(ctx, boardID, tracker)
	if err != nil {
		r.stats.labelFallbacks.Add(1)
		r.warn.Warnf("label for board %s/%s: %v", boardID, tracker, err)
		return UnknownBoardLabel
	}

	b, err := json.Marshal(labelEntry{Label: label})
	if err == nil {
		err = r.cache.Set(ctx, key, b, r.ttl)
	}
	if err != nil {
		r.log.Warnf("cache label %s: %v", key, err)
	}
	return label
}

func (r *LabelResolver) cached(ctx context.Context, key string) (string, bool) {
	b, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.log.Warnf("read label %s: %v", key, err)
		return "", false
	}
	if !ok {
		return "", false
	}
	var ent labelEntry
	if err := json.Unmarshal(b, &ent); err != nil {
		r.log.Warnf("decode label %s: %v", key, err)
		return "", false
	}
	return ent.Label, true
}
