package opensearch

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type statsCollector struct {
	searches        atomic.Uint64
	searchFailures  atomic.Uint64
	emptyPages      atomic.Uint64
	itemsEnriched   atomic.Uint64
	labelHits       atomic.Uint64
	labelMisses     atomic.Uint64
	labelFallbacks  atomic.Uint64
	itemWrites      atomic.Uint64
	itemWriteErrors atomic.Uint64
	lookups         atomic.Uint64
	lookupMisses    atomic.Uint64
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

type statsSnapshot struct {
	Searches        uint64
	SearchFailures  uint64
	EmptyPages      uint64
	ItemsEnriched   uint64
	LabelHits       uint64
	LabelMisses     uint64
	LabelFallbacks  uint64
	ItemWrites      uint64
	ItemWriteErrors uint64
	Lookups         uint64
	LookupMisses    uint64
}

func (s *statsCollector) Snapshot() statsSnapshot {
	return statsSnapshot{
		Searches:        s.searches.Load(),
		SearchFailures:  s.searchFailures.Load(),
		EmptyPages:      s.emptyPages.Load(),
		ItemsEnriched:   s.itemsEnriched.Load(),
		LabelHits:       s.labelHits.Load(),
		LabelMisses:     s.labelMisses.Load(),
		LabelFallbacks:  s.labelFallbacks.Load(),
		ItemWrites:      s.itemWrites.Load(),
		ItemWriteErrors: s.itemWriteErrors.Load(),
		Lookups:         s.lookups.Load(),
		LookupMisses:    s.lookupMisses.Load(),
	}
}

// labelHitRatio is the share of label resolutions served from cache, in percent.
func (ss statsSnapshot) labelHitRatio() float64 {
	total := ss.LabelHits + ss.LabelMisses
	if total == 0 {
		return 0
	}
	return float64(ss.LabelHits) * 100 / float64(total)
}

// sizedStore is implemented by stores that can report their footprint.
type sizedStore interface {
	Len() int
	TotalSize() int64
}

func (s *Service) statsLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.logStats()
		}
	}
}

func (s *Service) logStats() {
	ss := s.stats.Snapshot()
	fields := logrus.Fields{
		"searches":        ss.Searches,
		"search_failures": ss.SearchFailures,
		"empty_pages":     ss.EmptyPages,
		"items":           ss.ItemsEnriched,
		"label_hit_pct":   int(ss.labelHitRatio()),
		"label_fallbacks": ss.LabelFallbacks,
		"item_writes":     ss.ItemWrites,
		"item_write_errs": ss.ItemWriteErrors,
		"lookups":         ss.Lookups,
		"lookup_misses":   ss.LookupMisses,
	}
	if sz, ok := s.cache.(sizedStore); ok {
		fields["cached_keys"] = sz.Len()
		fields["cache_usage"] = formatBytes(uint64(sz.TotalSize()))
	}
	if mem, ok := readProcessMemory(); ok {
		fields["rss"] = formatBytes(mem.RSS)
		if s.log.Logger.IsLevelEnabled(logrus.DebugLevel) && len(mem.Rollup) > 0 {
			fields["rss_split"] = mem.rollupString()
		}
	}
	s.log.WithFields(fields).Info("stats")
}
