package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"opensearch/internal/cachestore"
)

// Pipeline runs searches against the backend and enriches the returned items.
type Pipeline struct {
	backend Backend
	labels  *LabelResolver
	cache   cachestore.Store
	keys    keySpace
	itemTTL time.Duration
	log     *logrus.Entry
	stats   *statsCollector
}

func NewPipeline(backend Backend, labels *LabelResolver, cache cachestore.Store, keyPrefix string, itemTTL time.Duration, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		backend: backend,
		labels:  labels,
		cache:   cache,
		keys:    keySpace{prefix: keyPrefix},
		itemTTL: itemTTL,
		log:     log,
		stats:   labels.stats,
	}
}

// Search fetches the result page and total count concurrently. If either call
// fails nothing is enriched and the error matches ErrBackendUnavailable.
func (p *Pipeline) Search(ctx context.Context, q Query) (EnrichedPage, error) {
	if q.Empty() {
		return EnrichedPage{Query: q}, ErrEmptyQuery
	}
	p.stats.searches.Add(1)
	p.log.Infof("Query: %s", q.Text)

	var page ResultPage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := p.backend.FetchResults(gctx, q)
		page.Items = items
		return err
	})
	g.Go(func() error {
		total, err := p.backend.FetchCount(gctx, q)
		page.Total = total
		return err
	})
	if err := g.Wait(); err != nil {
		p.stats.searchFailures.Add(1)
		return EnrichedPage{Query: q}, fmt.Errorf("search %q: %w", q.Text, err)
	}
	p.log.Infof("Query response size: %d", page.Total)

	return p.Enrich(ctx, q, page), nil
}

// Enrich translates statuses, attaches the query and board label to every
// item in order and caches each item under its magnet key.
func (p *Pipeline) Enrich(ctx context.Context, q Query, page ResultPage) EnrichedPage {
	items := page.Items
	if items == nil {
		items = []ResultItem{}
	}
	for i := range items {
		it := &items[i]
		it.Status = DisplayStatus(it.Status)
		it.Query = q.Text
		it.BoardLabel = p.labels.Resolve(ctx, string(it.BoardID), string(it.Tracker))
		p.storeItem(ctx, *it)
	}
	p.stats.itemsEnriched.Add(uint64(len(items)))

	status := http.StatusOK
	if len(items) == 0 {
		status = http.StatusNotFound
		p.stats.emptyPages.Add(1)
	}
	return EnrichedPage{Query: q, Items: items, Total: page.Total, StatusCode: status}
}

func (p *Pipeline) storeItem(ctx context.Context, it ResultItem) {
	if it.MagnetKey == "" {
		p.log.Debugf("item without magnet_key on board %s, not cached", it.BoardID)
		return
	}
	key := p.keys.item(string(it.MagnetKey))
	b, err := json.Marshal(it)
	if err == nil {
		err = p.cache.Set(ctx, key, b, p.itemTTL)
	}
	if err != nil {
		p.stats.itemWriteErrors.Add(1)
		p.log.Warnf("cache item %s: %v", key, err)
		return
	}
	p.stats.itemWrites.Add(1)
}
