package opensearch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"opensearch/internal/cachestore"
)

type Service struct {
	cfg Config
	log *logrus.Entry

	cache    cachestore.Store
	labels   *LabelResolver
	pipeline *Pipeline
	lookup   *ReverseLookup

	stats *statsCollector

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewService opens the configured cache store and builds the HTTP backend
// client. cfg must come from LoadConfig.
func NewService(cfg Config, log *logrus.Logger) (*Service, error) {
	cache, err := openCache(cfg.Cache, log.WithField("component", "cache"))
	if err != nil {
		return nil, err
	}
	if cfg.Backend.InsecureSkipVerify {
		log.WithField("component", "backend").Warn("TLS certificate verification for backend calls is disabled")
	}
	return NewServiceWith(cfg, log, cache, NewClient(cfg.Backend)), nil
}

// NewServiceWith wires a service around an existing store and backend. The
// service owns cache and closes it in Close.
func NewServiceWith(cfg Config, log *logrus.Logger, cache cachestore.Store, backend Backend) *Service {
	s := &Service{
		cfg:    cfg,
		log:    log.WithField("component", "http"),
		cache:  cache,
		stats:  newStatsCollector(),
		stopCh: make(chan struct{}),
	}

	s.labels = NewLabelResolver(cache, backend, cfg.Cache.KeyPrefix, cfg.Cache.labelTTLDur, log.WithField("component", "labels"))
	s.pipeline = NewPipeline(backend, s.labels, cache, cfg.Cache.KeyPrefix, cfg.Cache.itemTTLDur, log.WithField("component", "search"))
	s.lookup = NewReverseLookup(backend, cache, cfg.Cache.KeyPrefix, log.WithField("component", "lookup"))
	s.labels.stats = s.stats
	s.pipeline.stats = s.stats
	s.lookup.stats = s.stats

	if every := cfg.Logging.logStatsEveryDur; every > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.statsLoop(every)
		}()
	}
	return s
}

func openCache(cfg CacheConfig, log *logrus.Entry) (cachestore.Store, error) {
	switch cfg.Backend {
	case cacheMemory:
		return cachestore.NewMemory(cfg.memoryMaxBytes, cfg.memorySweepDur, log), nil
	case cacheLevelDB:
		st, err := cachestore.OpenLevelDB(cfg.LevelDB.Path, cfg.levelSweepDur, log)
		if err != nil {
			return nil, fmt.Errorf("open leveldb cache: %w", err)
		}
		return st, nil
	case cacheRedis:
		rc := cachestore.NewRedis(cachestore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("redis cache %s: %w", cfg.Redis.Addr, err)
		}
		return rc, nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

// Close stops background loops and closes the cache store. It is safe to call
// more than once.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		err = s.cache.Close()
	})
	return err
}

func (s *Service) Handler() http.Handler {
	h := s.routes()
	h = withRecover(s.log, s.cfg.Server.StaticPrefix)(h)
	h = withLogging(s.log)(h)
	return withRequestID(h)
}

func (s *Service) Search(ctx context.Context, q Query) (EnrichedPage, error) {
	return s.pipeline.Search(ctx, q)
}

func (s *Service) LookupByMagnetKey(ctx context.Context, key string) (DetailView, error) {
	return s.lookup.LookupByMagnetKey(ctx, key, s.cfg.Backend.Token)
}
