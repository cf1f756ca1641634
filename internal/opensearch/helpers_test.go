package opensearch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"opensearch/internal/cachestore"
)

// fakeBackend serves canned responses and counts calls.
type fakeBackend struct {
	mu sync.Mutex

	items   []ResultItem
	total   int
	labels  map[string]string // "boardID/tracker" -> label
	details map[string]DetailRecord

	resultsErr error
	countErr   error
	labelErr   error
	detailErr  error
	labelPanic bool

	resultsCalls int
	countCalls   int
	labelCalls   int
	detailCalls  int
	lastQuery    Query
	lastToken    string
}

func (f *fakeBackend) FetchResults(_ context.Context, q Query) ([]ResultItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultsCalls++
	f.lastQuery = q
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	return append([]ResultItem(nil), f.items...), nil
}

func (f *fakeBackend) FetchCount(_ context.Context, q Query) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.total, nil
}

func (f *fakeBackend) FetchLabel(_ context.Context, boardID, tracker string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labelCalls++
	if f.labelPanic {
		panic("label lookup exploded")
	}
	if f.labelErr != nil {
		return "", f.labelErr
	}
	label, ok := f.labels[boardID+"/"+tracker]
	if !ok {
		return "", &BackendError{Op: "label", URL: "http://backend.test/board/" + boardID, StatusCode: 404}
	}
	return label, nil
}

func (f *fakeBackend) FetchDetail(_ context.Context, key, token string) (DetailRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	f.lastToken = token
	if f.detailErr != nil {
		return DetailRecord{}, f.detailErr
	}
	d, ok := f.details[key]
	if !ok {
		return DetailRecord{}, &BackendError{Op: "detail", URL: "http://backend.test/magnet/" + key, StatusCode: 404}
	}
	return d, nil
}

func (f *fakeBackend) calls() (results, count, label, detail int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resultsCalls, f.countCalls, f.labelCalls, f.detailCalls
}

var errBoom = &BackendError{Op: "search", URL: "http://backend.test/search", Err: errors.New("connection refused")}

// brokenStore fails every operation.
type brokenStore struct{}

var errStoreDown = errors.New("store down")

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errStoreDown }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errStoreDown
}
func (brokenStore) Ping(context.Context) error { return errStoreDown }
func (brokenStore) Close() error               { return nil }

func nullLogger() *logrus.Logger {
	l, _ := logtest.NewNullLogger()
	return l
}

func nullEntry() *logrus.Entry {
	return logrus.NewEntry(nullLogger())
}

func newMemStore(t *testing.T) *cachestore.Memory {
	t.Helper()
	m := cachestore.NewMemory(0, 0, nullEntry())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testConfig(t *testing.T) Config {
	t.Helper()
	var cfg Config
	cfg.Backend.SearchPost = "http://backend.test/search"
	cfg.Backend.SearchCount = "http://backend.test/count"
	cfg.Backend.Board = "http://backend.test/board"
	cfg.Backend.Magnet = "http://backend.test/magnet"
	cfg.Backend.Token = "tok"
	cfg.Cache.Backend = cacheMemory
	require.NoError(t, cfg.compile())
	return cfg
}

func newTestService(t *testing.T, cfg Config, store cachestore.Store, backend Backend) *Service {
	t.Helper()
	svc := NewServiceWith(cfg, nullLogger(), store, backend)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// fooBackend answers the query "foo" with one verified and one closed release
// on board 7 of tracker "rt".
func fooBackend() *fakeBackend {
	return &fakeBackend{
		items: []ResultItem{
			{Tracker: "rt", BoardID: "7", Status: "√", MagnetKey: "a1"},
			{Tracker: "rt", BoardID: "7", Status: "x", MagnetKey: "b2"},
		},
		total:  2,
		labels: map[string]string{"7/rt": "Кино"},
		details: map[string]DetailRecord{
			"a1": {MagnetLink: "magnet:?xt=urn:btih:ABCDEF0123&dn=foo"},
			"b2": {MagnetLink: ""},
		},
	}
}
