package opensearch

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchEnrichesItems(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	be := fooBackend()
	svc := newTestService(t, testConfig(t), store, be)

	page, err := svc.Search(ctx, NewQuery("foo", 0, ""))
	require.NoError(t, err)

	want := []ResultItem{
		{Tracker: "rt", BoardID: "7", Status: "✅ (проверено)", MagnetKey: "a1", Query: "foo", BoardLabel: "Кино"},
		{Tracker: "rt", BoardID: "7", Status: "❌️ (закрыто)", MagnetKey: "b2", Query: "foo", BoardLabel: "Кино"},
	}
	if diff := cmp.Diff(want, page.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, 2, page.Total)

	results, count, labels, _ := be.calls()
	assert.Equal(t, 1, results)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, labels, "second item must hit the label cache")

	raw, ok, err := store.Get(ctx, "open_search_ma1")
	require.NoError(t, err)
	require.True(t, ok)
	var cached ResultItem
	require.NoError(t, json.Unmarshal(raw, &cached))
	if diff := cmp.Diff(want[0], cached); diff != "" {
		t.Errorf("cached item mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchForwardsQuery(t *testing.T) {
	be := &fakeBackend{}
	svc := newTestService(t, testConfig(t), newMemStore(t), be)

	_, err := svc.Search(context.Background(), NewQuery("foo", -5, "s"))
	require.NoError(t, err)
	assert.Equal(t, Query{Text: "foo", Offset: 0, OrderBy: "s"}, be.lastQuery)
}

func TestSearchEmptyPage(t *testing.T) {
	be := &fakeBackend{total: 0}
	svc := newTestService(t, testConfig(t), newMemStore(t), be)

	page, err := svc.Search(context.Background(), NewQuery("nothing", 0, ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, page.StatusCode)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestSearchEmptyQuery(t *testing.T) {
	be := fooBackend()
	svc := newTestService(t, testConfig(t), newMemStore(t), be)

	_, err := svc.Search(context.Background(), NewQuery("   ", 0, ""))
	assert.ErrorIs(t, err, ErrEmptyQuery)

	results, count, _, _ := be.calls()
	assert.Zero(t, results+count)
}

func TestSearchBackendFailure(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
	}{
		{"results fail", &fakeBackend{resultsErr: errBoom}},
		{"count fails", &fakeBackend{countErr: errBoom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := tt.backend
			be.items = fooBackend().items
			be.labels = fooBackend().labels
			store := newMemStore(t)
			svc := newTestService(t, testConfig(t), store, be)

			_, err := svc.Search(context.Background(), NewQuery("foo", 0, ""))
			assert.ErrorIs(t, err, ErrBackendUnavailable)

			_, _, labels, _ := be.calls()
			assert.Zero(t, labels, "nothing is enriched after a failed fetch")
			assert.Zero(t, store.Len())
			assert.Equal(t, uint64(1), svc.stats.Snapshot().SearchFailures)
		})
	}
}

func TestEnrichUnknownStatusAndMissingLabel(t *testing.T) {
	be := &fakeBackend{labelErr: errBoom}
	store := newMemStore(t)
	svc := newTestService(t, testConfig(t), store, be)

	page := svc.pipeline.Enrich(context.Background(), NewQuery("bar", 0, ""), ResultPage{
		Items: []ResultItem{{Tracker: "nn", BoardID: "1", Status: "??", MagnetKey: "m1"}},
		Total: 1,
	})

	require.Len(t, page.Items, 1)
	assert.Equal(t, "", page.Items[0].Status)
	assert.Equal(t, UnknownBoardLabel, page.Items[0].BoardLabel)
	assert.Equal(t, "bar", page.Items[0].Query)
	// the item itself is cached, the placeholder label is not
	assert.Equal(t, 1, store.Len())
}

func TestEnrichSkipsItemsWithoutMagnetKey(t *testing.T) {
	be := &fakeBackend{labels: map[string]string{"1/nn": "Софт"}}
	store := newMemStore(t)
	svc := newTestService(t, testConfig(t), store, be)

	page := svc.pipeline.Enrich(context.Background(), NewQuery("bar", 0, ""), ResultPage{
		Items: []ResultItem{{Tracker: "nn", BoardID: "1", Status: "√"}},
	})
	assert.Equal(t, "Софт", page.Items[0].BoardLabel)
	// only the label entry
	assert.Equal(t, 1, store.Len())
}

func TestEnrichSurvivesBrokenStore(t *testing.T) {
	svc := newTestService(t, testConfig(t), brokenStore{}, fooBackend())

	page, err := svc.Search(context.Background(), NewQuery("foo", 0, ""))
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Кино", page.Items[0].BoardLabel)
	assert.Equal(t, uint64(2), svc.stats.Snapshot().ItemWriteErrors)
}
