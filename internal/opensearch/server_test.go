package opensearch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandleIndex(t *testing.T) {
	svc := newTestService(t, testConfig(t), newMemStore(t), fooBackend())

	rec, body := do(t, svc.Handler(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "search", body["view"])
	assert.Equal(t, "d", body["order_by"])
	assert.Equal(t, "/static", body["static_prefix"])
	assert.NotContains(t, body, "has_error")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	svc := newTestService(t, testConfig(t), newMemStore(t), fooBackend())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec, _ := do(t, svc.Handler(), req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestHandleSearch(t *testing.T) {
	be := fooBackend()
	svc := newTestService(t, testConfig(t), newMemStore(t), be)

	rec, body := do(t, svc.Handler(), postForm(url.Values{"query": {"foo"}, "offset": {"0"}}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "search_results", body["view"])
	assert.EqualValues(t, 200, body["status_code"])
	assert.Equal(t, "foo", body["query"])
	assert.EqualValues(t, 2, body["stats"])
	assert.EqualValues(t, 0, body["offset"])
	assert.Equal(t, "d", body["order_by"])
	assert.Equal(t, "/search", body["referer"])

	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	assert.Equal(t, "✅ (проверено)", first["status"])
	assert.Equal(t, "Кино", first["board_label"])
	assert.Equal(t, "foo", first["query"])
}

func TestHandleSearchEmptyQuery(t *testing.T) {
	be := fooBackend()
	svc := newTestService(t, testConfig(t), newMemStore(t), be)

	rec, body := do(t, svc.Handler(), postForm(url.Values{"order_by": {"s"}}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "search", body["view"])
	assert.Equal(t, "s", body["order_by"])

	results, count, _, _ := be.calls()
	assert.Zero(t, results+count)
}

func TestHandleSearchBackendDown(t *testing.T) {
	be := fooBackend()
	be.countErr = errBoom
	svc := newTestService(t, testConfig(t), newMemStore(t), be)

	rec, body := do(t, svc.Handler(), postForm(url.Values{"query": {"foo"}, "order_by": {"s"}}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "search", body["view"])
	assert.Equal(t, true, body["has_error"])
	assert.Equal(t, "s", body["order_by"])
}

func TestHandleSearchNoResults(t *testing.T) {
	svc := newTestService(t, testConfig(t), newMemStore(t), &fakeBackend{})

	rec, body := do(t, svc.Handler(), postForm(url.Values{"query": {"zzz"}}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "search_results", body["view"])
	assert.EqualValues(t, 404, body["status_code"])
	assert.Equal(t, []any{}, body["data"])
}

func TestHandleMagnet(t *testing.T) {
	svc := newTestService(t, testConfig(t), newMemStore(t), fooBackend())
	h := svc.Handler()
	do(t, h, postForm(url.Values{"query": {"foo"}}))

	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/magnet?key=a1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "magnet", body["view"])
	assert.Equal(t, "ABCDEF0123", body["info_hash"])
	assert.Equal(t, "", body["tracker_id"])
	assert.Equal(t, "", body["magnet_click"])
	assert.Equal(t, "/magnet", body["referer"])

	cached := body["cached"].(map[string]any)
	assert.Equal(t, "foo", cached["query"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "magnet:?xt=urn:btih:ABCDEF0123&dn=foo", data["magnet_link"])
}

func TestHandleMagnetNotFound(t *testing.T) {
	svc := newTestService(t, testConfig(t), newMemStore(t), fooBackend())
	h := svc.Handler()
	do(t, h, postForm(url.Values{"query": {"foo"}}))

	for _, target := range []string{"/magnet?key=missing", "/magnet?key=b2", "/magnet"} {
		rec, body := do(t, h, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "search", body["view"], target)
		assert.Equal(t, true, body["has_error"], target)
		assert.Equal(t, "d", body["order_by"], target)
	}
}

func TestUnknownRoutes(t *testing.T) {
	t.Run("redirect configured", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Server.RedirectURL = "https://search.example.org"
		svc := newTestService(t, cfg, newMemStore(t), fooBackend())

		for _, req := range []*http.Request{
			httptest.NewRequest(http.MethodGet, "/nope", nil),
			httptest.NewRequest(http.MethodPut, "/", nil),
			httptest.NewRequest(http.MethodPost, "/magnet", nil),
		} {
			rec, _ := do(t, svc.Handler(), req)
			assert.Equal(t, http.StatusTemporaryRedirect, rec.Code, req.Method+" "+req.URL.Path)
			assert.Equal(t, "https://search.example.org", rec.Header().Get("Location"))
		}
	})

	t.Run("no redirect", func(t *testing.T) {
		svc := newTestService(t, testConfig(t), newMemStore(t), fooBackend())

		rec, _ := do(t, svc.Handler(), httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec, _ = do(t, svc.Handler(), httptest.NewRequest(http.MethodPut, "/", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestPanicRendersErrorView(t *testing.T) {
	be := fooBackend()
	be.labelPanic = true
	svc := newTestService(t, testConfig(t), newMemStore(t), be)

	rec, body := do(t, svc.Handler(), postForm(url.Values{"query": {"foo"}}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "search_error", body["view"])
	assert.Equal(t, "d", body["order_by"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthEndpoints(t *testing.T) {
	svc := newTestService(t, testConfig(t), newMemStore(t), fooBackend())
	rec, body := do(t, svc.Handler(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = do(t, svc.Handler(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestService(t, testConfig(t), brokenStore{}, fooBackend())
	rec, body = do(t, down.Handler(), httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["status"])
}
