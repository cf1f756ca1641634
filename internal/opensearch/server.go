package opensearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

const (
	viewSearch        = "search"
	viewSearchResults = "search_results"
	viewSearchError   = "search_error"
	viewMagnet        = "magnet"
)

// searchView is the idle search form, optionally flagged with an error.
type searchView struct {
	View         string `json:"view"`
	OrderBy      string `json:"order_by"`
	HasError     bool   `json:"has_error,omitempty"`
	StaticPrefix string `json:"static_prefix"`
}

type resultsView struct {
	View         string       `json:"view"`
	StatusCode   int          `json:"status_code"`
	Query        string       `json:"query"`
	Stats        int          `json:"stats"`
	Offset       int          `json:"offset"`
	OrderBy      string       `json:"order_by"`
	Data         []ResultItem `json:"data"`
	Referer      string       `json:"referer"`
	StaticPrefix string       `json:"static_prefix"`
}

type magnetView struct {
	View         string       `json:"view"`
	Data         DetailRecord `json:"data"`
	Cached       ResultItem   `json:"cached"`
	InfoHash     string       `json:"info_hash"`
	TrackerID    string       `json:"tracker_id"`
	MagnetClick  string       `json:"magnet_click"`
	Referer      string       `json:"referer"`
	StaticPrefix string       `json:"static_prefix"`
}

func (s *Service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleSearch)
	mux.HandleFunc("GET /magnet", s.handleMagnet)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	redirect := s.cfg.Server.RedirectURL
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if redirect != "" {
			// An empty pattern means no route matched (404) or the method did not (405).
			if _, pattern := mux.Handler(r); pattern == "" {
				http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
				return
			}
		}
		mux.ServeHTTP(w, r)
	})
}

func (s *Service) idleView(hasError bool, orderBy string) searchView {
	return searchView{
		View:         viewSearch,
		OrderBy:      orderBy,
		HasError:     hasError,
		StaticPrefix: s.cfg.Server.StaticPrefix,
	}
}

func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.idleView(false, DefaultOrderBy))
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.log.WithField("req_id", requestIDFromCtx(r.Context())).Warnf("parse form: %v", err)
		writeJSON(w, http.StatusOK, s.idleView(true, DefaultOrderBy))
		return
	}
	q := ParseQuery(r.PostForm)

	page, err := s.pipeline.Search(r.Context(), q)
	switch {
	case errors.Is(err, ErrEmptyQuery):
		writeJSON(w, http.StatusOK, s.idleView(false, q.OrderBy))
		return
	case err != nil:
		s.log.WithField("req_id", requestIDFromCtx(r.Context())).Errorf("[Search do] %v", err)
		writeJSON(w, http.StatusOK, s.idleView(true, q.OrderBy))
		return
	}

	writeJSON(w, page.StatusCode, resultsView{
		View:         viewSearchResults,
		StatusCode:   page.StatusCode,
		Query:        q.Text,
		Stats:        page.Total,
		Offset:       q.Offset,
		OrderBy:      q.OrderBy,
		Data:         page.Items,
		Referer:      "/search",
		StaticPrefix: s.cfg.Server.StaticPrefix,
	})
}

func (s *Service) handleMagnet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	view, err := s.lookup.LookupByMagnetKey(r.Context(), key, s.cfg.Backend.Token)
	if err != nil {
		s.log.WithField("req_id", requestIDFromCtx(r.Context())).Debugf("magnet lookup: %v", err)
		writeJSON(w, http.StatusOK, s.idleView(true, DefaultOrderBy))
		return
	}
	writeJSON(w, http.StatusOK, magnetView{
		View:         viewMagnet,
		Data:         view.Detail,
		Cached:       view.Cached,
		InfoHash:     view.InfoHash,
		Referer:      "/magnet",
		StaticPrefix: s.cfg.Server.StaticPrefix,
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.cache.Ping(ctx); err != nil {
		s.log.Warnf("readiness: cache ping: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
