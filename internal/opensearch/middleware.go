package opensearch

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKey string

const requestIDKey ctxKey = "req_id"

const requestIDHeader = "X-Request-ID"

// withRequestID reuses the caller's X-Request-ID or assigns a new one and echoes
// it on the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// metaWriter records the status and body size written by a handler.
type metaWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (m *metaWriter) WriteHeader(code int) {
	if m.status == 0 {
		m.status = code
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *metaWriter) Write(b []byte) (int, error) {
	if m.status == 0 {
		m.status = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(b)
	m.size += n
	return n, err
}

func withLogging(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			mw := &metaWriter{ResponseWriter: w}
			next.ServeHTTP(mw, r)
			if mw.status == 0 {
				mw.status = http.StatusOK
			}
			log.WithFields(logrus.Fields{
				"req_id":      requestIDFromCtx(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      mw.status,
				"size":        mw.size,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request")
		})
	}
}

// withRecover turns a handler panic into the generic error view.
func withRecover(log *logrus.Entry, staticPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.WithFields(logrus.Fields{
					"req_id": requestIDFromCtx(r.Context()),
					"panic":  rec,
				}).Errorf("handler panic\n%s", debug.Stack())
				writeJSON(w, http.StatusInternalServerError, searchView{
					View:         viewSearchError,
					OrderBy:      DefaultOrderBy,
					StaticPrefix: staticPrefix,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
