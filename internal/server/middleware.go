package server

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/desertthunder/plexproxy/internal/models"
	"github.com/desertthunder/plexproxy/internal/shared"
)

const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestIDFromContext returns the id set by [RequestID], or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// RequestID reuses an inbound X-Request-ID or assigns a new one, and echoes it back.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = shared.GenerateID()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		})
	}
}

// Logging emits one line per request with status, size and duration.
func Logging(l *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			mw := &metaWriter{ResponseWriter: w}

			next.ServeHTTP(mw, r)

			status := mw.status
			if status == 0 {
				status = http.StatusOK
			}

			kv := []any{
				"id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", logPath(r.URL.Path),
				"status", status,
				"bytes", humanize.Bytes(uint64(mw.size)),
				"duration", time.Since(start).Round(time.Millisecond),
			}
			switch {
			case status >= 500:
				l.Error("request", kv...)
			case r.URL.Path == "/healthz":
				l.Debug("request", kv...)
			default:
				l.Info("request", kv...)
			}
		})
	}
}

// logPath shortens ticket ids in stream paths.
func logPath(path string) string {
	rest, ok := strings.CutPrefix(path, models.StreamPathPrefix)
	if !ok || strings.HasPrefix(rest, "for/") {
		return path
	}
	return models.StreamPathPrefix + shared.ShortID(rest)
}

// CORS allows browser access from the listed origins. "*" allows any origin.
//
// Every OPTIONS request is answered with 204; CORS headers are only added for allowed origins.
func CORS(origins []string) Middleware {
	allowAny := slices.Contains(origins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && (allowAny || slices.Contains(origins, origin))

			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges, "+RequestIDHeader)
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if allowed {
				h := w.Header()
				method := r.Header.Get("Access-Control-Request-Method")
				if method == "" {
					method = "GET, OPTIONS"
				}
				h.Set("Access-Control-Allow-Methods", method)
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				}
				h.Set("Access-Control-Max-Age", "600")
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// Recover turns handler panics into 500 responses.
func Recover(l *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mw := &metaWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				l.Error("panic", "id", RequestIDFromContext(r.Context()), "path", logPath(r.URL.Path), "recovered", rec)
				if mw.status == 0 {
					writeError(mw, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(mw, r)
		})
	}
}

// metaWriter records the status and body size written through it.
type metaWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (m *metaWriter) WriteHeader(code int) {
	if m.status == 0 {
		m.status = code
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *metaWriter) Write(p []byte) (int, error) {
	if m.status == 0 {
		m.status = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(p)
	m.size += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to [http.ResponseController].
func (m *metaWriter) Unwrap() http.ResponseWriter {
	return m.ResponseWriter
}
