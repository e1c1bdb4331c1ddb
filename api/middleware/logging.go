package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront/pkg/logger"
)

type requestObserver interface {
	Observe(method, route string, status int, took time.Duration)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// Logging records one entry per request once the handler returns. Server errors log at
// error level, client errors at warn, probes at debug. obs may be nil.
func Logging(logg *logger.Logger, obs requestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			took := time.Since(start)
			route := matchedRoute(r)
			if obs != nil {
				obs.Observe(r.Method, route, status, took)
			}
			if logg == nil {
				return
			}

			ctx := logg.WithFields(r.Context(), map[string]any{
				"method":        r.Method,
				"path":          r.URL.Path,
				"route_pattern": route,
				"status":        status,
				"bytes":         rec.bytes,
				"duration_ms":   took.Milliseconds(),
			})
			logCompleted(ctx, logg, r.URL.Path, status)
		})
	}
}

func logCompleted(ctx context.Context, logg *logger.Logger, path string, status int) {
	switch {
	case status >= http.StatusInternalServerError:
		logg.Error(ctx, "request.complete", nil)
	case status >= http.StatusBadRequest:
		logg.Warn(ctx, "request.complete")
	case strings.HasPrefix(path, "/health/"):
		logg.Debug(ctx, "request.complete")
	default:
		logg.Info(ctx, "request.complete")
	}
}

// matchedRoute reads the pattern after routing finished; before that chi has not filled it.
func matchedRoute(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
