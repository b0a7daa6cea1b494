package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/andrebq/sambro/internal/logutil"
)

type (
	statusWriter struct {
		http.ResponseWriter
		status int
	}
)

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// LogRequests gives every request a logger tagged with its method and path
// and writes one access line once the handler returns.
// Cookies and bodies are never logged.
func LogRequests(ctx context.Context, next http.Handler) http.Handler {
	base := logutil.GetOrDefault(ctx)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := base.With().Str("http.method", r.Method).Str("http.path", r.URL.Path).Logger()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(logutil.WithLogger(r.Context(), log)))
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		log.Info().Int("http.status", sw.status).Dur("elapsed", time.Since(start)).Msg("Request completed")
	})
}
