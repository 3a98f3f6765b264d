package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type contextKey struct{}

var loggerKey = contextKey{}

// RequestLogger tags every request with a fresh request id, stores the
// derived log entry in the request context and logs the call on the
// way out.
func RequestLogger(base *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			l := base.WithFields(log.Fields{
				"request_id": uuid.NewString(),
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			start := time.Now()
			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), loggerKey, l)))
			l.WithField("duration", time.Since(start).String()).Debug("request handled")
		})
	}
}

// Logger returns the request-scoped log entry placed by RequestLogger,
// or a bare entry when the middleware did not run.
func Logger(ctx context.Context) *log.Entry {
	if l, ok := ctx.Value(loggerKey).(*log.Entry); ok {
		return l
	}
	return log.NewEntry(log.New())
}
