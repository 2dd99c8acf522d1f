package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"medication-reminder/internal/platform/logger"
)

// RequestLog loguea una línea por request. Usa el id de chimw.RequestID.
func RequestLog(log logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := map[string]any{
				"request_id":  chimw.GetReqID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if c, ok := GetClaims(r.Context()); ok {
				fields["user_id"] = c.UserID
			}
			switch {
			case ww.Status() >= 500:
				log.Error("http request", fields)
			case r.URL.Path == "/health":
				log.Debug("http request", fields)
			default:
				log.Info("http request", fields)
			}
		})
	}
}
