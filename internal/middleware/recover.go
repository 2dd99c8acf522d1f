package middleware

import (
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"

	"medication-reminder/internal/platform/logger"
)

// Recover reemplaza a chimw.Recoverer para que el panic quede en el logger
// estructurado con el request id.
func Recover(log logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.NewNop()
	}
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
				log.Error("panic recovered", map[string]any{
					"request_id": chimw.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"panic":      rec,
					"stack":      string(debug.Stack()),
				})
				if r.Header.Get("Connection") != "Upgrade" {
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
