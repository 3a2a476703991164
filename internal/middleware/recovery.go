package middleware

import (
	"log"
	"net/http"
	"runtime/debug"
)

// Recovery turns handler panics into a 500 instead of tearing down the
// connection. SSE streams in particular must not kill the process.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic on %s %s: %v\n%s", r.Method, r.URL.Path, err, debug.Stack())
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
