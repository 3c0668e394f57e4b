package web

import (
	"net/http"

	"github.com/SejinDoesArt/twittertruefriends/internal/logging"
)

// accessLog writes one JSON line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.Info("request", map[string]any{
			"method": r.Method,
			"url":    r.URL.String(),
			"remote": r.RemoteAddr,
		})
		next.ServeHTTP(w, r)
	})
}

// noStore forbids any client-side caching of responses; sessions and
// analysis results are sensitive.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}
