package middleware

import (
	"net/http"
)

// ContentTypeJSON defaults the response Content-Type to application/json.
// Handlers that set their own Content-Type are left alone.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}
