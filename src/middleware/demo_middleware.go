package middleware

import (
	"net/http"
)

// DemoModeMiddleware makes the API read-only for everyone but super admins.
// It must run after JWTAuthMiddleware to see the admin flag.
func DemoModeMiddleware(isDemo bool) func(http.Handler) http.Handler {
	allowedPosts := map[string]bool{
		"/api/login":         true,
		"/api/register":      true,
		"/api/council/query": true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isDemo || r.Method == http.MethodGet || IsSuperAdmin(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method == http.MethodPost && allowedPosts[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			WriteError(w, http.StatusForbidden, "Demo mode: only GET requests are allowed")
		})
	}
}
