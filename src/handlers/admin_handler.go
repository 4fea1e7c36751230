package handlers

import (
	"net/http"

	"fincil-server/src/logger"
	"fincil-server/src/middleware"
)

// ClearCache drops every cached profile snapshot.
func ClearCache(cache ProfileCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cache != nil {
			cache.ClearAll()
		}
		log := logger.FromContext(r.Context())
		log.Info().
			Str("admin", middleware.UsernameFromContext(r.Context())).
			Msg("Cleared profile cache")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "cache cleared"})
	}
}

// Health reports whether the store answers a ping.
func Health(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("Health check failed")
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
