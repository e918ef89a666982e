package api

import (
	"net/http"

	"github.com/timokroeger/winmsg-executor/internal/config"
)

// Auth returns an API-key authentication middleware. Disabled auth lets
// everything through.
func Auth(cfg *config.AuthConfig) func(next http.Handler) http.Handler {
	keys := make(map[string]bool, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys[k] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				http.Error(w, "X-API-Key header required", http.StatusUnauthorized)
				return
			}
			if !keys[apiKey] {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
