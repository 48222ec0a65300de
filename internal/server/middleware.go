package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPIKey accepts the key in X-API-Key or as an Authorization bearer
// token. An empty key disables the check.
func RequireAPIKey(key string, logger *zap.Logger, next http.Handler) http.Handler {
	if key == "" {
		logger.Warn("no API key configured, API is open")
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := providedKey(r)
		if provided == "" {
			logger.Warn("API key missing", zap.String("path", r.URL.Path))
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":   "API key required",
				"message": "Please provide API key in X-API-Key header or Authorization header",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			logger.Warn("invalid API key", zap.String("path", r.URL.Path))
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func providedKey(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v
	}
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
}
