package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/pwannenmacher/ConfReview/internal/config"
)

// CORSMiddleware handles CORS
type CORSMiddleware struct {
	config *config.CORSConfig
}

// NewCORSMiddleware creates a new CORS middleware
func NewCORSMiddleware(cfg *config.CORSConfig) *CORSMiddleware {
	return &CORSMiddleware{
		config: cfg,
	}
}

// Handler handles CORS headers
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigin := ""
		for _, allowed := range m.config.AllowedOrigins {
			if allowed == "*" || allowed == origin {
				allowedOrigin = allowed
				break
			}
		}

		if origin == "" || allowedOrigin == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Credentials may not be combined with a wildcard origin
		if allowedOrigin == "*" && m.config.AllowCredentials {
			allowedOrigin = origin
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowedOrigin)
		h.Add("Vary", "Origin")
		if m.config.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if len(m.config.ExposedHeaders) > 0 {
			h.Set("Access-Control-Expose-Headers", strings.Join(m.config.ExposedHeaders, ", "))
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", strings.Join(m.config.AllowedMethods, ", "))
			h.Set("Access-Control-Allow-Headers", strings.Join(m.config.AllowedHeaders, ", "))
			if m.config.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(m.config.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
