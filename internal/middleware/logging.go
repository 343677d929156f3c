package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code and response body
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.written {
		rw.statusCode = statusCode
		rw.written = true
		rw.ResponseWriter.WriteHeader(statusCode)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.body != nil {
		rw.body.Write(b)
	}
	return rw.ResponseWriter.Write(b)
}

// credentialPaths never have their bodies logged
var credentialPaths = []string{"/users/signup", "/users/login", "/users/connect-as-visitor"}

func carriesCredentials(path string) bool {
	for _, p := range credentialPaths {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// LoggingMiddleware logs all HTTP requests with level-based detail
//
// Log levels:
// - INFO: Every request with remote IP, method and path
// - DEBUG: Additionally query parameters and bodies, except on credential endpoints
// - WARN: Failed requests (status 4xx)
// - ERROR: Server errors (status 5xx)
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		debug := slog.Default().Enabled(r.Context(), slog.LevelDebug) && !carriesCredentials(r.URL.Path)

		var requestBody []byte
		if debug && r.Body != nil {
			requestBody, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		if debug {
			wrapped.body = &bytes.Buffer{}
		}

		attrs := []any{
			"remote_ip", clientIP(r),
			"method", r.Method,
			"path", r.URL.Path,
		}
		if debug {
			debugAttrs := append(attrs, "user_agent", r.UserAgent())
			if len(r.URL.Query()) > 0 {
				debugAttrs = append(debugAttrs, "query_params", r.URL.Query())
			}
			if len(requestBody) > 0 {
				debugAttrs = append(debugAttrs, "request_body", string(requestBody))
			}
			slog.Debug("Incoming request", debugAttrs...)
		} else {
			slog.Info("Incoming request", attrs...)
		}

		next.ServeHTTP(wrapped, r)

		var logLevel slog.Level
		var logMessage string
		switch {
		case wrapped.statusCode >= 500:
			logLevel = slog.LevelError
			logMessage = "Request failed with error"
		case wrapped.statusCode >= 400:
			logLevel = slog.LevelWarn
			logMessage = "Request failed"
		default:
			logLevel = slog.LevelInfo
			logMessage = "Request completed"
		}

		attrs = append(attrs,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if id := IdentityFromContext(r.Context()); id != nil {
			attrs = append(attrs, "user_id", id.UserID)
		}
		if debug && wrapped.body.Len() > 0 {
			attrs = append(attrs, "response_body", wrapped.body.String())
		}

		slog.Log(r.Context(), logLevel, logMessage, attrs...)
	})
}
