package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/auth"
	"github.com/pwannenmacher/ConfReview/internal/config"
)

// JWTSecret signs every token issued in tests
const JWTSecret = "test-secret-key-for-testing-only"

// JWTConfig returns the token configuration used in tests
func JWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:     JWTSecret,
		Expiration: time.Hour,
		Issuer:     "confreview-test",
	}
}

// AuthHelper provides JWT token generation for tests
type AuthHelper struct {
	Tokens *auth.Service
}

// NewAuthHelper creates a new auth helper
func NewAuthHelper() *AuthHelper {
	return &AuthHelper{Tokens: auth.NewService(JWTConfig())}
}

// GenerateToken issues a token for the identity
func (h *AuthHelper) GenerateToken(t *testing.T, id *access.Identity) string {
	t.Helper()

	token, err := h.Tokens.GenerateToken(id)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

// AddAuthHeader adds an authorization header to the request
func (h *AuthHelper) AddAuthHeader(t *testing.T, req *http.Request, id *access.Identity) {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+h.GenerateToken(t, id))
}

// CreateAuthenticatedRequest creates a request with a JSON body and auth
// header. A nil identity leaves the request anonymous.
func (h *AuthHelper) CreateAuthenticatedRequest(t *testing.T, method, url string, body any, id *access.Identity) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, url, jsonBody(t, body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id != nil {
		h.AddAuthHeader(t, req, id)
	}
	return req
}

func jsonBody(t *testing.T, body any) io.Reader {
	t.Helper()
	if body == nil {
		return nil
	}
	if s, ok := body.(string); ok {
		return bytes.NewBufferString(s)
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to encode request body: %v", err)
	}
	return bytes.NewReader(b)
}

// TestResponse holds response data for assertions
type TestResponse struct {
	*httptest.ResponseRecorder
}

// NewTestResponse creates a new test response recorder
func NewTestResponse() *TestResponse {
	return &TestResponse{
		ResponseRecorder: httptest.NewRecorder(),
	}
}

// AssertStatus asserts the HTTP status code
func (r *TestResponse) AssertStatus(t *testing.T, expected int) {
	t.Helper()

	if r.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, r.Code, r.Body.String())
	}
}

// AssertStatusOK asserts 200 OK
func (r *TestResponse) AssertStatusOK(t *testing.T) {
	r.AssertStatus(t, http.StatusOK)
}

// AssertStatusCreated asserts 201 Created
func (r *TestResponse) AssertStatusCreated(t *testing.T) {
	r.AssertStatus(t, http.StatusCreated)
}

// AssertStatusUnauthorized asserts 401 Unauthorized
func (r *TestResponse) AssertStatusUnauthorized(t *testing.T) {
	r.AssertStatus(t, http.StatusUnauthorized)
}

// AssertStatusForbidden asserts 403 Forbidden
func (r *TestResponse) AssertStatusForbidden(t *testing.T) {
	r.AssertStatus(t, http.StatusForbidden)
}

// AssertStatusNotFound asserts 404 Not Found
func (r *TestResponse) AssertStatusNotFound(t *testing.T) {
	r.AssertStatus(t, http.StatusNotFound)
}

// AssertStatusBadRequest asserts 400 Bad Request
func (r *TestResponse) AssertStatusBadRequest(t *testing.T) {
	r.AssertStatus(t, http.StatusBadRequest)
}

// DecodeJSON decodes the response body into v
func (r *TestResponse) DecodeJSON(t *testing.T, v any) {
	t.Helper()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", r.Body.String(), err)
	}
}
