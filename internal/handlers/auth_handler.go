package handlers

import (
	"net/http"

	"github.com/pwannenmacher/ConfReview/internal/middleware"
	"github.com/pwannenmacher/ConfReview/internal/service"
)

// AuthHandler handles signup, login and logout requests
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup registers a user
// @Summary Register user
// @Description Create an account holding one of the roles author, pc chair or pc member
// @Tags Users
// @Accept json
// @Produce json
// @Param request body service.RegisterInput true "Signup data"
// @Success 201 {object} models.User
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 409 {object} map[string]string "Username taken"
// @Router /users/signup [post]
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = respondWithJSON(w, http.StatusCreated, user)
}

// Login exchanges credentials for a token
// @Summary Login
// @Description Authenticate with username and password and receive a JWT
// @Tags Users
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /users/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.authService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, result)
}

// ConnectAsVisitor issues a token for an anonymous visitor
// @Summary Connect as visitor
// @Description Issue a token for an anonymous visitor identity
// @Tags Users
// @Produce json
// @Success 200 {object} service.AuthResult
// @Router /users/connect-as-visitor [post]
func (h *AuthHandler) ConnectAsVisitor(w http.ResponseWriter, r *http.Request) {
	result, err := h.authService.ConnectAsVisitor(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, result)
}

// Logout revokes every token issued to the caller so far
// @Summary Logout
// @Description Revoke every token issued to the caller so far
// @Tags Users
// @Security BearerAuth
// @Success 204 "Logged out"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /users/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(r.Context(), middleware.IdentityFromContext(r.Context())); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
