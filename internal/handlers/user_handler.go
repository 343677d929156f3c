package handlers

import (
	"net/http"

	"github.com/pwannenmacher/ConfReview/internal/middleware"
	"github.com/pwannenmacher/ConfReview/internal/service"
)

// UserHandler handles account requests of the signed-in user
type UserHandler struct {
	authService *service.AuthService
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService *service.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// GetProfile returns the current user's profile
// @Summary Get user profile
// @Description Get the authenticated user's profile
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{} "User profile with roles"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Visitors have no profile"
// @Router /users/me [get]
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.authService.Profile(r.Context(), middleware.IdentityFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, map[string]interface{}{
		"id":           user.ID,
		"username":     user.Username,
		"first_name":   user.FirstName,
		"last_name":    user.LastName,
		"display_name": user.DisplayName(),
		"roles":        user.Roles,
		"created_at":   user.CreatedAt,
	})
}
