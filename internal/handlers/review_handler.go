package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pwannenmacher/ConfReview/internal/middleware"
	"github.com/pwannenmacher/ConfReview/internal/service"
)

// ReviewHandler handles review requests
type ReviewHandler struct {
	reviewService *service.ReviewService
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviewService *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// Submit records the review of a paper
// @Summary Submit review
// @Description Record the review of a paper under review. A paper receives one review.
// @Tags Reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Paper ID"
// @Param request body service.SubmitReviewInput true "Score 0..10 and justification"
// @Success 201 {object} models.Review
// @Failure 400 {object} map[string]string "Invalid input or state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Failure 409 {object} map[string]string "Paper already reviewed"
// @Router /papers/{id}/reviews [post]
func (h *ReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitReviewInput
	if !decodeJSON(w, r, &req) {
		return
	}

	review, err := h.reviewService.Submit(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = respondWithJSON(w, http.StatusCreated, review)
}

// List lists the reviews of a paper
// @Summary List reviews
// @Description List the reviews of a paper with reviewer names
// @Tags Reviews
// @Produce json
// @Security BearerAuth
// @Param id path string true "Paper ID"
// @Success 200 {array} models.ReviewView
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /papers/{id}/reviews [get]
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviewService.ListForPaper(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, reviews)
}
