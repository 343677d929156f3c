package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/middleware"
	"github.com/pwannenmacher/ConfReview/internal/models"
	"github.com/pwannenmacher/ConfReview/internal/service"
)

// PaperHandler handles paper requests
type PaperHandler struct {
	paperService *service.PaperService
}

// NewPaperHandler creates a new paper handler
func NewPaperHandler(paperService *service.PaperService) *PaperHandler {
	return &PaperHandler{paperService: paperService}
}

// SubmitPaperRequest names the conference a paper is submitted to
type SubmitPaperRequest struct {
	ConferenceID string `json:"conference_id"`
}

// AssignReviewerRequest names the reviewer to assign
type AssignReviewerRequest struct {
	ReviewerID string `json:"reviewer_id"`
}

// FinalSubmitRequest carries the camera-ready content
type FinalSubmitRequest struct {
	Content string `json:"content"`
}

// Create creates a paper authored by the caller
// @Summary Create paper
// @Description Create a paper authored by the caller
// @Tags Papers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreatePaperInput true "Paper data"
// @Success 201 {object} models.Paper
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /papers [post]
func (h *PaperHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreatePaperInput
	if !decodeJSON(w, r, &req) {
		return
	}

	paper, err := h.paperService.Create(r.Context(), middleware.IdentityFromContext(r.Context()), req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = respondWithJSON(w, http.StatusCreated, paper)
}

// ListMine lists the caller's papers
// @Summary List own papers
// @Description List papers the caller authors or coauthors
// @Tags Papers
// @Produce json
// @Security BearerAuth
// @Param title query string false "Title substring"
// @Param abstract query string false "Abstract substring"
// @Success 200 {array} models.Paper
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /papers/mine [get]
func (h *PaperHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	papers, err := h.paperService.ListMine(r.Context(), middleware.IdentityFromContext(r.Context()), q.Get("title"), q.Get("abstract"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, papers)
}

// SearchPublic searches accepted papers
// @Summary Search accepted papers
// @Description Public search over accepted papers without their content
// @Tags Papers
// @Produce json
// @Param title query string false "Title substring"
// @Param abstract query string false "Abstract substring"
// @Param authors query []string false "Author IDs" collectionFormat(csv)
// @Success 200 {array} models.PaperSummary
// @Router /papers/search [get]
func (h *PaperHandler) SearchPublic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	papers, err := h.paperService.SearchPublic(r.Context(), middleware.IdentityFromContext(r.Context()), service.PublicSearch{
		Title:    q.Get("title"),
		Abstract: q.Get("abstract"),
		Authors:  splitList(q["authors"]),
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, papers)
}

// SearchForCommittee searches accepted papers including their content
// @Summary Committee paper search
// @Description Search accepted papers including their content
// @Tags Papers
// @Produce json
// @Security BearerAuth
// @Param title query string false "Title substring"
// @Param abstract query string false "Abstract substring"
// @Param content query string false "Content substring"
// @Success 200 {array} models.CommitteePaper
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /papers/committee [get]
func (h *PaperHandler) SearchForCommittee(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	papers, err := h.paperService.SearchForCommittee(r.Context(), middleware.IdentityFromContext(r.Context()), service.CommitteeSearch{
		Title:    q.Get("title"),
		Abstract: q.Get("abstract"),
		Content:  q.Get("content"),
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, papers)
}

// Get returns one paper
// @Summary Get paper
// @Description Get a paper visible to the caller
// @Tags Papers
// @Produce json
// @Param id path string true "Paper ID"
// @Success 200 {object} models.Paper
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /papers/{id} [get]
func (h *PaperHandler) Get(w http.ResponseWriter, r *http.Request) {
	paper, err := h.paperService.Get(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, paper)
}

// Patch edits a paper that is not under review
// @Summary Update paper
// @Description Edit a paper that is not under review
// @Tags Papers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Paper ID"
// @Param request body service.PatchPaperInput true "Fields to change"
// @Success 200 {object} models.Paper
// @Failure 400 {object} map[string]string "Invalid input or state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /papers/{id} [patch]
func (h *PaperHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var req service.PatchPaperInput
	if !decodeJSON(w, r, &req) {
		return
	}

	paper, err := h.paperService.Patch(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, paper)
}

// Withdraw deletes a paper and detaches it from its conference
// @Summary Withdraw paper
// @Description Delete a paper and detach it from its conference
// @Tags Papers
// @Security BearerAuth
// @Param id path string true "Paper ID"
// @Success 204 "Withdrawn"
// @Failure 400 {object} map[string]string "Invalid state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /papers/{id} [delete]
func (h *PaperHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	if err := h.paperService.Withdraw(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddCoauthors adds coauthors to a paper
// @Summary Add coauthors
// @Description Add coauthors; the batch is rejected as a whole if any id is present, repeated or unknown
// @Tags Papers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Paper ID"
// @Param request body UserIDsRequest true "User IDs"
// @Success 200 {object} models.Paper
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /papers/{id}/coauthors [post]
func (h *PaperHandler) AddCoauthors(w http.ResponseWriter, r *http.Request) {
	var req UserIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	paper, err := h.paperService.AddCoauthors(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req.UserIDs)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, paper)
}

// Submit submits a paper to a conference
// @Summary Submit paper
// @Description Submit a CREATED paper with content to a conference
// @Tags Papers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Paper ID"
// @Param request body SubmitPaperRequest true "Target conference"
// @Success 200 {object} models.Paper
// @Failure 400 {object} map[string]string "Invalid input or state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /papers/{id}/submit [post]
func (h *PaperHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitPaperRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	paper, err := h.paperService.Submit(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req.ConferenceID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, paper)
}

// AssignReviewer assigns a committee member to review the paper
// @Summary Assign reviewer
// @Description Assign a committee member to review the paper, at most two per paper
// @Tags Papers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Paper ID"
// @Param request body AssignReviewerRequest true "Reviewer"
// @Success 200 {object} models.Paper
// @Failure 400 {object} map[string]string "Invalid input or state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Failure 409 {object} map[string]string "Already assigned"
// @Router /papers/{id}/reviewers [post]
func (h *PaperHandler) AssignReviewer(w http.ResponseWriter, r *http.Request) {
	var req AssignReviewerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	paper, err := h.paperService.AssignReviewer(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req.ReviewerID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, paper)
}

// FinalSubmit stores the camera-ready version of an approved paper
// @Summary Final submission
// @Description Store the camera-ready version of an approved paper. Without content the submitted version is kept.
// @Tags Papers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Paper ID"
// @Param request body FinalSubmitRequest false "Camera-ready content"
// @Success 200 {object} models.Paper
// @Failure 400 {object} map[string]string "Invalid input or state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /papers/{id}/final-submit [post]
func (h *PaperHandler) FinalSubmit(w http.ResponseWriter, r *http.Request) {
	var req FinalSubmitRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	paper, err := h.paperService.FinalSubmit(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, paper)
}

type decisionFunc func(context.Context, *access.Identity, string) (*models.Paper, error)

// Decide returns a handler for one chair decision on a paper
// @Summary Decide on paper
// @Description Approve or reject a submitted paper, or accept a final submission
// @Tags Papers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Paper ID"
// @Success 200 {object} models.Paper
// @Failure 400 {object} map[string]string "Invalid state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /papers/{id}/approve [post]
// @Router /papers/{id}/reject [post]
// @Router /papers/{id}/accept [post]
func (h *PaperHandler) Decide(decide decisionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paper, err := decide(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}

		_ = JSONResponse(w, paper)
	}
}

// splitList accepts both repeated and comma separated query values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
