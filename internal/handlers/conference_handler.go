package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/middleware"
	"github.com/pwannenmacher/ConfReview/internal/models"
	"github.com/pwannenmacher/ConfReview/internal/service"
)

// ConferenceHandler handles conference requests
type ConferenceHandler struct {
	conferenceService *service.ConferenceService
}

// NewConferenceHandler creates a new conference handler
func NewConferenceHandler(conferenceService *service.ConferenceService) *ConferenceHandler {
	return &ConferenceHandler{conferenceService: conferenceService}
}

// UserIDsRequest carries a batch of user ids to add to a roster
type UserIDsRequest struct {
	UserIDs []string `json:"user_ids"`
}

// FinalizationResponse is the body of end and resume-finalization. On a
// partial failure it carries the error next to the report.
type FinalizationResponse struct {
	*service.FinalizationReport
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// Create creates a conference chaired by the caller
// @Summary Create conference
// @Description Create a conference in state CREATED chaired by the caller
// @Tags Conferences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreateConferenceInput true "Conference data"
// @Success 201 {object} models.Conference
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 409 {object} map[string]string "Name taken"
// @Router /conferences [post]
func (h *ConferenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateConferenceInput
	if !decodeJSON(w, r, &req) {
		return
	}

	conf, err := h.conferenceService.Create(r.Context(), middleware.IdentityFromContext(r.Context()), req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = respondWithJSON(w, http.StatusCreated, conf)
}

// List lists the conferences the caller chairs
// @Summary List conferences
// @Description List the conferences the caller chairs
// @Tags Conferences
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Conference
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /conferences [get]
func (h *ConferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	confs, err := h.conferenceService.ListForChair(r.Context(), middleware.IdentityFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, confs)
}

// Search filters the caller's conferences by name and description
// @Summary Search conferences
// @Description Filter the caller's conferences by case-insensitive substrings
// @Tags Conferences
// @Produce json
// @Security BearerAuth
// @Param name query string false "Name substring"
// @Param description query string false "Description substring"
// @Success 200 {array} models.Conference
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Router /conferences/search [get]
func (h *ConferenceHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	confs, err := h.conferenceService.Search(r.Context(), middleware.IdentityFromContext(r.Context()), q.Get("name"), q.Get("description"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, confs)
}

// Get returns one conference
// @Summary Get conference
// @Description Get a conference the caller chairs or reviews for
// @Tags Conferences
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conference ID"
// @Success 200 {object} models.Conference
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /conferences/{id} [get]
func (h *ConferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	conf, err := h.conferenceService.Get(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, conf)
}

// Update changes name or description
// @Summary Update conference
// @Description Change name or description in any state
// @Tags Conferences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conference ID"
// @Param request body service.UpdateConferenceInput true "Fields to change"
// @Success 200 {object} models.Conference
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Failure 409 {object} map[string]string "Name taken"
// @Router /conferences/{id} [patch]
func (h *ConferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateConferenceInput
	if !decodeJSON(w, r, &req) {
		return
	}

	conf, err := h.conferenceService.Update(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, conf)
}

// Delete removes a conference that has not opened yet
// @Summary Delete conference
// @Description Delete a CREATED conference without submitted papers
// @Tags Conferences
// @Security BearerAuth
// @Param id path string true "Conference ID"
// @Success 204 "Deleted"
// @Failure 400 {object} map[string]string "Invalid state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /conferences/{id} [delete]
func (h *ConferenceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.conferenceService.Delete(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddChairs adds chairs to the conference
// @Summary Add chairs
// @Description Add chairs; the batch is rejected as a whole if any id is present, repeated or unknown
// @Tags Conferences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conference ID"
// @Param request body UserIDsRequest true "User IDs"
// @Success 200 {object} models.Conference
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /conferences/{id}/chairs [post]
func (h *ConferenceHandler) AddChairs(w http.ResponseWriter, r *http.Request) {
	h.addToRoster(w, r, h.conferenceService.AddChairs)
}

// AddMembers adds committee members to the conference
// @Summary Add committee members
// @Description Add committee members with the same batch rules as chairs
// @Tags Conferences
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conference ID"
// @Param request body UserIDsRequest true "User IDs"
// @Success 200 {object} models.Conference
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Router /conferences/{id}/members [post]
func (h *ConferenceHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	h.addToRoster(w, r, h.conferenceService.AddMembers)
}

type rosterFunc func(context.Context, *access.Identity, string, []string) (*models.Conference, error)

func (h *ConferenceHandler) addToRoster(w http.ResponseWriter, r *http.Request, add rosterFunc) {
	var req UserIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conf, err := add(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"), req.UserIDs)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	_ = JSONResponse(w, conf)
}

type transitionFunc func(context.Context, *access.Identity, string) (*models.Conference, error)

// transitions maps the path suffix of each lifecycle step to its operation
func (h *ConferenceHandler) transitions() map[string]transitionFunc {
	return map[string]transitionFunc{
		"start-submission":       h.conferenceService.StartSubmission,
		"start-assignment":       h.conferenceService.StartAssignment,
		"start-review":           h.conferenceService.StartReview,
		"decide":                 h.conferenceService.StartDecision,
		"start-final-submission": h.conferenceService.StartFinalSubmission,
	}
}

// Transition returns a handler that advances the conference one step
// @Summary Advance conference
// @Description Move the conference to the next lifecycle state
// @Tags Conferences
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conference ID"
// @Success 200 {object} models.Conference
// @Failure 400 {object} map[string]string "Invalid state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Failure 409 {object} map[string]string "Concurrent modification"
// @Router /conferences/{id}/start-submission [post]
// @Router /conferences/{id}/start-assignment [post]
// @Router /conferences/{id}/start-review [post]
// @Router /conferences/{id}/decide [post]
// @Router /conferences/{id}/start-final-submission [post]
func (h *ConferenceHandler) Transition(step transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conf, err := step(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}

		_ = JSONResponse(w, conf)
	}
}

// End closes the conference and resolves its approved papers
// @Summary End conference
// @Description Move the conference to FINAL and resolve its approved papers. A partial failure returns the report with the error.
// @Tags Conferences
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conference ID"
// @Success 200 {object} service.FinalizationReport
// @Failure 400 {object} map[string]string "Invalid state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Failure 500 {object} FinalizationResponse "Finalization interrupted"
// @Router /conferences/{id}/end [post]
func (h *ConferenceHandler) End(w http.ResponseWriter, r *http.Request) {
	report, err := h.conferenceService.End(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	h.respondWithReport(w, r, report, err)
}

// ResumeFinalization applies resolution steps left by an interrupted end
// @Summary Resume finalization
// @Description Apply the resolution steps left pending by an interrupted end
// @Tags Conferences
// @Produce json
// @Security BearerAuth
// @Param id path string true "Conference ID"
// @Success 200 {object} service.FinalizationReport
// @Failure 400 {object} map[string]string "Invalid state"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Not found"
// @Failure 500 {object} FinalizationResponse "Finalization interrupted"
// @Router /conferences/{id}/resume-finalization [post]
func (h *ConferenceHandler) ResumeFinalization(w http.ResponseWriter, r *http.Request) {
	report, err := h.conferenceService.ResumeFinalization(r.Context(), middleware.IdentityFromContext(r.Context()), chi.URLParam(r, "id"))
	h.respondWithReport(w, r, report, err)
}

func (h *ConferenceHandler) respondWithReport(w http.ResponseWriter, r *http.Request, report *service.FinalizationReport, err error) {
	if err == nil {
		_ = JSONResponse(w, report)
		return
	}
	if report == nil {
		respondWithServiceError(w, r, err)
		return
	}

	kind := service.KindOf(err)
	message := "internal error"
	if se, ok := service.AsServiceError(err); ok {
		message = se.Message
	}
	if kind == service.ErrorInternal {
		slog.Error("Finalization interrupted", "conference_id", chi.URLParam(r, "id"), "pending", len(report.Pending), "error", err)
	}
	_ = respondWithJSON(w, statusForKind(kind), FinalizationResponse{
		FinalizationReport: report,
		Error:              message,
		Kind:               string(kind),
	})
}
