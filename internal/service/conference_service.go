package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/metrics"
	"github.com/pwannenmacher/ConfReview/internal/models"
	"github.com/pwannenmacher/ConfReview/internal/repository"
	"github.com/pwannenmacher/ConfReview/pkg/validator"
)

// CreateConferenceInput is the payload for creating a conference
type CreateConferenceInput struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"required,max=5000"`
	Chairs      []string `json:"chairs"`
	Members     []string `json:"members"`
}

// UpdateConferenceInput carries the fields to change; nil means keep
type UpdateConferenceInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// FinalizationReport describes one pass over a conference's resolution plan
type FinalizationReport struct {
	Conference *models.Conference       `json:"conference"`
	Accepted   []string                 `json:"accepted"`
	Rejected   []string                 `json:"rejected"`
	Skipped    []string                 `json:"skipped"`
	Pending    []models.PaperResolution `json:"pending,omitempty"`
}

// ConferenceService drives the conference lifecycle and its committee roster
type ConferenceService struct {
	conferences repository.ConferenceRepository
	papers      repository.PaperRepository
	users       repository.UserRepository
	opts        Options
}

// NewConferenceService creates a new conference service
func NewConferenceService(store *repository.Store, opts Options) *ConferenceService {
	return &ConferenceService{
		conferences: store.Conferences,
		papers:      store.Papers,
		users:       store.Users,
		opts:        opts.withDefaults(),
	}
}

// Create creates a conference in state CREATED. The caller always ends up
// among the chairs.
func (s *ConferenceService) Create(ctx context.Context, id *access.Identity, in CreateConferenceInput) (*models.Conference, error) {
	if err := access.Authorize(id, access.CapPCChair); err != nil {
		return nil, accessError(err)
	}

	in.Name = validator.SanitizeText(in.Name)
	in.Description = validator.SanitizeText(in.Description)
	if err := validator.ValidateStruct(&in); err != nil {
		return nil, NewInvalidInputError(err.Error())
	}

	chairs := compactIDs(in.Chairs)
	if !slices.Contains(chairs, id.UserID) {
		chairs = append(chairs, id.UserID)
	}
	members := compactIDs(in.Members)

	if err := requireUsers(ctx, s.users, append(slices.Clone(chairs), members...)); err != nil {
		return nil, err
	}

	now := s.opts.Now()
	conf := &models.Conference{
		ID:          s.opts.NewID(),
		Name:        in.Name,
		Description: in.Description,
		Chairs:      chairs,
		Members:     members,
		Papers:      []string{},
		State:       models.ConferenceCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.conferences.Create(ctx, conf); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, NewConflictError(fmt.Sprintf("conference name %q is already taken", conf.Name))
		}
		return nil, NewInternalError(err)
	}

	s.opts.Logger.Info("Conference created", "conference_id", conf.ID, "chair_id", id.UserID)
	return conf, nil
}

// Get returns a conference to a chair or member of its committee
func (s *ConferenceService) Get(ctx context.Context, id *access.Identity, conferenceID string) (*models.Conference, error) {
	if err := access.Authorize(id, access.CapPCMember); err != nil {
		return nil, accessError(err)
	}
	conf, err := s.conferences.GetByID(ctx, conferenceID)
	if err != nil {
		return nil, storeError(err, "conference")
	}
	if err := access.RequireCommittee(id, conf); err != nil {
		return nil, accessError(err)
	}
	return conf, nil
}

// Update renames or redescribes a conference in any state
func (s *ConferenceService) Update(ctx context.Context, id *access.Identity, conferenceID string, in UpdateConferenceInput) (*models.Conference, error) {
	conf, err := s.loadForChair(ctx, id, conferenceID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := validator.SanitizeText(*in.Name)
		if err := validator.ValidateRequired("name", name); err != nil {
			return nil, NewInvalidInputError(err.Error())
		}
		conf.Name = name
	}
	if in.Description != nil {
		description := validator.SanitizeText(*in.Description)
		if err := validator.ValidateRequired("description", description); err != nil {
			return nil, NewInvalidInputError(err.Error())
		}
		conf.Description = description
	}

	conf.UpdatedAt = s.opts.Now()
	if err := s.conferences.Update(ctx, conf); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, NewConflictError(fmt.Sprintf("conference name %q is already taken", conf.Name))
		}
		return nil, storeError(err, "conference")
	}
	return conf, nil
}

// Delete removes a conference that has not opened submissions yet and
// holds no submitted papers
func (s *ConferenceService) Delete(ctx context.Context, id *access.Identity, conferenceID string) error {
	conf, err := s.loadForChair(ctx, id, conferenceID)
	if err != nil {
		return err
	}
	if conf.State != models.ConferenceCreated {
		return wrongState("conference", conf.State, models.ConferenceCreated)
	}
	if len(conf.Papers) > 0 {
		return NewInvalidStateError(fmt.Sprintf("conference holds %d submitted papers", len(conf.Papers)))
	}
	if err := s.conferences.Delete(ctx, conf.ID); err != nil {
		return storeError(err, "conference")
	}

	s.opts.Logger.Info("Conference deleted", "conference_id", conf.ID, "chair_id", id.UserID)
	return nil
}

// AddChairs appends chairs to the roster. The batch is rejected as a whole
// when any id is already a chair, repeated or unknown.
func (s *ConferenceService) AddChairs(ctx context.Context, id *access.Identity, conferenceID string, userIDs []string) (*models.Conference, error) {
	return s.addToRoster(ctx, id, conferenceID, userIDs, "chair", func(c *models.Conference) *[]string { return &c.Chairs })
}

// AddMembers appends committee members to the roster with the same batch
// rules as AddChairs
func (s *ConferenceService) AddMembers(ctx context.Context, id *access.Identity, conferenceID string, userIDs []string) (*models.Conference, error) {
	return s.addToRoster(ctx, id, conferenceID, userIDs, "member", func(c *models.Conference) *[]string { return &c.Members })
}

func (s *ConferenceService) addToRoster(ctx context.Context, id *access.Identity, conferenceID string, userIDs []string, kind string, roster func(*models.Conference) *[]string) (*models.Conference, error) {
	conf, err := s.loadForChair(ctx, id, conferenceID)
	if err != nil {
		return nil, err
	}

	if len(userIDs) == 0 {
		return nil, NewInvalidInputError(kind + "s is required")
	}
	userIDs = trimIDs(userIDs)
	list := roster(conf)
	seen := make(map[string]struct{}, len(userIDs))
	for _, uid := range userIDs {
		if uid == "" {
			return nil, NewInvalidInputError(kind + " id must not be empty")
		}
		if slices.Contains(*list, uid) {
			return nil, NewInvalidInputError(fmt.Sprintf("user %s is already a %s of the conference", uid, kind))
		}
		if _, dup := seen[uid]; dup {
			return nil, NewInvalidInputError(fmt.Sprintf("user %s is listed more than once", uid))
		}
		seen[uid] = struct{}{}
	}
	if err := requireUsers(ctx, s.users, userIDs); err != nil {
		return nil, err
	}

	*list = append(*list, userIDs...)
	conf.UpdatedAt = s.opts.Now()
	if err := s.conferences.Update(ctx, conf); err != nil {
		return nil, storeError(err, "conference")
	}

	s.opts.Logger.Info("Conference roster extended", "conference_id", conf.ID, "kind", kind, "count", len(userIDs))
	return conf, nil
}

// StartSubmission opens the conference for paper submissions
func (s *ConferenceService) StartSubmission(ctx context.Context, id *access.Identity, conferenceID string) (*models.Conference, error) {
	return s.advance(ctx, id, conferenceID, models.ConferenceCreated)
}

// StartAssignment closes submissions and lets chairs assign reviewers
func (s *ConferenceService) StartAssignment(ctx context.Context, id *access.Identity, conferenceID string) (*models.Conference, error) {
	return s.advance(ctx, id, conferenceID, models.ConferenceSubmission)
}

// StartReview opens the review phase
func (s *ConferenceService) StartReview(ctx context.Context, id *access.Identity, conferenceID string) (*models.Conference, error) {
	return s.advance(ctx, id, conferenceID, models.ConferenceAssignment)
}

// StartDecision lets chairs approve and reject papers
func (s *ConferenceService) StartDecision(ctx context.Context, id *access.Identity, conferenceID string) (*models.Conference, error) {
	return s.advance(ctx, id, conferenceID, models.ConferenceReview)
}

// StartFinalSubmission opens camera-ready submission for approved papers
func (s *ConferenceService) StartFinalSubmission(ctx context.Context, id *access.Identity, conferenceID string) (*models.Conference, error) {
	return s.advance(ctx, id, conferenceID, models.ConferenceDecision)
}

// advance moves the conference from one state to the next. The save is a
// compare-and-swap so two racing transitions cannot both succeed.
func (s *ConferenceService) advance(ctx context.Context, id *access.Identity, conferenceID string, from models.ConferenceState) (*models.Conference, error) {
	conf, err := s.loadForChair(ctx, id, conferenceID)
	if err != nil {
		return nil, err
	}
	if conf.State != from {
		return nil, wrongState("conference", conf.State, from)
	}
	to, ok := from.Next()
	if !ok {
		return nil, NewInvalidStateError(fmt.Sprintf("conference state %s has no successor", from))
	}

	conf.State = to
	conf.UpdatedAt = s.opts.Now()
	if err := s.conferences.Update(ctx, conf); err != nil {
		return nil, storeError(err, "conference")
	}

	s.opts.Metrics.RecordConferenceTransition(from, to)
	s.opts.Logger.Info("Conference state changed",
		"conference_id", conf.ID,
		"from", from,
		"to", to,
		"chair_id", id.UserID,
	)
	return conf, nil
}

// End moves the conference to FINAL and resolves its approved papers.
// The resolution plan is stored together with the FINAL state, then applied
// step by step. If a step cannot be saved the remaining steps stay pending
// and ResumeFinalization picks them up.
func (s *ConferenceService) End(ctx context.Context, id *access.Identity, conferenceID string) (*FinalizationReport, error) {
	conf, err := s.loadForChair(ctx, id, conferenceID)
	if err != nil {
		return nil, err
	}
	if conf.State != models.ConferenceFinalSubmission {
		return nil, wrongState("conference", conf.State, models.ConferenceFinalSubmission)
	}

	approved, err := s.papers.ListByConference(ctx, conf.ID, models.PaperApproved)
	if err != nil {
		return nil, NewInternalError(err)
	}

	plan := make([]models.PaperResolution, 0, len(approved))
	for _, p := range approved {
		target := models.PaperRejected
		if p.FinalSubmittedAt != nil {
			target = models.PaperAccepted
		}
		plan = append(plan, models.PaperResolution{PaperID: p.ID, Target: target})
	}

	from := conf.State
	conf.State, _ = from.Next()
	conf.PendingResolutions = plan
	conf.UpdatedAt = s.opts.Now()
	if err := s.conferences.Update(ctx, conf); err != nil {
		return nil, storeError(err, "conference")
	}

	s.opts.Metrics.RecordConferenceTransition(from, conf.State)
	s.opts.Logger.Info("Conference ended",
		"conference_id", conf.ID,
		"chair_id", id.UserID,
		"resolutions", len(plan),
	)
	return s.finalize(ctx, conf)
}

// ResumeFinalization re-applies the pending resolution steps of a FINAL
// conference. Steps that already took effect are skipped.
func (s *ConferenceService) ResumeFinalization(ctx context.Context, id *access.Identity, conferenceID string) (*FinalizationReport, error) {
	conf, err := s.loadForChair(ctx, id, conferenceID)
	if err != nil {
		return nil, err
	}
	if conf.State != models.ConferenceFinal {
		return nil, wrongState("conference", conf.State, models.ConferenceFinal)
	}
	return s.finalize(ctx, conf)
}

func (s *ConferenceService) finalize(ctx context.Context, conf *models.Conference) (*FinalizationReport, error) {
	report := &FinalizationReport{
		Accepted: []string{},
		Rejected: []string{},
		Skipped:  []string{},
	}

	pending := slices.Clone(conf.PendingResolutions)
	var stepErr error
	done := 0
	for _, step := range pending {
		applied, err := s.applyResolution(ctx, step)
		if err != nil {
			stepErr = err
			s.opts.Metrics.RecordFinalizationStep(metrics.StepFailed)
			s.opts.Logger.Error("Paper resolution failed",
				"conference_id", conf.ID,
				"paper_id", step.PaperID,
				"target", step.Target,
				"error", err,
			)
			break
		}
		done++
		switch {
		case !applied:
			report.Skipped = append(report.Skipped, step.PaperID)
			s.opts.Metrics.RecordFinalizationStep(metrics.StepSkipped)
		case step.Target == models.PaperAccepted:
			report.Accepted = append(report.Accepted, step.PaperID)
			s.opts.Metrics.RecordFinalizationStep(metrics.StepApplied)
		default:
			report.Rejected = append(report.Rejected, step.PaperID)
			s.opts.Metrics.RecordFinalizationStep(metrics.StepApplied)
		}
	}

	if done > 0 {
		saved, err := s.dropResolutions(ctx, conf, pending[:done])
		if err != nil {
			return nil, err
		}
		conf = saved
	}

	report.Conference = conf
	report.Pending = slices.Clone(conf.PendingResolutions)
	if stepErr != nil {
		return report, &ServiceError{
			Kind:    ErrorInternal,
			Message: fmt.Sprintf("finalization stopped with %d resolutions pending, resume to complete it", len(report.Pending)),
			Err:     stepErr,
		}
	}
	return report, nil
}

// applyResolution moves one paper to its target state. It reports false when
// the paper is gone or no longer APPROVED, which makes replays harmless.
func (s *ConferenceService) applyResolution(ctx context.Context, step models.PaperResolution) (bool, error) {
	paper, err := s.papers.GetByID(ctx, step.PaperID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if paper.State != models.PaperApproved {
		return false, nil
	}

	paper.State = step.Target
	paper.UpdatedAt = s.opts.Now()
	if err := s.papers.Update(ctx, paper); err != nil {
		return false, err
	}
	s.opts.Metrics.RecordPaperTransition(models.PaperApproved, step.Target)
	return true, nil
}

// dropResolutions removes processed steps from the stored plan. Removing
// steps commutes with other edits, so a version conflict reloads and retries.
func (s *ConferenceService) dropResolutions(ctx context.Context, conf *models.Conference, processed []models.PaperResolution) (*models.Conference, error) {
	for attempt := 1; ; attempt++ {
		conf.PendingResolutions = slices.DeleteFunc(conf.PendingResolutions, func(r models.PaperResolution) bool {
			return slices.Contains(processed, r)
		})
		conf.UpdatedAt = s.opts.Now()

		err := s.conferences.Update(ctx, conf)
		if err == nil {
			return conf, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) || attempt >= s.opts.SaveRetries {
			return nil, storeError(err, "conference")
		}

		if conf, err = s.conferences.GetByID(ctx, conf.ID); err != nil {
			return nil, storeError(err, "conference")
		}
	}
}

// ListForChair returns the conferences chaired by the caller
func (s *ConferenceService) ListForChair(ctx context.Context, id *access.Identity) ([]*models.Conference, error) {
	if err := access.Authorize(id, access.CapPCChair); err != nil {
		return nil, accessError(err)
	}
	confs, err := s.conferences.ListByChair(ctx, id.UserID)
	if err != nil {
		return nil, NewInternalError(err)
	}
	return confs, nil
}

// Search filters the caller's conferences by case-insensitive substrings of
// name and description. Empty filters match everything.
func (s *ConferenceService) Search(ctx context.Context, id *access.Identity, name, description string) ([]*models.Conference, error) {
	confs, err := s.ListForChair(ctx, id)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(confs, func(c *models.Conference) bool {
		return !containsFold(c.Name, name) || !containsFold(c.Description, description)
	}), nil
}

// loadForChair runs the chair gate: capability, existence, then chair
// relationship
func (s *ConferenceService) loadForChair(ctx context.Context, id *access.Identity, conferenceID string) (*models.Conference, error) {
	if err := access.Authorize(id, access.CapPCChair); err != nil {
		return nil, accessError(err)
	}
	conf, err := s.conferences.GetByID(ctx, conferenceID)
	if err != nil {
		return nil, storeError(err, "conference")
	}
	if err := access.RequireChair(id, conf); err != nil {
		return nil, accessError(err)
	}
	return conf, nil
}

// requireUsers fails with InvalidInput naming the ids that do not resolve
func requireUsers(ctx context.Context, users repository.UserRepository, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := users.ListByIDs(ctx, ids)
	if err != nil {
		return NewInternalError(err)
	}
	known := make(map[string]struct{}, len(found))
	for _, u := range found {
		known[u.ID] = struct{}{}
	}
	var missing []string
	for _, uid := range ids {
		if _, ok := known[uid]; !ok && !slices.Contains(missing, uid) {
			missing = append(missing, uid)
		}
	}
	if len(missing) > 0 {
		return NewInvalidInputError("unknown users: " + strings.Join(missing, ", "))
	}
	return nil
}

// trimIDs returns a copy of ids with surrounding whitespace removed
func trimIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, uid := range ids {
		out[i] = strings.TrimSpace(uid)
	}
	return out
}

// compactIDs trims ids and drops blanks and repeats, keeping first-seen order
func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, uid := range ids {
		uid = strings.TrimSpace(uid)
		if uid != "" && !slices.Contains(out, uid) {
			out = append(out, uid)
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(strings.TrimSpace(substr)))
}
