package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/models"
	"github.com/pwannenmacher/ConfReview/internal/repository"
	"github.com/pwannenmacher/ConfReview/pkg/validator"
)

// CreatePaperInput is the payload for creating a paper
type CreatePaperInput struct {
	Title     string   `json:"title" validate:"required,max=300"`
	Abstract  string   `json:"abstract" validate:"required,max=5000"`
	Content   string   `json:"content"`
	Authors   []string `json:"authors"`
	Coauthors []string `json:"coauthors"`
}

// PatchPaperInput carries the fields to change; nil means keep
type PatchPaperInput struct {
	Title    *string   `json:"title,omitempty"`
	Abstract *string   `json:"abstract,omitempty"`
	Content  *string   `json:"content,omitempty"`
	Authors  *[]string `json:"authors,omitempty"`
}

// PublicSearch filters the public paper listing
type PublicSearch struct {
	Title    string
	Abstract string
	// Authors must all be among the paper's authors
	Authors []string
}

// CommitteeSearch filters the committee paper listing
type CommitteeSearch struct {
	Title    string
	Abstract string
	Content  string
}

// PaperService drives the paper lifecycle
type PaperService struct {
	papers      repository.PaperRepository
	conferences repository.ConferenceRepository
	users       repository.UserRepository
	opts        Options
}

// NewPaperService creates a new paper service
func NewPaperService(store *repository.Store, opts Options) *PaperService {
	return &PaperService{
		papers:      store.Papers,
		conferences: store.Conferences,
		users:       store.Users,
		opts:        opts.withDefaults(),
	}
}

// Create creates a paper in state CREATED with the caller among its authors
func (s *PaperService) Create(ctx context.Context, id *access.Identity, in CreatePaperInput) (*models.Paper, error) {
	if err := access.Authorize(id, access.CapAuthor); err != nil {
		return nil, accessError(err)
	}

	in.Title = validator.SanitizeText(in.Title)
	in.Abstract = validator.SanitizeText(in.Abstract)
	in.Content = validator.SanitizeMarkup(in.Content)
	if err := validator.ValidateStruct(&in); err != nil {
		return nil, NewInvalidInputError(err.Error())
	}

	authors := compactIDs(in.Authors)
	if !slices.Contains(authors, id.UserID) {
		authors = append([]string{id.UserID}, authors...)
	}
	coauthors := compactIDs(in.Coauthors)
	if err := disjoint(authors, coauthors); err != nil {
		return nil, err
	}
	if err := requireUsers(ctx, s.users, append(slices.Clone(authors), coauthors...)); err != nil {
		return nil, err
	}

	now := s.opts.Now()
	paper := &models.Paper{
		ID:        s.opts.NewID(),
		Title:     in.Title,
		Abstract:  in.Abstract,
		Content:   in.Content,
		Authors:   authors,
		Coauthors: coauthors,
		Reviewers: []string{},
		State:     models.PaperCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.papers.Create(ctx, paper); err != nil {
		return nil, storeError(err, "paper")
	}

	s.opts.Logger.Info("Paper created", "paper_id", paper.ID, "author_id", id.UserID)
	return paper, nil
}

// Get returns a paper to its authors, to the committee of the conference it
// was submitted to, and to anyone once it is accepted
func (s *PaperService) Get(ctx context.Context, id *access.Identity, paperID string) (*models.Paper, error) {
	if id == nil {
		return nil, NewUnauthenticatedError("authentication required")
	}
	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		return nil, storeError(err, "paper")
	}

	if paper.IsParticipant(id.UserID) || paper.State == models.PaperAccepted {
		return paper, nil
	}
	if id.Roles.Committee() && paper.ConferenceID != "" {
		conf, err := s.conferences.GetByID(ctx, paper.ConferenceID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, NewInternalError(err)
		}
		if conf != nil && conf.IsCommittee(id.UserID) {
			return paper, nil
		}
	}
	return nil, NewForbiddenError("not allowed to view this paper")
}

// Patch edits a paper that is not under review
func (s *PaperService) Patch(ctx context.Context, id *access.Identity, paperID string, in PatchPaperInput) (*models.Paper, error) {
	paper, err := s.loadForAuthor(ctx, id, paperID, access.RequireAuthorship)
	if err != nil {
		return nil, err
	}
	if paper.Locked() {
		return nil, NewInvalidStateError(fmt.Sprintf("paper cannot be modified in state %s", paper.State))
	}

	if in.Title != nil {
		title := validator.SanitizeText(*in.Title)
		if err := validator.ValidateRequired("title", title); err != nil {
			return nil, NewInvalidInputError(err.Error())
		}
		paper.Title = title
	}
	if in.Abstract != nil {
		abstract := validator.SanitizeText(*in.Abstract)
		if err := validator.ValidateRequired("abstract", abstract); err != nil {
			return nil, NewInvalidInputError(err.Error())
		}
		paper.Abstract = abstract
	}
	if in.Content != nil {
		paper.Content = validator.SanitizeMarkup(*in.Content)
	}
	if in.Authors != nil {
		authors := compactIDs(*in.Authors)
		if len(authors) == 0 {
			return nil, NewInvalidInputError("authors is required")
		}
		if err := disjoint(authors, paper.Coauthors); err != nil {
			return nil, err
		}
		if err := requireUsers(ctx, s.users, authors); err != nil {
			return nil, err
		}
		paper.Authors = authors
	}

	paper.UpdatedAt = s.opts.Now()
	if err := s.papers.Update(ctx, paper); err != nil {
		return nil, storeError(err, "paper")
	}
	return paper, nil
}

// AddCoauthors appends coauthors. The batch is rejected as a whole when any
// id is already an author or coauthor, repeated or unknown.
func (s *PaperService) AddCoauthors(ctx context.Context, id *access.Identity, paperID string, userIDs []string) (*models.Paper, error) {
	paper, err := s.loadForAuthor(ctx, id, paperID, access.RequireAuthorship)
	if err != nil {
		return nil, err
	}

	if len(userIDs) == 0 {
		return nil, NewInvalidInputError("coauthors is required")
	}
	userIDs = trimIDs(userIDs)
	seen := make(map[string]struct{}, len(userIDs))
	for _, uid := range userIDs {
		switch {
		case uid == "":
			return nil, NewInvalidInputError("coauthor id must not be empty")
		case paper.IsCoauthor(uid):
			return nil, NewInvalidInputError(fmt.Sprintf("user %s is already a coauthor of the paper", uid))
		case paper.IsAuthor(uid):
			return nil, NewInvalidInputError(fmt.Sprintf("user %s is already an author of the paper", uid))
		}
		if _, dup := seen[uid]; dup {
			return nil, NewInvalidInputError(fmt.Sprintf("user %s is listed more than once", uid))
		}
		seen[uid] = struct{}{}
	}
	if err := requireUsers(ctx, s.users, userIDs); err != nil {
		return nil, err
	}

	paper.Coauthors = append(paper.Coauthors, userIDs...)
	paper.UpdatedAt = s.opts.Now()
	if err := s.papers.Update(ctx, paper); err != nil {
		return nil, storeError(err, "paper")
	}
	return paper, nil
}

// Submit submits a CREATED paper with content to a conference that has not
// reached its final phases
func (s *PaperService) Submit(ctx context.Context, id *access.Identity, paperID, conferenceID string) (*models.Paper, error) {
	paper, err := s.loadForAuthor(ctx, id, paperID, access.RequireAuthorship)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(paper.Content) == "" {
		return nil, NewInvalidInputError("paper content must not be empty for submission")
	}
	if strings.TrimSpace(conferenceID) == "" {
		return nil, NewInvalidInputError("conference_id is required")
	}

	conf, err := s.conferences.GetByID(ctx, conferenceID)
	if err != nil {
		return nil, storeError(err, "conference")
	}
	if conf.State == models.ConferenceFinalSubmission || conf.State == models.ConferenceFinal {
		return nil, NewInvalidStateError(fmt.Sprintf("conference does not accept submissions in state %s", conf.State))
	}
	if paper.State != models.PaperCreated {
		return nil, wrongState("paper", paper.State, models.PaperCreated)
	}

	from := paper.State
	paper.ConferenceID = conf.ID
	paper.State = models.PaperSubmitted
	paper.UpdatedAt = s.opts.Now()
	if err := s.papers.Update(ctx, paper); err != nil {
		return nil, storeError(err, "paper")
	}
	s.opts.Metrics.RecordPaperTransition(from, paper.State)

	if err := s.attach(ctx, conf, paper.ID); err != nil {
		return nil, err
	}

	s.opts.Logger.Info("Paper submitted", "paper_id", paper.ID, "conference_id", conf.ID, "author_id", id.UserID)
	return paper, nil
}

// attach appends the paper to the conference's paper list. Appending
// commutes with other edits, so a version conflict reloads and retries.
func (s *PaperService) attach(ctx context.Context, conf *models.Conference, paperID string) error {
	return s.editPapers(ctx, conf, func(c *models.Conference) bool {
		if c.HasPaper(paperID) {
			return false
		}
		c.Papers = append(c.Papers, paperID)
		return true
	})
}

// detach removes the paper from the conference's paper list
func (s *PaperService) detach(ctx context.Context, conf *models.Conference, paperID string) error {
	return s.editPapers(ctx, conf, func(c *models.Conference) bool {
		if !c.HasPaper(paperID) {
			return false
		}
		c.Papers = slices.DeleteFunc(c.Papers, func(p string) bool { return p == paperID })
		return true
	})
}

func (s *PaperService) editPapers(ctx context.Context, conf *models.Conference, edit func(*models.Conference) bool) error {
	for attempt := 1; ; attempt++ {
		if !edit(conf) {
			return nil
		}
		conf.UpdatedAt = s.opts.Now()

		err := s.conferences.Update(ctx, conf)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) || attempt >= s.opts.SaveRetries {
			return storeError(err, "conference")
		}

		if conf, err = s.conferences.GetByID(ctx, conf.ID); err != nil {
			return storeError(err, "conference")
		}
	}
}

// AssignReviewer adds a committee member as reviewer while the conference
// is in ASSIGNMENT. A paper has at most two reviewers.
func (s *PaperService) AssignReviewer(ctx context.Context, id *access.Identity, paperID, reviewerID string) (*models.Paper, error) {
	paper, _, err := s.loadForChair(ctx, id, paperID, models.ConferenceAssignment)
	if err != nil {
		return nil, err
	}

	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return nil, NewInvalidInputError("reviewer_id is required")
	}
	reviewer, err := s.users.GetByID(ctx, reviewerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewInvalidInputError(fmt.Sprintf("unknown users: %s", reviewerID))
		}
		return nil, NewInternalError(err)
	}
	if !access.NewRoleSet(reviewer.Roles...).Committee() {
		return nil, NewInvalidInputError("reviewer must be a member of the program committee")
	}

	if len(paper.Reviewers) >= models.MaxReviewers {
		return nil, NewInvalidStateError(fmt.Sprintf("paper already has the maximum of %d reviewers", models.MaxReviewers))
	}
	if paper.HasReviewer(reviewerID) {
		return nil, NewConflictError("reviewer is already assigned to this paper")
	}

	paper.Reviewers = append(paper.Reviewers, reviewerID)
	paper.UpdatedAt = s.opts.Now()
	if err := s.papers.Update(ctx, paper); err != nil {
		return nil, storeError(err, "paper")
	}

	s.opts.Logger.Info("Reviewer assigned", "paper_id", paper.ID, "reviewer_id", reviewerID, "chair_id", id.UserID)
	return paper, nil
}

// Approve approves a submitted, reviewed or previously rejected paper
func (s *PaperService) Approve(ctx context.Context, id *access.Identity, paperID string) (*models.Paper, error) {
	return s.decide(ctx, id, paperID, models.ConferenceDecision, models.PaperApproved, func(p *models.Paper) error {
		switch p.State {
		case models.PaperSubmitted, models.PaperReviewed, models.PaperRejected:
			return nil
		}
		return wrongState("paper", p.State, models.PaperSubmitted, models.PaperReviewed, models.PaperRejected)
	})
}

// Reject rejects a paper that has not been decided yet
func (s *PaperService) Reject(ctx context.Context, id *access.Identity, paperID string) (*models.Paper, error) {
	return s.decide(ctx, id, paperID, models.ConferenceDecision, models.PaperRejected, func(p *models.Paper) error {
		switch p.State {
		case models.PaperRejected, models.PaperApproved, models.PaperAccepted, models.PaperFinalSubmit:
			return NewInvalidStateError(fmt.Sprintf("paper has already been decided, is %s", p.State))
		}
		return nil
	})
}

// Accept accepts a paper whose final version was submitted
func (s *PaperService) Accept(ctx context.Context, id *access.Identity, paperID string) (*models.Paper, error) {
	return s.decide(ctx, id, paperID, models.ConferenceFinal, models.PaperAccepted, func(p *models.Paper) error {
		if p.State != models.PaperFinalSubmit {
			return wrongState("paper", p.State, models.PaperFinalSubmit)
		}
		return nil
	})
}

// decide applies a chair decision to a paper of a conference in the given state
func (s *PaperService) decide(ctx context.Context, id *access.Identity, paperID string, want models.ConferenceState, to models.PaperState, check func(*models.Paper) error) (*models.Paper, error) {
	paper, _, err := s.loadForChair(ctx, id, paperID, want)
	if err != nil {
		return nil, err
	}
	if err := check(paper); err != nil {
		return nil, err
	}

	from := paper.State
	paper.State = to
	paper.UpdatedAt = s.opts.Now()
	if err := s.papers.Update(ctx, paper); err != nil {
		return nil, storeError(err, "paper")
	}

	s.opts.Metrics.RecordPaperTransition(from, to)
	s.opts.Logger.Info("Paper state changed",
		"paper_id", paper.ID,
		"from", from,
		"to", to,
		"chair_id", id.UserID,
	)
	return paper, nil
}

// FinalSubmit records the final version of an approved paper. An empty
// content keeps the submitted content as the final version.
func (s *PaperService) FinalSubmit(ctx context.Context, id *access.Identity, paperID, content string) (*models.Paper, error) {
	paper, err := s.loadForAuthor(ctx, id, paperID, access.RequireAuthorship)
	if err != nil {
		return nil, err
	}
	conf, err := s.paperConference(ctx, paper)
	if err != nil {
		return nil, err
	}
	if conf.State != models.ConferenceFinalSubmission {
		return nil, wrongState("conference", conf.State, models.ConferenceFinalSubmission)
	}
	if paper.State != models.PaperApproved {
		return nil, wrongState("paper", paper.State, models.PaperApproved)
	}

	now := s.opts.Now()
	from := paper.State
	paper.FinalContent = validator.SanitizeMarkup(content)
	if paper.FinalContent == "" {
		paper.FinalContent = paper.Content
	}
	paper.FinalSubmittedAt = &now
	paper.State = models.PaperFinalSubmit
	paper.UpdatedAt = now
	if err := s.papers.Update(ctx, paper); err != nil {
		return nil, storeError(err, "paper")
	}

	s.opts.Metrics.RecordPaperTransition(from, paper.State)
	s.opts.Logger.Info("Paper final version submitted", "paper_id", paper.ID, "author_id", id.UserID)
	return paper, nil
}

// Withdraw deletes a paper on behalf of one of its authors and takes it off
// its conference. Papers past the final submission cannot be withdrawn.
func (s *PaperService) Withdraw(ctx context.Context, id *access.Identity, paperID string) error {
	paper, err := s.loadForAuthor(ctx, id, paperID, access.RequireOwnership)
	if err != nil {
		return err
	}
	if paper.State == models.PaperFinalSubmit || paper.State == models.PaperAccepted {
		return NewInvalidStateError(fmt.Sprintf("paper cannot be withdrawn in state %s", paper.State))
	}

	if err := s.papers.Delete(ctx, paper.ID); err != nil {
		return storeError(err, "paper")
	}

	if paper.ConferenceID != "" {
		conf, err := s.conferences.GetByID(ctx, paper.ConferenceID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
		case err != nil:
			return NewInternalError(err)
		default:
			if err := s.detach(ctx, conf, paper.ID); err != nil {
				return err
			}
		}
	}

	s.opts.Logger.Info("Paper withdrawn", "paper_id", paper.ID, "author_id", id.UserID)
	return nil
}

// SearchPublic lists accepted papers without their content
func (s *PaperService) SearchPublic(ctx context.Context, id *access.Identity, q PublicSearch) ([]models.PaperSummary, error) {
	if err := access.Authorize(id, access.CapVisitor); err != nil {
		return nil, accessError(err)
	}
	papers, err := s.papers.ListByState(ctx, models.PaperAccepted)
	if err != nil {
		return nil, NewInternalError(err)
	}

	authors := compactIDs(q.Authors)
	out := make([]models.PaperSummary, 0, len(papers))
	for _, p := range papers {
		if !containsFold(p.Title, q.Title) || !containsFold(p.Abstract, q.Abstract) {
			continue
		}
		if !containsAll(p.Authors, authors) {
			continue
		}
		out = append(out, p.Summary())
	}
	return out, nil
}

// SearchForCommittee lists accepted papers including their content
func (s *PaperService) SearchForCommittee(ctx context.Context, id *access.Identity, q CommitteeSearch) ([]models.CommitteePaper, error) {
	if err := access.Authorize(id, access.CapPCMember); err != nil {
		return nil, accessError(err)
	}
	papers, err := s.papers.ListByState(ctx, models.PaperAccepted)
	if err != nil {
		return nil, NewInternalError(err)
	}

	out := make([]models.CommitteePaper, 0, len(papers))
	for _, p := range papers {
		if !containsFold(p.Title, q.Title) || !containsFold(p.Abstract, q.Abstract) || !containsFold(p.Content, q.Content) {
			continue
		}
		out = append(out, models.CommitteePaper{
			PaperSummary: p.Summary(),
			Content:      p.Content,
			ConferenceID: p.ConferenceID,
		})
	}
	return out, nil
}

// ListMine lists the papers the caller authors or coauthors
func (s *PaperService) ListMine(ctx context.Context, id *access.Identity, title, abstract string) ([]*models.Paper, error) {
	if err := access.Authorize(id, access.CapAuthor); err != nil {
		return nil, accessError(err)
	}
	papers, err := s.papers.ListByParticipant(ctx, id.UserID)
	if err != nil {
		return nil, NewInternalError(err)
	}
	return slices.DeleteFunc(papers, func(p *models.Paper) bool {
		return !containsFold(p.Title, title) || !containsFold(p.Abstract, abstract)
	}), nil
}

// loadForAuthor runs the author gate and the given relationship check
func (s *PaperService) loadForAuthor(ctx context.Context, id *access.Identity, paperID string, relation func(*access.Identity, *models.Paper) error) (*models.Paper, error) {
	if err := access.Authorize(id, access.CapAuthor); err != nil {
		return nil, accessError(err)
	}
	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		return nil, storeError(err, "paper")
	}
	if err := relation(id, paper); err != nil {
		return nil, accessError(err)
	}
	return paper, nil
}

// loadForChair runs the chair gate against the paper's conference and
// requires the conference to be in state want
func (s *PaperService) loadForChair(ctx context.Context, id *access.Identity, paperID string, want models.ConferenceState) (*models.Paper, *models.Conference, error) {
	if err := access.Authorize(id, access.CapPCChair); err != nil {
		return nil, nil, accessError(err)
	}
	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		return nil, nil, storeError(err, "paper")
	}
	conf, err := s.paperConference(ctx, paper)
	if err != nil {
		return nil, nil, err
	}
	if err := access.RequireChair(id, conf); err != nil {
		return nil, nil, accessError(err)
	}
	if conf.State != want {
		return nil, nil, wrongState("conference", conf.State, want)
	}
	return paper, conf, nil
}

func (s *PaperService) paperConference(ctx context.Context, paper *models.Paper) (*models.Conference, error) {
	if paper.ConferenceID == "" {
		return nil, NewInvalidStateError("paper has not been submitted to a conference")
	}
	conf, err := s.conferences.GetByID(ctx, paper.ConferenceID)
	if err != nil {
		return nil, storeError(err, "conference")
	}
	return conf, nil
}

// disjoint rejects coauthors that are also authors
func disjoint(authors, coauthors []string) error {
	for _, c := range coauthors {
		if slices.Contains(authors, c) {
			return NewInvalidInputError(fmt.Sprintf("user %s cannot be both author and coauthor", c))
		}
	}
	return nil
}

func containsAll(set, want []string) bool {
	for _, w := range want {
		if !slices.Contains(set, w) {
			return false
		}
	}
	return true
}
