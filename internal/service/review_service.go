package service

import (
	"context"
	"errors"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/models"
	"github.com/pwannenmacher/ConfReview/internal/repository"
	"github.com/pwannenmacher/ConfReview/pkg/validator"
)

// SubmitReviewInput is the payload for reviewing a paper
type SubmitReviewInput struct {
	Score         *int   `json:"score" validate:"required"`
	Justification string `json:"justification" validate:"required,max=10000"`
}

// ReviewService records reviews. A paper receives at most one review.
type ReviewService struct {
	reviews     repository.ReviewRepository
	papers      repository.PaperRepository
	conferences repository.ConferenceRepository
	users       repository.UserRepository
	opts        Options
}

// NewReviewService creates a new review service
func NewReviewService(store *repository.Store, opts Options) *ReviewService {
	return &ReviewService{
		reviews:     store.Reviews,
		papers:      store.Papers,
		conferences: store.Conferences,
		users:       store.Users,
		opts:        opts.withDefaults(),
	}
}

// Submit records the review of a paper whose conference is in REVIEW
func (s *ReviewService) Submit(ctx context.Context, id *access.Identity, paperID string, in SubmitReviewInput) (*models.Review, error) {
	if err := access.Authorize(id, access.CapPCMember); err != nil {
		return nil, accessError(err)
	}

	paper, err := s.papers.GetByID(ctx, paperID)
	if err != nil {
		return nil, storeError(err, "paper")
	}
	if paper.ConferenceID == "" {
		return nil, NewInvalidStateError("paper has not been submitted to a conference")
	}
	conf, err := s.conferences.GetByID(ctx, paper.ConferenceID)
	if err != nil {
		return nil, storeError(err, "conference")
	}
	if conf.State != models.ConferenceReview {
		return nil, wrongState("conference", conf.State, models.ConferenceReview)
	}

	in.Justification = validator.SanitizeText(in.Justification)
	if err := validator.ValidateStruct(&in); err != nil {
		return nil, NewInvalidInputError(err.Error())
	}
	if err := validator.ValidateRange("score", *in.Score, models.MinScore, models.MaxScore); err != nil {
		return nil, NewInvalidInputError(err.Error())
	}

	now := s.opts.Now()
	review := &models.Review{
		ID:            s.opts.NewID(),
		PaperID:       paper.ID,
		ReviewerID:    id.UserID,
		Score:         *in.Score,
		Justification: in.Justification,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// The store keeps one review per paper; the first writer wins
	if err := s.reviews.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, NewConflictError("paper has already been reviewed")
		}
		return nil, NewInternalError(err)
	}

	s.opts.Logger.Info("Review submitted", "paper_id", paper.ID, "reviewer_id", id.UserID, "score", review.Score)
	return review, nil
}

// ListForPaper returns the reviews of a paper with reviewers shown by name
func (s *ReviewService) ListForPaper(ctx context.Context, id *access.Identity, paperID string) ([]models.ReviewView, error) {
	if err := access.Authorize(id, access.CapPCMember); err != nil {
		return nil, accessError(err)
	}
	if _, err := s.papers.GetByID(ctx, paperID); err != nil {
		return nil, storeError(err, "paper")
	}

	reviews, err := s.reviews.ListByPaper(ctx, paperID)
	if err != nil {
		return nil, NewInternalError(err)
	}

	ids := make([]string, 0, len(reviews))
	for _, r := range reviews {
		ids = append(ids, r.ReviewerID)
	}
	names := make(map[string]string, len(ids))
	if len(ids) > 0 {
		users, err := s.users.ListByIDs(ctx, ids)
		if err != nil {
			return nil, NewInternalError(err)
		}
		for _, u := range users {
			names[u.ID] = u.DisplayName()
		}
	}

	out := make([]models.ReviewView, 0, len(reviews))
	for _, r := range reviews {
		name, ok := names[r.ReviewerID]
		if !ok {
			name = "unknown reviewer"
		}
		out = append(out, models.ReviewView{
			ID:            r.ID,
			PaperID:       r.PaperID,
			Reviewer:      name,
			Score:         r.Score,
			Justification: r.Justification,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out, nil
}
