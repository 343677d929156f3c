package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pwannenmacher/ConfReview/internal/models"
	"github.com/pwannenmacher/ConfReview/internal/service"
)

func score(n int) *int { return &n }

func TestSubmitReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)
	paper := env.submittedPaper(t, conf.ID, "Paper")

	valid := service.SubmitReviewInput{Score: score(7), Justification: "Solid work"}

	// Reviews are only accepted during REVIEW
	_, err := env.reviews.Submit(ctx, env.member, paper.ID, valid)
	assertKind(t, err, service.ErrorInvalidState)

	env.advanceTo(t, conf.ID, models.ConferenceReview)

	tests := []struct {
		name string
		in   service.SubmitReviewInput
	}{
		{"missing score", service.SubmitReviewInput{Justification: "Solid"}},
		{"missing justification", service.SubmitReviewInput{Score: score(5), Justification: "  "}},
		{"score too high", service.SubmitReviewInput{Score: score(11), Justification: "Solid"}},
		{"score negative", service.SubmitReviewInput{Score: score(-1), Justification: "Solid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.reviews.Submit(ctx, env.member, paper.ID, tt.in)
			assertKind(t, err, service.ErrorInvalidInput)
		})
	}

	_, err = env.reviews.Submit(ctx, env.author, paper.ID, valid)
	assertKind(t, err, service.ErrorForbidden)
	_, err = env.reviews.Submit(ctx, nil, paper.ID, valid)
	assertKind(t, err, service.ErrorUnauthenticated)
	_, err = env.reviews.Submit(ctx, env.member, "missing", valid)
	assertKind(t, err, service.ErrorNotFound)

	review, err := env.reviews.Submit(ctx, env.member, paper.ID, service.SubmitReviewInput{Score: score(0), Justification: "Needs <b>work</b>"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if review.Score != 0 || review.ReviewerID != env.fx.Member.ID || review.Justification != "Needs work" {
		t.Errorf("Unexpected review: %+v", review)
	}

	// First reviewer wins; any further review of the paper conflicts
	_, err = env.reviews.Submit(ctx, env.chair, paper.ID, valid)
	assertKind(t, err, service.ErrorConflict)

	// Recording a review does not change the paper state
	if got := env.paperState(t, paper.ID); got != models.PaperSubmitted {
		t.Errorf("Expected paper to stay SUBMITTED, got %s", got)
	}
}

func TestConcurrentReviewsKeepOnePerPaper(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)
	paper := env.submittedPaper(t, conf.ID, "Paper")
	env.advanceTo(t, conf.ID, models.ConferenceReview)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.reviews.Submit(ctx, env.member, paper.ID, service.SubmitReviewInput{Score: score(i), Justification: "Concurrent"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case service.KindOf(err) != service.ErrorConflict:
			t.Errorf("Expected Conflict for losing writers, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("Expected exactly one review to be recorded, got %d", succeeded)
	}

	reviews, err := env.store.Reviews.ListByPaper(ctx, paper.ID)
	if err != nil {
		t.Fatalf("ListByPaper() error = %v", err)
	}
	if len(reviews) != 1 {
		t.Errorf("Expected one stored review, got %d", len(reviews))
	}
}

func TestListReviewsForPaper(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)
	paper := env.submittedPaper(t, conf.ID, "Paper")
	env.advanceTo(t, conf.ID, models.ConferenceReview)

	if _, err := env.reviews.Submit(ctx, env.member, paper.ID, service.SubmitReviewInput{Score: score(9), Justification: "Great"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	views, err := env.reviews.ListForPaper(ctx, env.chair, paper.ID)
	if err != nil {
		t.Fatalf("ListForPaper() error = %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("Expected one review, got %d", len(views))
	}
	if views[0].Reviewer != "Mia Member" || views[0].Score != 9 {
		t.Errorf("Unexpected review view: %+v", views[0])
	}

	_, err = env.reviews.ListForPaper(ctx, env.author, paper.ID)
	assertKind(t, err, service.ErrorForbidden)
	_, err = env.reviews.ListForPaper(ctx, env.member, "missing")
	assertKind(t, err, service.ErrorNotFound)
}

func TestReviewerDisplayNameFallsBackToUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.auth.Register(ctx, service.RegisterInput{Username: "nameless", Password: "password123", Role: "pc member"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if u.DisplayName() != "nameless" {
		t.Errorf("Expected username fallback, got %q", u.DisplayName())
	}
}
