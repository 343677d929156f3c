package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pwannenmacher/ConfReview/internal/models"
)

// runStoreContract exercises the behaviour every backend must share
func runStoreContract(t *testing.T, store *Store) {
	t.Helper()

	t.Run("users", func(t *testing.T) { testUsers(t, store) })
	t.Run("conferences", func(t *testing.T) { testConferences(t, store) })
	t.Run("papers", func(t *testing.T) { testPapers(t, store) })
	t.Run("reviews", func(t *testing.T) { testReviews(t, store) })
}

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newUser(id, username string, roles ...models.Role) *models.User {
	return &models.User{
		ID:           id,
		Username:     username,
		PasswordHash: "hash",
		FirstName:    "First",
		LastName:     "Last",
		Roles:        roles,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}

func testUsers(t *testing.T, store *Store) {
	ctx := context.Background()

	u := newUser("u-1", "alice", models.RoleAuthor)
	if err := store.Users.Create(ctx, u); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if u.Version != 1 {
		t.Errorf("Expected version 1, got %d", u.Version)
	}

	dup := newUser("u-2", "alice", models.RolePCChair)
	if err := store.Users.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for taken username, got %v", err)
	}

	got, err := store.Users.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if got.ID != "u-1" || !got.HasRole(models.RoleAuthor) {
		t.Errorf("First user was affected by duplicate signup: %+v", got)
	}

	if _, err := store.Users.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	stale := got.Clone()
	loggedOut := testNow.Add(time.Minute)
	got.LoggedOutAt = &loggedOut
	got.TokenGeneration = 3
	if err := store.Users.Update(ctx, got); err != nil {
		t.Fatalf("Failed to update user: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Expected version 2, got %d", got.Version)
	}
	if err := store.Users.Update(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict for stale write, got %v", err)
	}

	reloaded, _ := store.Users.GetByID(ctx, "u-1")
	if reloaded.LoggedOutAt == nil || !reloaded.LoggedOutAt.Equal(loggedOut) {
		t.Errorf("Expected logout stamp to persist, got %v", reloaded.LoggedOutAt)
	}
	if reloaded.TokenGeneration != 3 {
		t.Errorf("Expected token generation 3, got %d", reloaded.TokenGeneration)
	}

	_ = store.Users.Create(ctx, newUser("u-3", "bob", models.RolePCMember))
	users, err := store.Users.ListByIDs(ctx, []string{"u-1", "u-3", "nobody"})
	if err != nil {
		t.Fatalf("Failed to list users: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("Expected 2 users, got %d", len(users))
	}
}

func testConferences(t *testing.T, store *Store) {
	ctx := context.Background()

	conf := &models.Conference{
		ID:          "c-1",
		Name:        "ICSE",
		Description: "Software engineering",
		Chairs:      []string{"chair-1"},
		Members:     []string{"member-1"},
		State:       models.ConferenceCreated,
		CreatedAt:   testNow,
		UpdatedAt:   testNow,
	}
	if err := store.Conferences.Create(ctx, conf); err != nil {
		t.Fatalf("Failed to create conference: %v", err)
	}

	other := &models.Conference{ID: "c-2", Name: "ICSE", Description: "dup", State: models.ConferenceCreated, CreatedAt: testNow, UpdatedAt: testNow}
	if err := store.Conferences.Create(ctx, other); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for taken name, got %v", err)
	}

	other.Name = "FSE"
	other.Chairs = []string{"chair-1"}
	if err := store.Conferences.Create(ctx, other); err != nil {
		t.Fatalf("Failed to create second conference: %v", err)
	}

	other.Name = "ICSE"
	if err := store.Conferences.Update(ctx, other); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate on rename collision, got %v", err)
	}

	conf.State = models.ConferenceFinal
	conf.PendingResolutions = []models.PaperResolution{{PaperID: "p-1", Target: models.PaperAccepted}}
	if err := store.Conferences.Update(ctx, conf); err != nil {
		t.Fatalf("Failed to update conference: %v", err)
	}

	got, err := store.Conferences.GetByID(ctx, "c-1")
	if err != nil {
		t.Fatalf("Failed to get conference: %v", err)
	}
	if got.State != models.ConferenceFinal || len(got.PendingResolutions) != 1 || got.PendingResolutions[0].Target != models.PaperAccepted {
		t.Errorf("Unexpected conference after update: %+v", got)
	}

	fse, err := store.Conferences.GetByID(ctx, "c-2")
	if err != nil {
		t.Fatalf("Failed to get conference: %v", err)
	}
	if fse.Finalizing() || !fse.HasChair("chair-1") {
		t.Errorf("Unexpected conference after create: %+v", fse)
	}

	got.Version = 1
	if err := store.Conferences.Update(ctx, got); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict, got %v", err)
	}

	list, err := store.Conferences.ListByChair(ctx, "chair-1")
	if err != nil {
		t.Fatalf("Failed to list conferences: %v", err)
	}
	if len(list) != 2 || list[0].Name != "FSE" || list[1].Name != "ICSE" {
		t.Errorf("Expected FSE, ICSE ordered by name, got %d items", len(list))
	}

	if err := store.Conferences.Delete(ctx, "c-2"); err != nil {
		t.Fatalf("Failed to delete conference: %v", err)
	}
	if err := store.Conferences.Delete(ctx, "c-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func testPapers(t *testing.T, store *Store) {
	ctx := context.Background()

	mk := func(id, title string, state models.PaperState, authors, coauthors []string) *models.Paper {
		return &models.Paper{
			ID:        id,
			Title:     title,
			Abstract:  "abstract",
			Content:   "content",
			Authors:   authors,
			Coauthors: coauthors,
			State:     state,
			CreatedAt: testNow,
			UpdatedAt: testNow,
		}
	}

	papers := []*models.Paper{
		mk("p-1", "Zeta", models.PaperAccepted, []string{"a-1"}, nil),
		mk("p-2", "Alpha", models.PaperAccepted, []string{"a-2"}, []string{"a-1"}),
		mk("p-3", "Beta", models.PaperCreated, []string{"a-2"}, nil),
	}
	for _, p := range papers {
		if err := store.Papers.Create(ctx, p); err != nil {
			t.Fatalf("Failed to create paper %s: %v", p.ID, err)
		}
	}

	accepted, err := store.Papers.ListByState(ctx, models.PaperAccepted)
	if err != nil {
		t.Fatalf("Failed to list papers: %v", err)
	}
	if len(accepted) != 2 || accepted[0].Title != "Alpha" || accepted[1].Title != "Zeta" {
		t.Errorf("Expected Alpha, Zeta ordered by title")
	}

	fresh, err := store.Papers.GetByID(ctx, "p-3")
	if err != nil {
		t.Fatalf("Failed to get paper: %v", err)
	}
	if fresh.ConferenceID != "" || fresh.FinalSubmittedAt != nil || len(fresh.Coauthors) != 0 || fresh.Version != 1 {
		t.Errorf("Unset fields did not round-trip: %+v", fresh)
	}

	mine, err := store.Papers.ListByParticipant(ctx, "a-1")
	if err != nil {
		t.Fatalf("Failed to list papers: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("Expected 2 papers for a-1, got %d", len(mine))
	}

	p := papers[2]
	p.ConferenceID = "c-1"
	p.State = models.PaperApproved
	p.Reviewers = []string{"r-1", "r-2"}
	final := testNow.Add(time.Hour)
	p.FinalSubmittedAt = &final
	if err := store.Papers.Update(ctx, p); err != nil {
		t.Fatalf("Failed to update paper: %v", err)
	}

	inConf, err := store.Papers.ListByConference(ctx, "c-1", models.PaperApproved)
	if err != nil {
		t.Fatalf("Failed to list conference papers: %v", err)
	}
	if len(inConf) != 1 || inConf[0].ID != "p-3" || len(inConf[0].Reviewers) != 2 || inConf[0].FinalSubmittedAt == nil {
		t.Errorf("Unexpected conference papers: %+v", inConf)
	}

	stale := inConf[0]
	stale.Version--
	if err := store.Papers.Update(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("Expected ErrVersionConflict, got %v", err)
	}

	if err := store.Papers.Delete(ctx, "p-1"); err != nil {
		t.Fatalf("Failed to delete paper: %v", err)
	}
	if _, err := store.Papers.GetByID(ctx, "p-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Papers.Update(ctx, papers[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound updating deleted paper, got %v", err)
	}
}

func testReviews(t *testing.T, store *Store) {
	ctx := context.Background()

	first := &models.Review{ID: "r-1", PaperID: "p-2", ReviewerID: "u-3", Score: 7, Justification: "solid", CreatedAt: testNow, UpdatedAt: testNow}
	if err := store.Reviews.Create(ctx, first); err != nil {
		t.Fatalf("Failed to create review: %v", err)
	}

	second := &models.Review{ID: "r-2", PaperID: "p-2", ReviewerID: "u-1", Score: 2, Justification: "weak", CreatedAt: testNow, UpdatedAt: testNow}
	if err := store.Reviews.Create(ctx, second); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for second review, got %v", err)
	}

	reviews, err := store.Reviews.ListByPaper(ctx, "p-2")
	if err != nil {
		t.Fatalf("Failed to list reviews: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Score != 7 {
		t.Errorf("Expected only the first review, got %+v", reviews)
	}
}
