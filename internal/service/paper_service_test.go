package service_test

import (
	"context"
	"slices"
	"testing"

	"github.com/pwannenmacher/ConfReview/internal/models"
	"github.com/pwannenmacher/ConfReview/internal/service"
)

func TestCreatePaper(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	paper, err := env.papers.Create(ctx, env.author, service.CreatePaperInput{
		Title:     "Typed <i>workflows</i>",
		Abstract:  "We type workflows.",
		Content:   `<p onclick="steal()">Body</p>`,
		Coauthors: []string{env.fx.Coauthor.ID},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if paper.State != models.PaperCreated {
		t.Errorf("Expected CREATED, got %s", paper.State)
	}
	if !paper.IsAuthor(env.fx.Author.ID) || !paper.IsCoauthor(env.fx.Coauthor.ID) {
		t.Errorf("Unexpected authorship: authors=%v coauthors=%v", paper.Authors, paper.Coauthors)
	}
	if paper.Title != "Typed workflows" || paper.Content != "<p>Body</p>" {
		t.Errorf("Expected sanitized text, got title=%q content=%q", paper.Title, paper.Content)
	}

	tests := []struct {
		name string
		in   service.CreatePaperInput
		want service.ErrorKind
	}{
		{"missing title", service.CreatePaperInput{Abstract: "A"}, service.ErrorInvalidInput},
		{"missing abstract", service.CreatePaperInput{Title: "T"}, service.ErrorInvalidInput},
		{"coauthor is author", service.CreatePaperInput{Title: "T", Abstract: "A", Coauthors: []string{env.fx.Author.ID}}, service.ErrorInvalidInput},
		{"unknown coauthor", service.CreatePaperInput{Title: "T", Abstract: "A", Coauthors: []string{"ghost"}}, service.ErrorInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.papers.Create(ctx, env.author, tt.in)
			assertKind(t, err, tt.want)
		})
	}

	_, err = env.papers.Create(ctx, env.chair, service.CreatePaperInput{Title: "T", Abstract: "A"})
	assertKind(t, err, service.ErrorForbidden)
	_, err = env.papers.Create(ctx, nil, service.CreatePaperInput{Title: "T", Abstract: "A"})
	assertKind(t, err, service.ErrorUnauthenticated)
}

func TestSubmitRejectsEmptyContentInEveryState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	states := []models.ConferenceState{
		models.ConferenceCreated,
		models.ConferenceSubmission,
		models.ConferenceAssignment,
		models.ConferenceReview,
		models.ConferenceDecision,
		models.ConferenceFinalSubmission,
		models.ConferenceFinal,
	}

	for _, state := range states {
		t.Run(string(state), func(t *testing.T) {
			conf := env.newConference(t, "Conf "+string(state))
			env.advanceTo(t, conf.ID, state)

			paper := env.newPaper(t, "Empty "+string(state), "   ")
			_, err := env.papers.Submit(ctx, env.author, paper.ID, conf.ID)
			assertKind(t, err, service.ErrorInvalidInput)
			if got := env.paperState(t, paper.ID); got != models.PaperCreated {
				t.Errorf("Expected paper to stay CREATED, got %s", got)
			}
		})
	}
}

func TestSubmitScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)

	paper := env.newPaper(t, "Draft", "")
	_, err := env.papers.Submit(ctx, env.author, paper.ID, conf.ID)
	assertKind(t, err, service.ErrorInvalidInput)

	content := "X"
	if _, err := env.papers.Patch(ctx, env.author, paper.ID, service.PatchPaperInput{Content: &content}); err != nil {
		t.Fatalf("Patch() error = %v", err)
	}

	submitted, err := env.papers.Submit(ctx, env.author, paper.ID, conf.ID)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if submitted.State != models.PaperSubmitted || submitted.ConferenceID != conf.ID {
		t.Errorf("Expected SUBMITTED to %s, got %s to %q", conf.ID, submitted.State, submitted.ConferenceID)
	}
	if stored := env.conference(t, conf.ID); !stored.HasPaper(paper.ID) || len(stored.Papers) != 1 {
		t.Errorf("Expected conference papers to contain %s once, got %v", paper.ID, stored.Papers)
	}

	// A submitted paper cannot be submitted again or edited
	_, err = env.papers.Submit(ctx, env.author, paper.ID, conf.ID)
	assertKind(t, err, service.ErrorInvalidState)
	_, err = env.papers.Patch(ctx, env.author, paper.ID, service.PatchPaperInput{Content: &content})
	assertKind(t, err, service.ErrorInvalidState)
	if stored := env.conference(t, conf.ID); len(stored.Papers) != 1 {
		t.Errorf("Expected no duplicate paper entries, got %v", stored.Papers)
	}
}

func TestSubmitPreconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	late := env.newConference(t, "Late")
	env.advanceTo(t, late.ID, models.ConferenceFinalSubmission)
	paper := env.newPaper(t, "Paper", "Body")

	_, err := env.papers.Submit(ctx, env.author, paper.ID, late.ID)
	assertKind(t, err, service.ErrorInvalidState)

	_, err = env.papers.Submit(ctx, env.author, paper.ID, "missing")
	assertKind(t, err, service.ErrorNotFound)

	_, err = env.papers.Submit(ctx, env.outsider, paper.ID, late.ID)
	assertKind(t, err, service.ErrorForbidden)

	_, err = env.papers.Submit(ctx, env.member, paper.ID, late.ID)
	assertKind(t, err, service.ErrorForbidden)

	_, err = env.papers.Submit(ctx, env.author, "missing", late.ID)
	assertKind(t, err, service.ErrorNotFound)
}

func TestPatchPaper(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	paper := env.newPaper(t, "Original", "Body")

	title := "Revised"
	authors := []string{env.fx.Author.ID, env.fx.Outsider.ID}
	got, err := env.papers.Patch(ctx, env.author, paper.ID, service.PatchPaperInput{Title: &title, Authors: &authors})
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if got.Title != "Revised" || got.Abstract != paper.Abstract || len(got.Authors) != 2 {
		t.Errorf("Unexpected patch result: %+v", got)
	}

	empty := []string{}
	_, err = env.papers.Patch(ctx, env.author, paper.ID, service.PatchPaperInput{Authors: &empty})
	assertKind(t, err, service.ErrorInvalidInput)

	_, err = env.papers.Patch(ctx, env.coauthor, paper.ID, service.PatchPaperInput{Title: &title})
	assertKind(t, err, service.ErrorForbidden)
}

func TestAddCoauthors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	paper := env.newPaper(t, "Paper", "Body")

	got, err := env.papers.AddCoauthors(ctx, env.author, paper.ID, []string{env.fx.Coauthor.ID})
	if err != nil {
		t.Fatalf("AddCoauthors() error = %v", err)
	}
	if !got.IsCoauthor(env.fx.Coauthor.ID) {
		t.Errorf("Expected coauthor, got %v", got.Coauthors)
	}

	tests := []struct {
		name string
		ids  []string
	}{
		{"already coauthor", []string{env.fx.Outsider.ID, env.fx.Coauthor.ID}},
		{"already author", []string{env.fx.Author.ID}},
		{"repeated", []string{env.fx.Outsider.ID, env.fx.Outsider.ID}},
		{"unknown", []string{"ghost"}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.papers.AddCoauthors(ctx, env.author, paper.ID, tt.ids)
			assertKind(t, err, service.ErrorInvalidInput)

			stored, _ := env.store.Papers.GetByID(ctx, paper.ID)
			if len(stored.Coauthors) != 1 {
				t.Errorf("Rejected batch changed coauthors: %v", stored.Coauthors)
			}
		})
	}

	// Coauthors hold authorship and may extend the list themselves.
	// Surrounding whitespace is not part of an id.
	got, err = env.papers.AddCoauthors(ctx, env.coauthor, paper.ID, []string{" " + env.fx.Outsider.ID + "\t"})
	if err != nil {
		t.Fatalf("AddCoauthors() by coauthor error = %v", err)
	}
	if !slices.Equal(got.Coauthors, []string{env.fx.Coauthor.ID, env.fx.Outsider.ID}) {
		t.Errorf("Expected trimmed coauthor ids, got %q", got.Coauthors)
	}
}

func TestAssignReviewer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)
	paper := env.submittedPaper(t, conf.ID, "Paper")

	// Too early
	_, err := env.papers.AssignReviewer(ctx, env.chair, paper.ID, env.fx.Member.ID)
	assertKind(t, err, service.ErrorInvalidState)

	env.advanceTo(t, conf.ID, models.ConferenceAssignment)

	_, err = env.papers.AssignReviewer(ctx, env.otherChair, paper.ID, env.fx.Member.ID)
	assertKind(t, err, service.ErrorForbidden)
	_, err = env.papers.AssignReviewer(ctx, env.chair, paper.ID, env.fx.Author.ID)
	assertKind(t, err, service.ErrorInvalidInput)
	_, err = env.papers.AssignReviewer(ctx, env.chair, paper.ID, "ghost")
	assertKind(t, err, service.ErrorInvalidInput)

	// Both committee roles are assignable
	if _, err := env.papers.AssignReviewer(ctx, env.chair, paper.ID, env.fx.Member.ID); err != nil {
		t.Fatalf("AssignReviewer(member) error = %v", err)
	}
	_, err = env.papers.AssignReviewer(ctx, env.chair, paper.ID, env.fx.Member.ID)
	assertKind(t, err, service.ErrorConflict)

	got, err := env.papers.AssignReviewer(ctx, env.chair, paper.ID, env.fx.OtherChair.ID)
	if err != nil {
		t.Fatalf("AssignReviewer(chair) error = %v", err)
	}
	if len(got.Reviewers) != 2 {
		t.Fatalf("Expected 2 reviewers, got %v", got.Reviewers)
	}

	_, err = env.papers.AssignReviewer(ctx, env.chair, paper.ID, env.fx.Chair.ID)
	assertKind(t, err, service.ErrorInvalidState)

	stored, _ := env.store.Papers.GetByID(ctx, paper.ID)
	if len(stored.Reviewers) != 2 {
		t.Errorf("Reviewer set grew past the cap: %v", stored.Reviewers)
	}
}

func TestApproveAndReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)
	first := env.submittedPaper(t, conf.ID, "First")
	second := env.submittedPaper(t, conf.ID, "Second")
	unsubmitted := env.newPaper(t, "Unsubmitted", "Body")

	_, err := env.papers.Approve(ctx, env.chair, first.ID)
	assertKind(t, err, service.ErrorInvalidState)

	env.advanceTo(t, conf.ID, models.ConferenceDecision)

	_, err = env.papers.Approve(ctx, env.otherChair, first.ID)
	assertKind(t, err, service.ErrorForbidden)
	_, err = env.papers.Approve(ctx, env.member, first.ID)
	assertKind(t, err, service.ErrorForbidden)
	_, err = env.papers.Approve(ctx, env.chair, unsubmitted.ID)
	assertKind(t, err, service.ErrorInvalidState)

	// Rejected papers can still be approved
	if _, err := env.papers.Reject(ctx, env.chair, first.ID); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	_, err = env.papers.Reject(ctx, env.chair, first.ID)
	assertKind(t, err, service.ErrorInvalidState)
	got, err := env.papers.Approve(ctx, env.chair, first.ID)
	if err != nil {
		t.Fatalf("Approve() after reject error = %v", err)
	}
	if got.State != models.PaperApproved {
		t.Errorf("Expected APPROVED, got %s", got.State)
	}

	// Approved papers cannot be rejected or approved again
	_, err = env.papers.Reject(ctx, env.chair, first.ID)
	assertKind(t, err, service.ErrorInvalidState)
	_, err = env.papers.Approve(ctx, env.chair, first.ID)
	assertKind(t, err, service.ErrorInvalidState)

	if _, err := env.papers.Reject(ctx, env.chair, second.ID); err != nil {
		t.Errorf("Reject() error = %v", err)
	}
}

func TestFinalSubmitAndAcceptScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)
	paper := env.submittedPaper(t, conf.ID, "Paper")

	env.advanceTo(t, conf.ID, models.ConferenceDecision)
	if _, err := env.papers.Approve(ctx, env.chair, paper.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	// Final submission only opens in FINAL_SUBMISSION
	_, err := env.papers.FinalSubmit(ctx, env.author, paper.ID, "")
	assertKind(t, err, service.ErrorInvalidState)

	env.advanceTo(t, conf.ID, models.ConferenceFinalSubmission)
	_, err = env.papers.FinalSubmit(ctx, env.outsider, paper.ID, "")
	assertKind(t, err, service.ErrorForbidden)

	got, err := env.papers.FinalSubmit(ctx, env.author, paper.ID, "<p>Camera ready</p>")
	if err != nil {
		t.Fatalf("FinalSubmit() error = %v", err)
	}
	if got.State != models.PaperFinalSubmit || got.FinalSubmittedAt == nil || got.FinalContent != "<p>Camera ready</p>" {
		t.Errorf("Unexpected final submission: state=%s at=%v content=%q", got.State, got.FinalSubmittedAt, got.FinalContent)
	}
	_, err = env.papers.FinalSubmit(ctx, env.author, paper.ID, "")
	assertKind(t, err, service.ErrorInvalidState)

	// Accept waits for FINAL
	_, err = env.papers.Accept(ctx, env.chair, paper.ID)
	assertKind(t, err, service.ErrorInvalidState)

	env.advanceTo(t, conf.ID, models.ConferenceFinal)
	if got := env.paperState(t, paper.ID); got != models.PaperFinalSubmit {
		t.Fatalf("End must not touch FINAL_SUBMIT papers, got %s", got)
	}

	_, err = env.papers.Accept(ctx, env.otherChair, paper.ID)
	assertKind(t, err, service.ErrorForbidden)
	got, err = env.papers.Accept(ctx, env.chair, paper.ID)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if got.State != models.PaperAccepted {
		t.Errorf("Expected ACCEPTED, got %s", got.State)
	}
	_, err = env.papers.Accept(ctx, env.chair, paper.ID)
	assertKind(t, err, service.ErrorInvalidState)
}

func TestWithdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)

	paper := env.newPaper(t, "Paper", "Body")
	if _, err := env.papers.AddCoauthors(ctx, env.author, paper.ID, []string{env.fx.Coauthor.ID}); err != nil {
		t.Fatalf("AddCoauthors() error = %v", err)
	}
	if _, err := env.papers.Submit(ctx, env.author, paper.ID, conf.ID); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	assertKind(t, env.papers.Withdraw(ctx, env.coauthor, paper.ID), service.ErrorForbidden)
	assertKind(t, env.papers.Withdraw(ctx, env.outsider, paper.ID), service.ErrorForbidden)
	assertKind(t, env.papers.Withdraw(ctx, env.chair, paper.ID), service.ErrorForbidden)

	if err := env.papers.Withdraw(ctx, env.author, paper.ID); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if _, err := env.store.Papers.GetByID(ctx, paper.ID); err == nil {
		t.Error("Expected paper to be deleted")
	}
	if stored := env.conference(t, conf.ID); stored.HasPaper(paper.ID) {
		t.Errorf("Expected paper removed from conference, got %v", stored.Papers)
	}
	assertKind(t, env.papers.Withdraw(ctx, env.author, paper.ID), service.ErrorNotFound)
}

func TestWithdrawBlockedAfterFinalSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)
	paper := env.submittedPaper(t, conf.ID, "Paper")
	env.advanceTo(t, conf.ID, models.ConferenceDecision)
	if _, err := env.papers.Approve(ctx, env.chair, paper.ID); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	env.advanceTo(t, conf.ID, models.ConferenceFinalSubmission)
	if _, err := env.papers.FinalSubmit(ctx, env.author, paper.ID, ""); err != nil {
		t.Fatalf("FinalSubmit() error = %v", err)
	}

	assertKind(t, env.papers.Withdraw(ctx, env.author, paper.ID), service.ErrorInvalidState)
}

func TestPaperQueries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)

	zeta := env.submittedPaper(t, conf.ID, "Zeta graphs")
	alpha := env.submittedPaper(t, conf.ID, "Alpha graphs")
	draft := env.newPaper(t, "Graph draft", "Body")
	if _, err := env.papers.AddCoauthors(ctx, env.author, draft.ID, []string{env.fx.Coauthor.ID}); err != nil {
		t.Fatalf("AddCoauthors() error = %v", err)
	}

	env.advanceTo(t, conf.ID, models.ConferenceDecision)
	for _, p := range []string{zeta.ID, alpha.ID} {
		if _, err := env.papers.Approve(ctx, env.chair, p); err != nil {
			t.Fatalf("Approve() error = %v", err)
		}
	}
	env.advanceTo(t, conf.ID, models.ConferenceFinalSubmission)
	for _, p := range []string{zeta.ID, alpha.ID} {
		if _, err := env.papers.FinalSubmit(ctx, env.author, p, ""); err != nil {
			t.Fatalf("FinalSubmit() error = %v", err)
		}
	}
	env.advanceTo(t, conf.ID, models.ConferenceFinal)
	if _, err := env.papers.Accept(ctx, env.chair, zeta.ID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if _, err := env.papers.Accept(ctx, env.chair, alpha.ID); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	// Public search works anonymously and only sees accepted papers
	public, err := env.papers.SearchPublic(ctx, nil, service.PublicSearch{Title: "GRAPHS"})
	if err != nil {
		t.Fatalf("SearchPublic() error = %v", err)
	}
	if len(public) != 2 || public[0].ID != alpha.ID || public[1].ID != zeta.ID {
		t.Errorf("Expected accepted papers sorted by title, got %+v", public)
	}

	public, err = env.papers.SearchPublic(ctx, nil, service.PublicSearch{Authors: []string{env.fx.Author.ID, env.fx.Outsider.ID}})
	if err != nil {
		t.Fatalf("SearchPublic() error = %v", err)
	}
	if len(public) != 0 {
		t.Errorf("Expected author filter to require every author, got %d results", len(public))
	}

	committee, err := env.papers.SearchForCommittee(ctx, env.member, service.CommitteeSearch{Content: "alpha"})
	if err != nil {
		t.Fatalf("SearchForCommittee() error = %v", err)
	}
	if len(committee) != 1 || committee[0].Content == "" {
		t.Errorf("Expected one committee result with content, got %+v", committee)
	}
	_, err = env.papers.SearchForCommittee(ctx, env.author, service.CommitteeSearch{})
	assertKind(t, err, service.ErrorForbidden)

	mine, err := env.papers.ListMine(ctx, env.coauthor, "", "")
	if err != nil {
		t.Fatalf("ListMine() error = %v", err)
	}
	if len(mine) != 1 || mine[0].ID != draft.ID {
		t.Errorf("Expected the coauthored draft, got %d papers", len(mine))
	}
	mine, err = env.papers.ListMine(ctx, env.author, "graph", "")
	if err != nil {
		t.Fatalf("ListMine() error = %v", err)
	}
	if len(mine) != 3 {
		t.Errorf("Expected 3 papers for author, got %d", len(mine))
	}

	// Accepted papers are readable by anyone signed in, drafts only by their authors
	if _, err := env.papers.Get(ctx, env.outsider, zeta.ID); err != nil {
		t.Errorf("Get() accepted paper error = %v", err)
	}
	_, err = env.papers.Get(ctx, env.outsider, draft.ID)
	assertKind(t, err, service.ErrorForbidden)
	_, err = env.papers.Get(ctx, nil, draft.ID)
	assertKind(t, err, service.ErrorUnauthenticated)
	if _, err := env.papers.Get(ctx, env.coauthor, draft.ID); err != nil {
		t.Errorf("Get() by coauthor error = %v", err)
	}
}

func TestCommitteeCanReadSubmittedPapers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conf := env.newConference(t, "ICSE")
	env.advanceTo(t, conf.ID, models.ConferenceSubmission)
	paper := env.submittedPaper(t, conf.ID, "Paper")

	if _, err := env.papers.Get(ctx, env.member, paper.ID); err != nil {
		t.Errorf("Get() by committee member error = %v", err)
	}
	_, err := env.papers.Get(ctx, env.otherChair, paper.ID)
	assertKind(t, err, service.ErrorForbidden)
}
