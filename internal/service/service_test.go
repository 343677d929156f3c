package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/auth"
	"github.com/pwannenmacher/ConfReview/internal/models"
	"github.com/pwannenmacher/ConfReview/internal/repository"
	"github.com/pwannenmacher/ConfReview/internal/service"
	"github.com/pwannenmacher/ConfReview/internal/testutil"
)

// testClock is a settable clock shared by services and token issuing
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store   *repository.Store
	fx      *testutil.Fixtures
	clock   *testClock
	tokens  *auth.Service
	auth    *service.AuthService
	confs   *service.ConferenceService
	papers  *service.PaperService
	reviews *service.ReviewService

	chair, otherChair, member, author, coauthor, outsider *access.Identity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, repository.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, store *repository.Store) *testEnv {
	t.Helper()

	clock := &testClock{now: testutil.FixtureTime}
	var ids atomic.Int64
	opts := service.Options{
		Now: clock.Now,
		NewID: func() string {
			return fmt.Sprintf("id-%d", ids.Add(1))
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	tokens := auth.NewService(testutil.JWTConfig()).WithClock(clock.Now)
	fx := testutil.SetupFixtures(t, store.Users)

	return &testEnv{
		store:      store,
		fx:         fx,
		clock:      clock,
		tokens:     tokens,
		auth:       service.NewAuthService(store.Users, tokens, opts),
		confs:      service.NewConferenceService(store, opts),
		papers:     service.NewPaperService(store, opts),
		reviews:    service.NewReviewService(store, opts),
		chair:      testutil.Identity(fx.Chair),
		otherChair: testutil.Identity(fx.OtherChair),
		member:     testutil.Identity(fx.Member),
		author:     testutil.Identity(fx.Author),
		coauthor:   testutil.Identity(fx.Coauthor),
		outsider:   testutil.Identity(fx.Outsider),
	}
}

func assertKind(t *testing.T, err error, want service.ErrorKind) {
	t.Helper()

	if err == nil {
		t.Fatalf("Expected %s error, got nil", want)
	}
	if got := service.KindOf(err); got != want {
		t.Fatalf("Expected %s error, got %s: %v", want, got, err)
	}
}

// newConference creates a conference chaired by chair with member on the committee
func (e *testEnv) newConference(t *testing.T, name string) *models.Conference {
	t.Helper()

	conf, err := e.confs.Create(context.Background(), e.chair, service.CreateConferenceInput{
		Name:        name,
		Description: "A conference on " + name,
		Members:     []string{e.fx.Member.ID},
	})
	if err != nil {
		t.Fatalf("Failed to create conference: %v", err)
	}
	return conf
}

// advanceTo drives the conference forward until it reaches state
func (e *testEnv) advanceTo(t *testing.T, conferenceID string, state models.ConferenceState) {
	t.Helper()
	ctx := context.Background()

	steps := map[models.ConferenceState]func(context.Context, *access.Identity, string) (*models.Conference, error){
		models.ConferenceCreated:    e.confs.StartSubmission,
		models.ConferenceSubmission: e.confs.StartAssignment,
		models.ConferenceAssignment: e.confs.StartReview,
		models.ConferenceReview:     e.confs.StartDecision,
		models.ConferenceDecision:   e.confs.StartFinalSubmission,
	}

	for {
		conf, err := e.store.Conferences.GetByID(ctx, conferenceID)
		if err != nil {
			t.Fatalf("Failed to load conference: %v", err)
		}
		if conf.State == state {
			return
		}
		if conf.State == models.ConferenceFinalSubmission {
			if _, err := e.confs.End(ctx, e.chair, conferenceID); err != nil {
				t.Fatalf("Failed to end conference: %v", err)
			}
			continue
		}
		step, ok := steps[conf.State]
		if !ok {
			t.Fatalf("Cannot advance conference from %s to %s", conf.State, state)
		}
		if _, err := step(ctx, e.chair, conferenceID); err != nil {
			t.Fatalf("Failed to advance conference from %s: %v", conf.State, err)
		}
	}
}

// newPaper creates a paper by author with the given title and content
func (e *testEnv) newPaper(t *testing.T, title, content string) *models.Paper {
	t.Helper()

	paper, err := e.papers.Create(context.Background(), e.author, service.CreatePaperInput{
		Title:    title,
		Abstract: "About " + title,
		Content:  content,
	})
	if err != nil {
		t.Fatalf("Failed to create paper: %v", err)
	}
	return paper
}

// submittedPaper creates a paper and submits it to the conference
func (e *testEnv) submittedPaper(t *testing.T, conferenceID, title string) *models.Paper {
	t.Helper()

	paper := e.newPaper(t, title, "Body of "+title)
	submitted, err := e.papers.Submit(context.Background(), e.author, paper.ID, conferenceID)
	if err != nil {
		t.Fatalf("Failed to submit paper: %v", err)
	}
	return submitted
}

func (e *testEnv) paperState(t *testing.T, paperID string) models.PaperState {
	t.Helper()

	p, err := e.store.Papers.GetByID(context.Background(), paperID)
	if err != nil {
		t.Fatalf("Failed to load paper: %v", err)
	}
	return p.State
}

func (e *testEnv) conference(t *testing.T, conferenceID string) *models.Conference {
	t.Helper()

	c, err := e.store.Conferences.GetByID(context.Background(), conferenceID)
	if err != nil {
		t.Fatalf("Failed to load conference: %v", err)
	}
	return c
}

// flakyPapers fails updates of one paper while fail is set
type flakyPapers struct {
	repository.PaperRepository
	failOn string
	fail   bool
}

func (f *flakyPapers) Update(ctx context.Context, p *models.Paper) error {
	if f.fail && p.ID == f.failOn {
		return errors.New("connection reset by peer")
	}
	return f.PaperRepository.Update(ctx, p)
}

// lockstepConferences holds every armed GetByID until n loads have
// happened, so n callers work on the same version of a conference
type lockstepConferences struct {
	repository.ConferenceRepository
	mu    sync.Mutex
	loads *sync.WaitGroup
}

func (l *lockstepConferences) arm(n int) {
	wg := &sync.WaitGroup{}
	wg.Add(n)
	l.mu.Lock()
	l.loads = wg
	l.mu.Unlock()
}

func (l *lockstepConferences) disarm() {
	l.mu.Lock()
	l.loads = nil
	l.mu.Unlock()
}

func (l *lockstepConferences) GetByID(ctx context.Context, id string) (*models.Conference, error) {
	conf, err := l.ConferenceRepository.GetByID(ctx, id)
	l.mu.Lock()
	wg := l.loads
	l.mu.Unlock()
	if wg != nil {
		wg.Done()
		wg.Wait()
	}
	return conf, err
}

func TestServiceErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want service.ErrorKind
	}{
		{service.NewUnauthenticatedError("x"), service.ErrorUnauthenticated},
		{service.NewForbiddenError("x"), service.ErrorForbidden},
		{service.NewNotFoundError("x"), service.ErrorNotFound},
		{service.NewConflictError("x"), service.ErrorConflict},
		{service.NewInvalidStateError("x"), service.ErrorInvalidState},
		{service.NewInvalidInputError("x"), service.ErrorInvalidInput},
		{service.NewInternalError(errors.New("boom")), service.ErrorInternal},
		{errors.New("untyped"), service.ErrorInternal},
		{fmt.Errorf("wrapped: %w", service.NewConflictError("x")), service.ErrorConflict},
	}

	for _, tt := range tests {
		if got := service.KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}

	internal := service.NewInternalError(errors.New("db password leaked"))
	if internal.Error() != "internal error" {
		t.Errorf("Internal error message leaks cause: %q", internal.Error())
	}
}
