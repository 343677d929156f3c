package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/pwannenmacher/ConfReview/docs"
	"github.com/pwannenmacher/ConfReview/internal/access"
	"github.com/pwannenmacher/ConfReview/internal/auth"
	"github.com/pwannenmacher/ConfReview/internal/config"
	"github.com/pwannenmacher/ConfReview/internal/handlers"
	"github.com/pwannenmacher/ConfReview/internal/metrics"
	"github.com/pwannenmacher/ConfReview/internal/models"
	"github.com/pwannenmacher/ConfReview/internal/repository"
	"github.com/pwannenmacher/ConfReview/internal/service"
	"github.com/pwannenmacher/ConfReview/internal/testutil"
)

type testServer struct {
	handler http.Handler
	auth    *testutil.AuthHelper
	fx      *testutil.Fixtures
	store   *repository.Store

	chair, member, author, outsider *access.Identity
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

func newTestServer(t *testing.T, store *repository.Store) *testServer {
	t.Helper()

	helper := testutil.NewAuthHelper()
	fx := testutil.SetupFixtures(t, store.Users)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	opts := service.Options{Metrics: collector}

	h := handlers.NewRouter(handlers.RouterConfig{
		Auth:        service.NewAuthService(store.Users, helper.Tokens, opts),
		Conferences: service.NewConferenceService(store, opts),
		Papers:      service.NewPaperService(store, opts),
		Reviews:     service.NewReviewService(store, opts),
		CORS:        &config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Metrics:     collector,
		Gatherer:    reg,
		Health:      stubHealth{},
		Version:     "test",
	})

	return &testServer{
		handler:  h,
		auth:     helper,
		fx:       fx,
		store:    store,
		chair:    testutil.Identity(fx.Chair),
		member:   testutil.Identity(fx.Member),
		author:   testutil.Identity(fx.Author),
		outsider: testutil.Identity(fx.Outsider),
	}
}

// do sends a request as id; a nil id sends it anonymously
func (s *testServer) do(t *testing.T, method, path string, body any, id *access.Identity) *testutil.TestResponse {
	t.Helper()

	req := s.auth.CreateAuthenticatedRequest(t, method, path, body, id)
	rr := testutil.NewTestResponse()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func TestPaperWorkflowOverHTTP(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryStore())

	// Create conference
	rr := s.do(t, http.MethodPost, "/api/v1/conferences", map[string]any{
		"name":        "ICSE",
		"description": "Software engineering",
		"members":     []string{s.fx.Member.ID},
	}, s.chair)
	rr.AssertStatusCreated(t)
	var conf models.Conference
	rr.DecodeJSON(t, &conf)
	if conf.State != models.ConferenceCreated || len(conf.Papers) != 0 {
		t.Fatalf("Unexpected conference: %+v", conf)
	}
	confPath := "/api/v1/conferences/" + conf.ID

	s.do(t, http.MethodPost, confPath+"/start-submission", nil, s.chair).AssertStatusOK(t)

	// Create and submit two papers
	submit := func(title string) models.Paper {
		t.Helper()
		rr := s.do(t, http.MethodPost, "/api/v1/papers", map[string]any{
			"title":    title,
			"abstract": "About " + title,
			"content":  "Body of " + title,
		}, s.author)
		rr.AssertStatusCreated(t)
		var p models.Paper
		rr.DecodeJSON(t, &p)

		rr = s.do(t, http.MethodPost, "/api/v1/papers/"+p.ID+"/submit", map[string]string{"conference_id": conf.ID}, s.author)
		rr.AssertStatusOK(t)
		rr.DecodeJSON(t, &p)
		if p.State != models.PaperSubmitted {
			t.Fatalf("Expected SUBMITTED, got %s", p.State)
		}
		return p
	}
	kept := submit("Alpha")
	dropped := submit("Beta")

	s.do(t, http.MethodPost, confPath+"/start-assignment", nil, s.chair).AssertStatusOK(t)
	s.do(t, http.MethodPost, "/api/v1/papers/"+kept.ID+"/reviewers", map[string]string{"reviewer_id": s.fx.Member.ID}, s.chair).AssertStatusOK(t)

	s.do(t, http.MethodPost, confPath+"/start-review", nil, s.chair).AssertStatusOK(t)
	rr = s.do(t, http.MethodPost, "/api/v1/papers/"+kept.ID+"/reviews", map[string]any{"score": 8, "justification": "Convincing"}, s.member)
	rr.AssertStatusCreated(t)
	s.do(t, http.MethodPost, "/api/v1/papers/"+kept.ID+"/reviews", map[string]any{"score": 3, "justification": "Again"}, s.chair).AssertStatus(t, http.StatusConflict)

	rr = s.do(t, http.MethodGet, "/api/v1/papers/"+kept.ID+"/reviews", nil, s.chair)
	rr.AssertStatusOK(t)
	var views []models.ReviewView
	rr.DecodeJSON(t, &views)
	if len(views) != 1 || views[0].Reviewer != "Mia Member" {
		t.Errorf("Unexpected reviews: %+v", views)
	}

	s.do(t, http.MethodPost, confPath+"/decide", nil, s.chair).AssertStatusOK(t)
	s.do(t, http.MethodPost, "/api/v1/papers/"+kept.ID+"/approve", nil, s.chair).AssertStatusOK(t)
	s.do(t, http.MethodPost, "/api/v1/papers/"+dropped.ID+"/approve", nil, s.chair).AssertStatusOK(t)

	s.do(t, http.MethodPost, confPath+"/start-final-submission", nil, s.chair).AssertStatusOK(t)
	s.do(t, http.MethodPost, "/api/v1/papers/"+kept.ID+"/final-submit", map[string]string{"content": "Camera ready"}, s.author).AssertStatusOK(t)

	// End rejects approved papers without a final version
	rr = s.do(t, http.MethodPost, confPath+"/end", nil, s.chair)
	rr.AssertStatusOK(t)
	var report service.FinalizationReport
	rr.DecodeJSON(t, &report)
	if len(report.Rejected) != 1 || report.Rejected[0] != dropped.ID || len(report.Accepted) != 0 {
		t.Errorf("Unexpected finalization report: %+v", report)
	}
	if report.Conference == nil || report.Conference.State != models.ConferenceFinal {
		t.Errorf("Expected report to carry the FINAL conference, got %+v", report.Conference)
	}

	s.do(t, http.MethodPost, "/api/v1/papers/"+kept.ID+"/accept", nil, s.chair).AssertStatusOK(t)

	// Accepted papers are public, without their content
	rr = s.do(t, http.MethodGet, "/api/v1/papers/search?title=alp", nil, nil)
	rr.AssertStatusOK(t)
	var public []map[string]any
	rr.DecodeJSON(t, &public)
	if len(public) != 1 || public[0]["id"] != kept.ID {
		t.Fatalf("Unexpected public search result: %v", public)
	}
	if _, ok := public[0]["content"]; ok {
		t.Error("Public search must not expose content")
	}

	rr = s.do(t, http.MethodGet, "/api/v1/papers/committee?content=body+of", nil, s.member)
	rr.AssertStatusOK(t)
	var committee []models.CommitteePaper
	rr.DecodeJSON(t, &committee)
	if len(committee) != 1 {
		t.Errorf("Expected one committee result, got %d", len(committee))
	}
}

func TestStatusMapping(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryStore())

	rr := s.do(t, http.MethodPost, "/api/v1/conferences", map[string]any{"name": "ICSE", "description": "SE"}, s.chair)
	rr.AssertStatusCreated(t)
	var conf models.Conference
	rr.DecodeJSON(t, &conf)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		id     *access.Identity
		want   int
	}{
		{"anonymous create", http.MethodPost, "/api/v1/papers", map[string]string{"title": "T", "abstract": "A"}, nil, http.StatusUnauthorized},
		{"wrong role", http.MethodPost, "/api/v1/papers", map[string]string{"title": "T", "abstract": "A"}, s.member, http.StatusForbidden},
		{"not a chair of this conference", http.MethodPost, "/api/v1/conferences/" + conf.ID + "/start-submission", nil, testutil.Identity(s.fx.OtherChair), http.StatusForbidden},
		{"unknown conference", http.MethodGet, "/api/v1/conferences/missing", nil, s.chair, http.StatusNotFound},
		{"duplicate name", http.MethodPost, "/api/v1/conferences", map[string]any{"name": "ICSE", "description": "Again"}, s.chair, http.StatusConflict},
		{"wrong state", http.MethodPost, "/api/v1/conferences/" + conf.ID + "/start-review", nil, s.chair, http.StatusBadRequest},
		{"invalid input", http.MethodPost, "/api/v1/conferences", map[string]any{"name": "", "description": "SE"}, s.chair, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/conferences", "{not json", s.chair, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/v1/nothing", nil, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.do(t, tt.method, tt.path, tt.body, tt.id).AssertStatus(t, tt.want)
		})
	}
}

func TestErrorBodyCarriesKind(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryStore())

	rr := s.do(t, http.MethodGet, "/api/v1/conferences/missing", nil, s.chair)
	rr.AssertStatusNotFound(t)

	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	rr.DecodeJSON(t, &body)
	if body.Kind != string(service.ErrorNotFound) || body.Error == "" {
		t.Errorf("Unexpected error body: %+v", body)
	}
}

func TestUsersOverHTTP(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryStore())

	rr := s.do(t, http.MethodPost, "/api/v1/users/signup", map[string]string{
		"username": "newbie",
		"password": "password123",
		"role":     "author",
	}, nil)
	rr.AssertStatusCreated(t)
	if strings.Contains(rr.Body.String(), "password") {
		t.Error("Signup response must not contain the password hash")
	}

	rr = s.do(t, http.MethodPost, "/api/v1/users/login", map[string]string{"username": "newbie", "password": "wrong-password"}, nil)
	rr.AssertStatusUnauthorized(t)

	rr = s.do(t, http.MethodPost, "/api/v1/users/login", map[string]string{"username": "newbie", "password": "password123"}, nil)
	rr.AssertStatusOK(t)
	var result service.AuthResult
	rr.DecodeJSON(t, &result)
	if result.Token == "" {
		t.Fatal("Expected a token")
	}

	req := s.auth.CreateAuthenticatedRequest(t, http.MethodGet, "/api/v1/papers/mine", nil, nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	mine := testutil.NewTestResponse()
	s.handler.ServeHTTP(mine, req)
	mine.AssertStatusOK(t)
	if strings.TrimSpace(mine.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %s", mine.Body.String())
	}

	req = s.auth.CreateAuthenticatedRequest(t, http.MethodGet, "/api/v1/users/me", nil, nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	me := testutil.NewTestResponse()
	s.handler.ServeHTTP(me, req)
	me.AssertStatusOK(t)
	var profile map[string]any
	me.DecodeJSON(t, &profile)
	if profile["username"] != "newbie" || profile["display_name"] != "newbie" {
		t.Errorf("Unexpected profile: %v", profile)
	}
	s.do(t, http.MethodGet, "/api/v1/users/me", nil, nil).AssertStatusUnauthorized(t)

	rr = s.do(t, http.MethodPost, "/api/v1/users/connect-as-visitor", nil, nil)
	rr.AssertStatusOK(t)
	var visitor service.AuthResult
	rr.DecodeJSON(t, &visitor)
	if len(visitor.Roles) != 1 || visitor.Roles[0] != models.RoleVisitor {
		t.Errorf("Unexpected visitor roles: %v", visitor.Roles)
	}

	// Visitors may search but not create
	req = s.auth.CreateAuthenticatedRequest(t, http.MethodPost, "/api/v1/papers", map[string]string{"title": "T", "abstract": "A"}, nil)
	req.Header.Set("Authorization", "Bearer "+visitor.Token)
	denied := testutil.NewTestResponse()
	s.handler.ServeHTTP(denied, req)
	denied.AssertStatusForbidden(t)
}

func TestInvalidTokenIsRejected(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryStore())

	req := s.auth.CreateAuthenticatedRequest(t, http.MethodGet, "/api/v1/papers/search", nil, nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := testutil.NewTestResponse()
	s.handler.ServeHTTP(rr, req)
	rr.AssertStatusUnauthorized(t)

	// Tokens of deleted accounts no longer resolve
	ghost := &access.Identity{UserID: "ghost", Username: "ghost", Roles: access.NewRoleSet(models.RoleAuthor)}
	s.do(t, http.MethodGet, "/api/v1/papers/mine", nil, ghost).AssertStatusUnauthorized(t)

	// Tokens signed with another secret are malformed
	other := auth.NewService(&config.JWTConfig{Secret: "another-secret", Expiration: testutil.JWTConfig().Expiration, Issuer: "confreview-test"})
	token, err := other.GenerateToken(s.author)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	req = s.auth.CreateAuthenticatedRequest(t, http.MethodGet, "/api/v1/papers/mine", nil, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = testutil.NewTestResponse()
	s.handler.ServeHTTP(rr, req)
	rr.AssertStatusUnauthorized(t)
}

func TestLogoutOverHTTP(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryStore())

	token := s.auth.GenerateToken(t, s.author)
	send := func(method, path string) *testutil.TestResponse {
		req := s.auth.CreateAuthenticatedRequest(t, method, path, nil, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.NewTestResponse()
		s.handler.ServeHTTP(rr, req)
		return rr
	}

	send(http.MethodGet, "/api/v1/papers/mine").AssertStatusOK(t)
	send(http.MethodPost, "/api/v1/users/logout").AssertStatus(t, http.StatusNoContent)
	send(http.MethodGet, "/api/v1/papers/mine").AssertStatusUnauthorized(t)
}

func TestSwaggerDocs(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryStore())

	rr := s.do(t, http.MethodGet, "/swagger/doc.json", nil, nil)
	rr.AssertStatusOK(t)

	var doc struct {
		Info  struct{ Title string } `json:"info"`
		Paths map[string]any         `json:"paths"`
	}
	rr.DecodeJSON(t, &doc)
	if doc.Info.Title != "ConfReview API" {
		t.Errorf("Unexpected title %q", doc.Info.Title)
	}
	for _, path := range []string{"/users/login", "/conferences/{id}/end", "/papers/{id}/submit", "/papers/{id}/reviews"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Errorf("Expected %s in the API description", path)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, repository.NewMemoryStore())

	rr := s.do(t, http.MethodGet, "/health", nil, nil)
	rr.AssertStatusOK(t)
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("Expected security headers on every response")
	}

	rr = s.do(t, http.MethodGet, "/metrics", nil, nil)
	rr.AssertStatusOK(t)
	if !strings.Contains(rr.Body.String(), "confreview_http_requests_total") {
		t.Errorf("Expected request counter in metrics output")
	}

	unhealthy := handlers.NewRouter(handlers.RouterConfig{Health: stubHealth{err: errors.New("down")}})
	down := testutil.NewTestResponse()
	unhealthy.ServeHTTP(down, s.auth.CreateAuthenticatedRequest(t, http.MethodGet, "/health", nil, nil))
	down.AssertStatus(t, http.StatusServiceUnavailable)
}
