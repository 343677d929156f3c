package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pwannenmacher/ConfReview/internal/models"
)

func TestRecordTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordConferenceTransition(models.ConferenceCreated, models.ConferenceSubmission)
	c.RecordConferenceTransition(models.ConferenceCreated, models.ConferenceSubmission)
	c.RecordPaperTransition(models.PaperCreated, models.PaperSubmitted)
	c.RecordFinalizationStep(StepApplied)

	if v := testutil.ToFloat64(c.conferenceTransitions.WithLabelValues("CREATED", "SUBMISSION")); v != 2 {
		t.Errorf("conference transitions = %v, want 2", v)
	}
	if v := testutil.ToFloat64(c.paperTransitions.WithLabelValues("CREATED", "SUBMITTED")); v != 1 {
		t.Errorf("paper transitions = %v, want 1", v)
	}
	if v := testutil.ToFloat64(c.finalizationSteps.WithLabelValues(StepApplied)); v != 1 {
		t.Errorf("finalization steps = %v, want 1", v)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/papers/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/papers/abc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if v := testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/papers/{id}", "404")); v != 1 {
		t.Errorf("http requests = %v, want 1", v)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordFinalizationStep(StepSkipped)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `confreview_finalization_steps_total{outcome="skipped"} 1`) {
		t.Errorf("metrics output missing finalization counter:\n%s", body)
	}
}
