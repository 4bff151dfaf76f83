package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"search-digest/internal/models"
)

type stubProcessor struct {
	result *models.PipelineResult
}

func (p *stubProcessor) Process(_ context.Context, query string) *models.PipelineResult {
	res := *p.result
	res.OriginalQuery = query
	return &res
}

type stubQuota struct {
	remaining int
}

func (q *stubQuota) Remaining() int { return q.remaining }
func (q *stubQuota) Status() models.QuotaStatus {
	return models.QuotaStatus{
		Remaining:  q.remaining,
		UsedToday:  100 - q.remaining,
		DailyLimit: 100,
		ResetDate:  "2026-03-14",
	}
}

func completedResult() *models.PipelineResult {
	return &models.PipelineResult{
		Status:  models.StatusCompleted,
		Results: []models.ProcessedResult{},
		Videos:  []models.Video{},
	}
}

func newTestServer(result *models.PipelineResult) *Server {
	return NewServer(
		&stubProcessor{result: result},
		&stubQuota{remaining: 42},
		Credentials{LLMKey: true, SearchKey: true, SearchEngineID: false},
	)
}

func TestHandleSearch(t *testing.T) {
	srv := newTestServer(completedResult())

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"dissolved oxygen"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result models.PipelineResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if result.OriginalQuery != "dissolved oxygen" || result.Status != models.StatusCompleted {
		t.Errorf("result = %+v", result)
	}
}

func TestHandleSearchValidation(t *testing.T) {
	srv := newTestServer(completedResult())

	cases := map[string]string{
		"missing query": `{}`,
		"blank query":   `{"query":"   "}`,
		"too long":      `{"query":"` + strings.Repeat("q", 501) + `"}`,
		"not json":      `query=foo`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}

	t.Run("wrong method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}

func TestHandleQuota(t *testing.T) {
	srv := newTestServer(completedResult())

	req := httptest.NewRequest(http.MethodGet, "/api/quota", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var payload struct {
		Status    string             `json:"status"`
		Quota     models.QuotaStatus `json:"quota"`
		CanSearch bool               `json:"can_search"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if payload.Quota.Remaining != 42 || !payload.CanSearch {
		t.Errorf("payload = %+v", payload)
	}
}

func TestHandleHealthReportsCredentialPresence(t *testing.T) {
	srv := newTestServer(completedResult())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var payload struct {
		Status   string          `json:"status"`
		Services map[string]bool `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !payload.Services["llm_api"] || !payload.Services["search_api"] || payload.Services["search_engine_id"] {
		t.Errorf("services = %v", payload.Services)
	}
}

func TestSearchJobLifecycle(t *testing.T) {
	srv := newTestServer(completedResult())

	req := httptest.NewRequest(http.MethodPost, "/api/search/jobs", strings.NewReader(`{"query":"dissolved oxygen"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}

	var job SearchJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if job.ID == "" || job.Query != "dissolved oxygen" {
		t.Fatalf("job = %+v", job)
	}

	// The job runs in the background; poll until it settles.
	deadline := time.Now().Add(2 * time.Second)
	for {
		pollReq := httptest.NewRequest(http.MethodGet, "/api/search/jobs/"+job.ID, nil)
		pollRec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(pollRec, pollReq)
		if pollRec.Code != http.StatusOK {
			t.Fatalf("poll status = %d", pollRec.Code)
		}

		var polled SearchJob
		if err := json.Unmarshal(pollRec.Body.Bytes(), &polled); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if polled.Status == JobStatusComplete {
			if polled.Result == nil || polled.Result.Status != models.StatusCompleted {
				t.Fatalf("completed job missing result: %+v", polled)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, last status %q", polled.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSearchJobFailure(t *testing.T) {
	srv := newTestServer(&models.PipelineResult{
		Status: models.StatusError,
		Error:  "dns meltdown",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/search/jobs", strings.NewReader(`{"query":"q"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var job SearchJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		polled, ok := srv.jobs.GetJob(job.ID)
		if !ok {
			t.Fatal("job disappeared")
		}
		if polled.Status == JobStatusFailed {
			if polled.Error != "dns meltdown" {
				t.Errorf("error = %q", polled.Error)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never failed, last status %q", polled.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestJobNotFound(t *testing.T) {
	srv := newTestServer(completedResult())
	req := httptest.NewRequest(http.MethodGet, "/api/search/jobs/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
