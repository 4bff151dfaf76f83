package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"search-digest/internal/models"
)

const maxQueryLen = 500

// Processor runs the search pipeline for one query.
type Processor interface {
	Process(ctx context.Context, query string) *models.PipelineResult
}

// QuotaReporter exposes the daily budget to the quota endpoint.
type QuotaReporter interface {
	Remaining() int
	Status() models.QuotaStatus
}

// Credentials reports which required secrets are present, for the health
// endpoint. Values are booleans only; the secrets themselves never leave
// the config package.
type Credentials struct {
	LLMKey         bool
	SearchKey      bool
	SearchEngineID bool
}

type Server struct {
	mux      *http.ServeMux
	pipeline Processor
	quota    QuotaReporter
	creds    Credentials
	jobs     *JobManager
}

func NewServer(pipeline Processor, quota QuotaReporter, creds Credentials) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		pipeline: pipeline,
		quota:    quota,
		creds:    creds,
		jobs:     NewJobManager(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/search", s.handleSearch)
	s.mux.HandleFunc("/api/search/jobs", s.handleCreateJob)
	s.mux.HandleFunc("/api/search/jobs/", s.handleJobStatus)
	s.mux.HandleFunc("/api/quota", s.handleQuota)
	s.mux.HandleFunc("/api/health", s.handleHealth)
}

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	query, ok := s.readQuery(w, r)
	if !ok {
		return
	}

	result := s.pipeline.Process(r.Context(), query)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	query, ok := s.readQuery(w, r)
	if !ok {
		return
	}

	jobID, snapshot := s.jobs.CreateJob(query)
	go s.runSearchJob(jobID, query)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runSearchJob(jobID, query string) {
	s.jobs.MarkProcessing(jobID)

	// Detached from the request context: the job outlives the POST.
	result := s.pipeline.Process(context.Background(), query)
	if result.Status == models.StatusError {
		s.jobs.MarkFailed(jobID, result.Error, result)
		return
	}
	s.jobs.MarkComplete(jobID, result)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/search/jobs/")
	jobID = strings.Trim(jobID, "/")
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	job, ok := s.jobs.GetJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	status := s.quota.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"quota":      status,
		"can_search": status.Remaining > 0,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"services": map[string]bool{
			"llm_api":          s.creds.LLMKey,
			"search_api":       s.creds.SearchKey,
			"search_engine_id": s.creds.SearchEngineID,
		},
	})
}

// readQuery decodes and validates the request body, writing the error
// response itself when validation fails.
func (s *Server) readQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var payload searchRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return "", false
	}

	query := strings.TrimSpace(payload.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return "", false
	}
	if len(query) > maxQueryLen {
		writeError(w, http.StatusBadRequest, "query too long (max 500 characters)")
		return "", false
	}
	return query, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
