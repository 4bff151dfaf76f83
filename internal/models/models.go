package models

// Pipeline status values for a single search request.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// FetchedDocument is the outcome of retrieving one result URL.
type FetchedDocument struct {
	URL         string `json:"url"`
	Text        string `json:"-"`
	WordCount   int    `json:"word_count"`
	Success     bool   `json:"success"`
	ErrorReason string `json:"error_reason,omitempty"`
}

// SummaryRecord is the structured summary of one document, or an error variant.
// Callers must check Err before reading the content fields.
type SummaryRecord struct {
	BriefDescription   string   `json:"brief_description,omitempty"`
	ConciseSummary     string   `json:"concise_summary,omitempty"`
	KeyFindings        []string `json:"key_findings,omitempty"`
	ActionableInsights []string `json:"actionable_insights,omitempty"`
	Err                string   `json:"error,omitempty"`
}

// IsError reports whether the record carries the error variant.
func (s SummaryRecord) IsError() bool { return s.Err != "" }

// ProcessedResult couples a search hit with its fetched content and summary.
type ProcessedResult struct {
	Title     string        `json:"title"`
	URL       string        `json:"url"`
	Content   string        `json:"content"`
	WordCount int           `json:"word_count"`
	Summary   SummaryRecord `json:"summary"`
}

// Video is a discovered related video.
type Video struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	VideoID   string `json:"video_id"`
	Thumbnail string `json:"thumbnail"`
}

// Stats aggregates counters for one pipeline run.
type Stats struct {
	SearchResultsFound int `json:"search_results_found"`
	ResultsProcessed   int `json:"results_processed"`
	TotalWordCount     int `json:"total_word_count"`
	VideosFound        int `json:"videos_found"`
}

// QuotaStatus is a point-in-time snapshot of the daily request budget.
type QuotaStatus struct {
	Remaining  int    `json:"remaining"`
	UsedToday  int    `json:"used_today"`
	DailyLimit int    `json:"daily_limit"`
	ResetDate  string `json:"reset_date"`
}

// PipelineResult is the full response for one search request. It is built once
// per query and never persisted.
type PipelineResult struct {
	OriginalQuery  string            `json:"original_query"`
	OptimizedQuery string            `json:"optimized_query,omitempty"`
	Explanation    string            `json:"explanation,omitempty"`
	SearchIntent   string            `json:"search_intent,omitempty"`
	Status         string            `json:"status"`
	Results        []ProcessedResult `json:"results"`
	Videos         []Video           `json:"videos"`
	Stats          Stats             `json:"stats"`
	QuotaExceeded  bool              `json:"quota_exceeded"`
	QuotaStatus    *QuotaStatus      `json:"quota_status,omitempty"`
	Error          string            `json:"error,omitempty"`
}
