package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"search-digest/internal/models"
	"search-digest/pkg/websearch"
)

const (
	minContentWords = 50
	maxVideos       = 3
	// Video discovery needs headroom beyond the main search's budget.
	videoQuotaFloor = 2
)

// QueryOptimizer rewrites the raw question; it never fails.
type QueryOptimizer interface {
	Optimize(ctx context.Context, rawQuery string) (optimized, explanation, intent string)
}

// ContentFetcher retrieves a batch of URLs into per-URL records.
type ContentFetcher interface {
	Batch(ctx context.Context, urls []string, workers int) []models.FetchedDocument
}

// DocumentSummarizer summarizes one fetched document.
type DocumentSummarizer interface {
	SummarizeDocument(ctx context.Context, text string, wordCount int) models.SummaryRecord
}

// QuotaSource exposes the pipeline's view of the daily budget.
type QuotaSource interface {
	Remaining() int
	Status() models.QuotaStatus
}

// Pipeline composes optimization, search, fetch and summarization into one
// end-to-end run per request.
type Pipeline struct {
	optimizer  QueryOptimizer
	searcher   websearch.Searcher
	fetcher    ContentFetcher
	summarizer DocumentSummarizer
	quota      QuotaSource

	numPages     int
	maxResults   int
	fetchWorkers int
}

func NewPipeline(
	optimizer QueryOptimizer,
	searcher websearch.Searcher,
	fetcher ContentFetcher,
	summarizer DocumentSummarizer,
	quota QuotaSource,
	numPages, maxResults int,
) *Pipeline {
	if numPages < 1 {
		numPages = 1
	}
	if maxResults < 1 {
		maxResults = 3
	}
	return &Pipeline{
		optimizer:    optimizer,
		searcher:     searcher,
		fetcher:      fetcher,
		summarizer:   summarizer,
		quota:        quota,
		numPages:     numPages,
		maxResults:   maxResults,
		fetchWorkers: 1,
	}
}

// SetFetchWorkers switches the content-fetch stage to bounded concurrency.
// The default of 1 keeps the whole pipeline sequential.
func (p *Pipeline) SetFetchWorkers(workers int) {
	if workers < 1 {
		workers = 1
	}
	p.fetchWorkers = workers
}

// Process runs the full pipeline for one user query. It always returns a
// result with a populated status and never panics the caller.
func (p *Pipeline) Process(ctx context.Context, userQuery string) (result *models.PipelineResult) {
	result = &models.PipelineResult{
		OriginalQuery: userQuery,
		Status:        models.StatusProcessing,
		Results:       []models.ProcessedResult{},
		Videos:        []models.Video{},
	}

	// Anything unexpected surfaces as an error status, never a crash.
	defer func() {
		if r := recover(); r != nil {
			result.Status = models.StatusError
			result.Error = fmt.Sprintf("unexpected error: %v", r)
		}
	}()

	// Step 1: the optimizer has its own fallback, so this only degrades
	// if the optimizer itself blows up.
	optimized, explanation, intent := p.safeOptimize(ctx, userQuery)
	result.OptimizedQuery = optimized
	result.Explanation = explanation
	result.SearchIntent = intent

	// Step 2: refuse to start against an exhausted budget.
	if p.quota.Remaining() < 1 {
		status := p.quota.Status()
		result.QuotaExceeded = true
		result.QuotaStatus = &status
		result.Error = fmt.Sprintf("Daily API quota exceeded (%d requests/day). Resets tomorrow.", status.DailyLimit)
		return result
	}

	// Step 3: quota-gated search.
	items, err := p.searcher.Search(ctx, optimized, p.numPages)
	if err != nil {
		if errors.Is(err, websearch.ErrQuotaExceeded) {
			status := p.quota.Status()
			result.QuotaExceeded = true
			result.QuotaStatus = &status
			result.Error = "API quota exceeded or rate limited. Please try again later."
			return result
		}
		result.Status = models.StatusError
		result.Error = err.Error()
		return result
	}
	if len(items) == 0 {
		result.Status = models.StatusCompleted
		result.Error = "No search results found"
		return result
	}

	// Step 4: fetch and summarize the top results.
	top := items
	if len(top) > p.maxResults {
		top = top[:p.maxResults]
	}
	urls := make([]string, len(top))
	for i, item := range top {
		urls[i] = item.URL
	}
	docs := p.fetcher.Batch(ctx, urls, p.fetchWorkers)

	for i, doc := range docs {
		if !doc.Success || doc.WordCount <= minContentWords {
			log.Printf("skipping %s: %s (%d words)", doc.URL, doc.ErrorReason, doc.WordCount)
			continue
		}

		summary := p.summarizer.SummarizeDocument(ctx, doc.Text, doc.WordCount)
		result.Results = append(result.Results, models.ProcessedResult{
			Title:     top[i].Title,
			URL:       top[i].URL,
			Content:   excerpt(doc.Text, 500),
			WordCount: doc.WordCount,
			Summary:   summary,
		})
		result.Stats.TotalWordCount += doc.WordCount
	}

	result.Stats.SearchResultsFound = len(items)
	result.Stats.ResultsProcessed = len(result.Results)

	// Step 5: auxiliary video discovery, never fatal.
	if len(result.Results) > 0 && !result.QuotaExceeded {
		result.Videos = p.searchVideos(ctx, userQuery, result)
		result.Stats.VideosFound = len(result.Videos)
	}

	result.Status = models.StatusCompleted
	return result
}

func (p *Pipeline) safeOptimize(ctx context.Context, userQuery string) (optimized, explanation, intent string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("optimizer panicked, using local fallback: %v", r)
			optimized = FallbackOptimization(userQuery)
			explanation = "Fallback optimization applied"
			intent = "research"
		}
	}()
	return p.optimizer.Optimize(ctx, userQuery)
}

// searchVideos runs one page of a YouTube-restricted search derived from the
// original query. It requires headroom of at least two quota units and
// silently returns nothing on any failure.
func (p *Pipeline) searchVideos(ctx context.Context, userQuery string, result *models.PipelineResult) []models.Video {
	// Always a list, never null, regardless of the path taken.
	videos := []models.Video{}

	if p.quota.Remaining() < videoQuotaFloor {
		log.Printf("insufficient quota remaining (%d) for video search", p.quota.Remaining())
		return videos
	}

	videoQuery := fmt.Sprintf("site:youtube.com %s tutorial OR explained OR guide", userQuery)
	items, err := p.searcher.Search(ctx, videoQuery, 1)
	if err != nil {
		if errors.Is(err, websearch.ErrQuotaExceeded) {
			result.QuotaExceeded = true
		}
		log.Printf("video search failed: %v", err)
		return videos
	}

	for _, item := range items {
		if len(videos) >= maxVideos {
			break
		}
		id := videoID(item.URL)
		if len(id) != 11 {
			continue
		}
		videos = append(videos, models.Video{
			Title:     excerpt(strings.TrimSpace(item.Title), 100),
			URL:       "https://www.youtube.com/watch?v=" + id,
			VideoID:   id,
			Thumbnail: fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", id),
		})
	}
	return videos
}

// videoID extracts the 11-character id from watch and short-link forms.
func videoID(link string) string {
	if strings.Contains(link, "youtube.com/watch") {
		if _, after, ok := strings.Cut(link, "v="); ok {
			id, _, _ := strings.Cut(after, "&")
			return id
		}
	}
	if _, after, ok := strings.Cut(link, "youtu.be/"); ok {
		id, _, _ := strings.Cut(after, "?")
		return id
	}
	return ""
}

// excerpt truncates s to at most limit bytes, marking the cut. The cut never
// splits a multi-byte rune.
func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
