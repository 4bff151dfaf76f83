package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"search-digest/internal/retry"
)

const (
	pageSize       = 10
	pageDelay      = 500 * time.Millisecond
	rateLimitBase  = 2 * time.Second
	maxPageRetries = 3
)

// Config holds configuration for the search client.
type Config struct {
	APIKey   string
	EngineID string
	// BaseURL of the custom-search endpoint. Defaults to the Google
	// Custom Search JSON API.
	BaseURL string
	// HTTP client timeout in seconds (default: 15)
	Timeout int
}

// service implements the Searcher interface against a Google CSE style API.
type service struct {
	config *Config
	client *http.Client
	quota  QuotaGate
	policy retry.Policy
	sleep  func(time.Duration)
}

// NewService creates a quota-gated search client.
func NewService(config Config, gate QuotaGate) Searcher {
	if config.BaseURL == "" {
		config.BaseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 15
	}
	s := &service{
		config: &config,
		client: &http.Client{Timeout: time.Duration(config.Timeout) * time.Second},
		quota:  gate,
		sleep:  time.Sleep,
	}
	s.policy = retry.Policy{
		MaxAttempts: maxPageRetries,
		Backoff:     retry.Expo(rateLimitBase),
		Retryable: func(err error) bool {
			se, ok := err.(*SearchError)
			return ok && se.Code == "rate_limited"
		},
	}
	return s
}

// Search implements Searcher. Quota is re-checked before every page; an
// exhausted budget mid-run stops early and returns what was accumulated. A
// vendor-reported quota error escalates ErrQuotaExceeded immediately, while
// any other per-page failure is logged and the next page attempted.
func (s *service) Search(ctx context.Context, query string, numPages int) ([]Item, error) {
	if !s.quota.Check() {
		return nil, fmt.Errorf("%w: remaining 0", ErrQuotaExceeded)
	}

	var results []Item
	for i := 0; i < numPages; i++ {
		page := i + 1
		start := (page-1)*pageSize + 1

		if !s.quota.Check() {
			log.Printf("quota exhausted after page %d, stopping search early", i)
			break
		}

		items, err := s.fetchPage(ctx, query, start)
		if err != nil {
			if se, ok := err.(*SearchError); ok && se.Code == "quota_exceeded" {
				return results, fmt.Errorf("%w: %s", ErrQuotaExceeded, se.Message)
			}
			log.Printf("search page %d failed: %v", page, err)
			continue
		}
		s.quota.Increment()

		results = append(results, items...)

		// Courtesy delay between pages, skipped after the last one.
		if i < numPages-1 {
			s.sleep(pageDelay)
		}
	}

	return results, nil
}

// fetchPage issues one search request, retrying HTTP 429 with exponential
// backoff before giving up on the page.
func (s *service) fetchPage(ctx context.Context, query string, start int) ([]Item, error) {
	var items []Item
	err := s.policy.Do(ctx, func() error {
		var err error
		items, err = s.requestPage(ctx, query, start)
		return err
	})
	return items, err
}

func (s *service) requestPage(ctx context.Context, query string, start int) ([]Item, error) {
	params := url.Values{}
	params.Set("key", s.config.APIKey)
	params.Set("cx", s.config.EngineID)
	params.Set("q", query)
	params.Set("start", strconv.Itoa(start))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &SearchError{Code: "request_failed", Message: "build search request", Details: err.Error()}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SearchError{Code: "network_error", Message: "search request failed", Details: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &SearchError{Code: "rate_limited", Message: fmt.Sprintf("search rate limited (start=%d)", start)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &SearchError{
			Code:    "request_failed",
			Message: fmt.Sprintf("search http %d", resp.StatusCode),
			Details: strings.TrimSpace(string(body)),
		}
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &SearchError{Code: "decode_error", Message: "decode search response", Details: err.Error()}
	}

	if payload.Error != nil {
		if payload.Error.isQuota() {
			return nil, &SearchError{Code: "quota_exceeded", Message: payload.Error.Message}
		}
		return nil, &SearchError{Code: "api_error", Message: payload.Error.Message}
	}

	items := make([]Item, 0, len(payload.Items))
	for idx, raw := range payload.Items {
		title, link := normalizeResult(raw.Title, raw.Link)
		items = append(items, Item{
			Rank:  start + idx,
			Title: title,
			URL:   link,
		})
	}
	return items, nil
}

type searchResponse struct {
	Items []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"items"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Errors  []struct {
		Reason string `json:"reason"`
	} `json:"errors"`
}

func (e *apiError) isQuota() bool {
	for _, inner := range e.Errors {
		if strings.Contains(inner.Reason, "quotaExceeded") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(e.Message), "quota")
}

// normalizeResult cleans YouTube results: the trailing " - YouTube" suffix is
// dropped from titles and watch links are rewritten to the canonical
// watch?v=<id> form.
func normalizeResult(title, link string) (string, string) {
	if !strings.Contains(link, "youtube.com") {
		return title, link
	}
	title = strings.TrimSpace(strings.TrimSuffix(title, " - YouTube"))
	if strings.Contains(link, "youtube.com/watch") {
		if id := watchVideoID(link); id != "" {
			link = "https://www.youtube.com/watch?v=" + id
		}
	}
	return title, link
}

// watchVideoID pulls the v= parameter out of a watch link.
func watchVideoID(link string) string {
	_, after, ok := strings.Cut(link, "v=")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(after, "&")
	return id
}
