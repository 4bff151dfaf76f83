package websearch

import (
	"context"
	"errors"
)

// ErrQuotaExceeded signals that the daily search budget is exhausted, either
// locally or as reported by the vendor. It is never retried automatically.
var ErrQuotaExceeded = errors.New("daily search quota exceeded")

// Searcher is the paged web-search capability the pipeline depends on.
type Searcher interface {
	// Search runs up to numPages requests of 10 results each and returns
	// the accumulated items ordered by global rank.
	Search(ctx context.Context, query string, numPages int) ([]Item, error)
}

// Item is a single search hit. Rank is 1-based and global across pages.
// Items are immutable once created; YouTube links are canonicalized and
// titles cleaned at creation time.
type Item struct {
	Rank  int    `json:"rank"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// QuotaGate is the slice of the quota manager the client needs.
type QuotaGate interface {
	Check() bool
	Increment()
}

// SearchError carries a machine-readable code alongside the message.
type SearchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *SearchError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}
