// Package fetch retrieves result URLs and extracts readable text from HTML
// and PDF documents.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"search-digest/internal/models"
)

const (
	fetchTimeout = 15 * time.Second
	maxPDFPages  = 10
	maxBodyBytes = 10 << 20 // 10 MB
)

// nonContentTags are stripped from HTML before text extraction.
const nonContentTags = "script, style, nav, footer, header, aside, iframe, noscript"

// Fetcher downloads documents over HTTP with a browser-like identity.
type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: fetchTimeout}}
}

// Fetch retrieves one URL and extracts its readable text. Every failure mode
// is folded into the returned document; this never panics or returns an
// error value, so callers can treat a failed record as "skip this result".
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) models.FetchedDocument {
	doc := models.FetchedDocument{URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		doc.ErrorReason = fmt.Sprintf("build request: %v", err)
		return doc
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml,application/pdf;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			doc.ErrorReason = "timeout fetching url"
		} else {
			doc.ErrorReason = fmt.Sprintf("request failed: %v", err)
		}
		return doc
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		doc.ErrorReason = fmt.Sprintf("http status %d", resp.StatusCode)
		return doc
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		doc.ErrorReason = fmt.Sprintf("read body: %v", err)
		return doc
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	var text string
	switch {
	case strings.Contains(contentType, "pdf") || strings.HasSuffix(strings.ToLower(rawURL), ".pdf"):
		text = extractPDF(body)
		if text == "" {
			doc.ErrorReason = "pdf extraction failed"
			return doc
		}
	case strings.Contains(contentType, "html"):
		text, err = extractHTML(body)
		if err != nil || text == "" {
			doc.ErrorReason = "html extraction failed"
			return doc
		}
	default:
		doc.ErrorReason = fmt.Sprintf("unsupported content type %q", contentType)
		return doc
	}

	doc.Text = text
	doc.WordCount = len(strings.Fields(text))
	doc.Success = true
	return doc
}

// Batch fetches urls with at most workers in flight and returns one record
// per URL in input order. A failure on one URL never delays or cancels the
// others. workers <= 1 degenerates to the sequential path.
func (f *Fetcher) Batch(ctx context.Context, urls []string, workers int) []models.FetchedDocument {
	if workers < 1 {
		workers = 1
	}

	docs := make([]models.FetchedDocument, len(urls))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(idx int, target string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			docs[idx] = f.Fetch(ctx, target)
		}(i, u)
	}
	wg.Wait()

	return docs
}

// extractHTML strips non-content tags and returns the visible text with
// whitespace runs collapsed to single spaces.
func extractHTML(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	doc.Find(nonContentTags).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var sb strings.Builder
	root.Each(func(_ int, sel *goquery.Selection) {
		sb.WriteString(sel.Text())
		sb.WriteByte(' ')
	})

	return strings.Join(strings.Fields(sb.String()), " "), nil
}

// extractPDF tries two extraction strategies in order; the first failing
// silently falls through to the second. Both cap at the first ten pages.
func extractPDF(body []byte) string {
	if text := pdfTextByPage(body); text != "" {
		return text
	}
	return pdfTextWholeDocument(body)
}

// pdfTextByPage walks pages individually, which copes better with documents
// where a single malformed page would otherwise abort extraction.
func pdfTextByPage(body []byte) (text string) {
	// The pdf library panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return ""
	}

	numPages := reader.NumPage()
	if numPages > maxPDFPages {
		numPages = maxPDFPages
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= numPages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteByte('\n')
	}

	return strings.Join(strings.Fields(sb.String()), " ")
}

func pdfTextWholeDocument(body []byte) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return ""
	}

	stream, err := reader.GetPlainText()
	if err != nil {
		return ""
	}
	raw, err := io.ReadAll(stream)
	if err != nil {
		return ""
	}

	return strings.Join(strings.Fields(string(raw)), " ")
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
