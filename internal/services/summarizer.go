package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"search-digest/internal/llm"
	"search-digest/internal/models"
	"search-digest/internal/retry"
)

const summaryContext = `You are WebPage Insight Summarizer, an analytical writing assistant.
    - Audience: college educated people from science school.
    - Voice: concise, neutral, and fact-focused.
    - Faithfulness: never invent facts. Rely only on the supplied text.

**Task**
    1. **Brief Description** - In <=100 words, describe what this web page is about and why it exists.
    2. **Concise Summary** - In 5-8 sentences, capture the main argument or storyline, preserving any numbers, trends, or named entities that matter.
    3. **Key Findings** - Bullet-list the 3-6 most important facts, statistics, or conclusions stated.
    4. **Actionable Insights / Implications** - Bullet-list up to 5 insights the reader can act on or reflect upon.

**Guidelines**
    - Pull only from the provided text; do **not** browse further.
    - Quote exact phrases sparingly and only when they carry distinctive meaning.
    - If content is extremely long (>2000 words), prioritise the latest data, outcomes, and novel ideas over generic background.
    - Omit boilerplate (cookie banners, navigation labels, ads, etc.).
    - Keep total output <=500 words.

**Output Format**: Respond with valid JSON in this exact structure:
{
  "brief_description": "description text here",
  "concise_summary": "summary text here",
  "key_findings": ["finding 1", "finding 2", "finding 3"],
  "actionable_insights": ["insight 1", "insight 2", "insight 3"]
}`

const compressionContext = `You are Lossless-Shrink-512, a professional text compressor.
	- Goal: rewrite the supplied text in <=512 tokens while preserving every explicit fact,
	  statistic, named entity, causal link, and chronological order.
	- Style: concise, information-dense, neutral tone. No added examples, no omissions, no paraphrase
	  that drops meaning. Remove redundancy, filler words, and editorial asides only.
	- Faithfulness: DO NOT invent or infer facts; rely strictly on the input.

USER
	Compress the following content. The output **must not exceed 512 tokens**.
	Keep all numbers, units, years, names, citations, and ordered steps intact.
	Prefer short sentences; merge or collapse where safe. Use bullet lists only if they increase
	clarity without adding tokens. Return plain text, no markdown headings.`

const (
	maxInputChars    = 3000
	maxOutputTokens  = 512
	summaryAttempts  = 3
	chunkDelay       = 3 * time.Second
	chunkedThreshold = 2000 // words
)

// Summarizer produces structured summaries of fetched page text.
type Summarizer struct {
	chat  llm.ChatClient
	model string

	sleep  func(time.Duration)
	jitter func() float64 // seconds added to rate-limit backoff, in [1,3)
}

func NewSummarizer(chat llm.ChatClient, model string) *Summarizer {
	return &Summarizer{
		chat:   chat,
		model:  model,
		sleep:  time.Sleep,
		jitter: func() float64 { return 1 + 2*rand.Float64() },
	}
}

// SummarizeShort runs one structured summarization call over the first 3000
// characters of text. Vendor rate limits are retried with jittered backoff;
// after exhausting retries, or on any other failure, the error variant is
// returned rather than an error.
func (s *Summarizer) SummarizeShort(ctx context.Context, text string) models.SummaryRecord {
	var record models.SummaryRecord

	policy := retry.Policy{
		MaxAttempts: summaryAttempts,
		Backoff: func(attempt int) time.Duration {
			wait := float64(int(1)<<attempt) + s.jitter()
			return time.Duration(wait * float64(time.Second))
		},
		Retryable: llm.IsRateLimited,
		Sleep:     s.sleep,
	}

	err := policy.Do(ctx, func() error {
		content, err := s.chat.Complete(ctx, llm.Request{
			Model:       s.model,
			System:      summaryContext,
			User:        truncate(text, maxInputChars),
			Temperature: 0,
			TopP:        1,
			Seed:        42,
			MaxTokens:   maxOutputTokens,
			ForceJSON:   true,
		})
		if err != nil {
			return err
		}

		var parsed models.SummaryRecord
		if err := json.Unmarshal([]byte(llm.ExtractJSON(content)), &parsed); err != nil {
			return fmt.Errorf("malformed summary json: %w", err)
		}
		parsed.Err = ""
		record = parsed
		return nil
	})
	if err != nil {
		if llm.IsRateLimited(err) {
			return models.SummaryRecord{Err: "Rate limit exceeded after retries"}
		}
		return models.SummaryRecord{Err: err.Error()}
	}

	return record
}

// SummarizeChunked compresses long text in numChunks passes. Chunk 0 sees its
// raw slice alone; every later chunk sees all prior chunk summaries followed
// by the raw tail of the document from that chunk's offset, so the model
// carries a shrinking memory of what came before plus fresh raw text. A
// failed chunk becomes a placeholder entry instead of aborting the sequence.
func (s *Summarizer) SummarizeChunked(ctx context.Context, text string, numChunks int) []string {
	if numChunks < 1 {
		numChunks = 1
	}

	summaries := make([]string, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		input := BuildChunkInput(text, summaries, numChunks, i)

		if i > 0 {
			s.sleep(chunkDelay)
		}

		content, err := s.chat.Complete(ctx, llm.Request{
			Model:       s.model,
			System:      compressionContext,
			User:        truncate(input, maxInputChars),
			Temperature: 0,
			TopP:        1,
			Seed:        42,
			MaxTokens:   maxOutputTokens,
		})
		if err != nil {
			if llm.IsRateLimited(err) {
				log.Printf("rate limit on chunk %d, recording placeholder", i+1)
				summaries = append(summaries, fmt.Sprintf("[Rate limit - chunk %d skipped]", i+1))
			} else {
				summaries = append(summaries, fmt.Sprintf("[Error in chunk %d: %s]", i+1, truncate(err.Error(), 50)))
			}
			continue
		}

		summaries = append(summaries, content)
	}

	return summaries
}

// SummarizeDocument picks the strategy for a fetched document: word counts
// above the threshold get the chunked pre-compression pass, whose joined
// output is then fed through the structured summarization call.
func (s *Summarizer) SummarizeDocument(ctx context.Context, text string, wordCount int) models.SummaryRecord {
	if wordCount > chunkedThreshold {
		chunks := s.SummarizeChunked(ctx, text, 2)
		return s.SummarizeShort(ctx, strings.Join(chunks, " "))
	}
	return s.SummarizeShort(ctx, text)
}

// BuildChunkInput composes the LLM input for one chunk of the fold-forward
// pass. Slices are equal length by character count with the remainder folded
// into the final slice; chunk i>0 deliberately restarts the raw tail at its
// own offset (matching the established behavior) rather than at the end of
// the previously covered text.
func BuildChunkInput(text string, priorSummaries []string, numChunks, chunkNum int) string {
	chunkSize := len(text) / numChunks
	if chunkNum == 0 {
		if chunkSize == 0 {
			return text
		}
		return text[:chunkSize]
	}
	return strings.Join(priorSummaries, " ") + " " + text[chunkNum*chunkSize:]
}
