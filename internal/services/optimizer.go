package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"search-digest/internal/llm"
)

const optimizerContext = `You are SearchQueryPro, an expert at turning natural-language questions into laser-focused web search queries.

Your Input
USER_QUERY: <the raw human question or statement>

Your Task
Rewrite USER_QUERY into ONE optimized Boolean query string that:

**Priority Operators (use when relevant):**
1. **Scientific/Technical content**: Add site:edu OR site:gov OR site:org for authoritative sources
2. **Recent info**: Add after:2020-01-01 for current information
3. **Specific file types**: Add filetype:pdf for research papers, filetype:ppt for presentations
4. **Exact phrases**: Use "exact phrase" for technical terms, proper nouns, or specific concepts
5. **Exclude noise**: Use -site:pinterest.com -site:youtube.com -ads -shopping -buy

**Advanced Techniques:**
- Use intitle: for key concepts that should be in the title
- Use OR for synonyms: (oxygen OR O2) (dissolved OR soluble)
- Use parentheses for grouping: (measurement OR determination OR analysis)
- Remove stop words: the, a, an, is, are, how, what, etc.

**Quality Checks:**
- Keep total length <= 200 characters for optimal performance
- Prioritize scientific accuracy over broad results
- Include technical synonyms when relevant
- Focus on actionable, specific results

Output Format (MUST follow exactly as valid JSON):
{
  "optimized_query": "<your single-line query string>",
  "explanation": "<=80-word rationale explaining your optimization strategy>",
  "search_intent": "<research|how-to|comparison|definition|current-data>"
}

**Important**: For identical inputs, produce identical outputs. Never invent facts. Always respond with valid JSON format.`

const maxOptimizedQueryLen = 250

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "how": true, "what": true, "why": true,
	"when": true, "where": true,
}

var technicalKeywords = []string{
	"determine", "measure", "analyze", "calculate", "method", "procedure", "technique",
}

// Optimizer rewrites raw user questions into compact boolean search queries.
type Optimizer struct {
	chat  llm.ChatClient
	model string
}

func NewOptimizer(chat llm.ChatClient, model string) *Optimizer {
	return &Optimizer{chat: chat, model: model}
}

type optimizationResponse struct {
	OptimizedQuery string `json:"optimized_query"`
	Explanation    string `json:"explanation"`
	SearchIntent   string `json:"search_intent"`
}

// Optimize returns (optimizedQuery, explanation, searchIntent). Any failure
// resolves to the deterministic local fallback; this never errors past its
// own boundary.
func (o *Optimizer) Optimize(ctx context.Context, rawQuery string) (string, string, string) {
	content, err := o.chat.Complete(ctx, llm.Request{
		Model:       o.model,
		System:      optimizerContext,
		User:        rawQuery,
		Temperature: 0,
		TopP:        1,
		Seed:        42,
		ForceJSON:   true,
	})
	if err != nil {
		log.Printf("query optimization failed: %v", err)
		return FallbackOptimization(rawQuery), fmt.Sprintf("Fallback due to error: %s", truncate(err.Error(), 50)), "research"
	}

	var resp optimizationResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSON(content)), &resp); err != nil {
		log.Printf("query optimization returned malformed JSON: %v", err)
		return FallbackOptimization(rawQuery), fmt.Sprintf("Fallback due to error: %s", truncate(err.Error(), 50)), "research"
	}

	if resp.Explanation == "" {
		resp.Explanation = "Query optimization applied"
	}
	if resp.SearchIntent == "" {
		resp.SearchIntent = "research"
	}
	if resp.OptimizedQuery == "" || len(resp.OptimizedQuery) > maxOptimizedQueryLen {
		return FallbackOptimization(rawQuery), "Fallback optimization applied", resp.SearchIntent
	}

	return resp.OptimizedQuery, resp.Explanation, resp.SearchIntent
}

// FallbackOptimization is the pure, deterministic local transformation used
// when the model is unavailable or returns an unusable query: lower-case,
// drop stop words, and append a site restriction for technical queries. It
// never fails and never touches the network.
func FallbackOptimization(query string) string {
	lower := strings.ToLower(query)

	var filtered []string
	for _, word := range strings.Fields(lower) {
		if !stopWords[word] {
			filtered = append(filtered, word)
		}
	}

	for _, keyword := range technicalKeywords {
		if strings.Contains(lower, keyword) {
			filtered = append(filtered, "site:edu", "OR", "site:gov")
			break
		}
	}

	return strings.Join(filtered, " ")
}

// truncate cuts s to at most n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
