package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"search-digest/internal/llm"
)

// fakeChat scripts LLM responses for tests.
type fakeChat struct {
	fn    func(req llm.Request) (string, error)
	calls []llm.Request
}

func (f *fakeChat) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls = append(f.calls, req)
	return f.fn(req)
}

func TestOptimizeParsesModelResponse(t *testing.T) {
	chat := &fakeChat{fn: func(req llm.Request) (string, error) {
		return `{"optimized_query":"dissolved oxygen water measurement site:edu OR site:gov","explanation":"Focused on authoritative sources","search_intent":"research"}`, nil
	}}

	o := NewOptimizer(chat, "test-model")
	query, explanation, intent := o.Optimize(context.Background(), "Determine soluble oxygen in water")

	if query != "dissolved oxygen water measurement site:edu OR site:gov" {
		t.Errorf("query = %q", query)
	}
	if intent != "research" {
		t.Errorf("intent = %q, want research", intent)
	}
	if explanation == "" {
		t.Error("explanation should not be empty")
	}

	req := chat.calls[0]
	if req.Temperature != 0 || req.Seed != 42 || !req.ForceJSON {
		t.Errorf("request not deterministic: temp=%v seed=%d json=%v", req.Temperature, req.Seed, req.ForceJSON)
	}
}

func TestOptimizeFallsBackOnError(t *testing.T) {
	chat := &fakeChat{fn: func(req llm.Request) (string, error) {
		return "", errors.New("connection refused")
	}}

	o := NewOptimizer(chat, "test-model")
	query, explanation, intent := o.Optimize(context.Background(), "How to determine the dissolved oxygen")

	if query != FallbackOptimization("How to determine the dissolved oxygen") {
		t.Errorf("query = %q, want deterministic fallback", query)
	}
	if !strings.HasPrefix(explanation, "Fallback due to error") {
		t.Errorf("explanation = %q", explanation)
	}
	if intent != "research" {
		t.Errorf("intent = %q, want research", intent)
	}
}

func TestOptimizeFallsBackOnInvalidQuery(t *testing.T) {
	cases := map[string]string{
		"empty":    `{"optimized_query":"","explanation":"x","search_intent":"how-to"}`,
		"too long": `{"optimized_query":"` + strings.Repeat("q", 300) + `","explanation":"x","search_intent":"how-to"}`,
		"garbage":  `this is not json`,
	}
	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			chat := &fakeChat{fn: func(req llm.Request) (string, error) { return response, nil }}
			o := NewOptimizer(chat, "test-model")
			query, _, _ := o.Optimize(context.Background(), "measure water quality")
			if query != FallbackOptimization("measure water quality") {
				t.Errorf("query = %q, want fallback", query)
			}
		})
	}
}

func TestFallbackOptimizationDeterministicAndPure(t *testing.T) {
	raw := "How to Determine the Soluble Oxygen in Water"

	first := FallbackOptimization(raw)
	for i := 0; i < 5; i++ {
		if got := FallbackOptimization(raw); got != first {
			t.Fatalf("fallback not deterministic: %q vs %q", got, first)
		}
	}

	for _, word := range strings.Fields(first) {
		if word == "OR" {
			continue // boolean operator from the site restriction
		}
		if stopWords[word] {
			t.Errorf("fallback %q contains stop word %q", first, word)
		}
	}

	if !strings.HasSuffix(first, "site:edu OR site:gov") {
		t.Errorf("technical query %q missing site restriction", first)
	}
}

func TestTruncateNeverSplitsRunes(t *testing.T) {
	// 2-byte runes put every odd byte offset mid-rune.
	long := strings.Repeat("ü", 30)

	got := truncate(long, 3)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if got != "ü" {
		t.Errorf("truncate = %q, want %q", got, "ü")
	}

	if got := truncate("plain ascii", 50); got != "plain ascii" {
		t.Errorf("truncate = %q, want unchanged", got)
	}
}

func TestFallbackOptimizationNonTechnicalHasNoSiteRestriction(t *testing.T) {
	got := FallbackOptimization("best coffee shops near downtown")
	if strings.Contains(got, "site:") {
		t.Errorf("non-technical query gained site restriction: %q", got)
	}
	if got != "best coffee shops near downtown" {
		t.Errorf("got %q", got)
	}
}
