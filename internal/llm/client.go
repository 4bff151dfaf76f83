package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrUnavailable is returned when the LLM integration is not configured.
var ErrUnavailable = errors.New("llm integration is not configured")

// Request describes a single chat completion. The zero value of the tuning
// fields matches the deterministic settings used throughout the pipeline.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float32
	TopP        float32
	Seed        int
	MaxTokens   int
	ForceJSON   bool
}

// ChatClient is the generic chat-completion capability the pipeline depends
// on. Implementations return the raw content string of the first choice.
type ChatClient interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client talks to any OpenAI-compatible chat endpoint.
type Client struct {
	client *openai.Client
}

// New builds a client for the given key and base URL. An empty key yields a
// disabled client whose calls fail with ErrUnavailable.
func New(apiKey, baseURL string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{client: openai.NewClientWithConfig(cfg)}
}

func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if c.client == nil {
		return "", ErrUnavailable
	}

	// ChatCompletionRequest tags Temperature with omitempty, so a zero value
	// never reaches the wire and the vendor default applies instead. The
	// smallest non-zero float survives marshaling and is effectively zero.
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	seed := req.Seed
	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature:      temperature,
		TopP:             req.TopP,
		Seed:             &seed,
		PresencePenalty:  0,
		FrequencyPenalty: 0,
		MaxTokens:        req.MaxTokens,
	}
	if req.ForceJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// IsRateLimited reports whether err looks like a vendor rate-limit response.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429")
}

// ExtractJSON removes markdown code block formatting if present and extracts
// the JSON object from a model response.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		// Skip past the opening ``` and optional language identifier (e.g., "json")
		start := 3
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}

	content = strings.TrimSpace(content)

	// Keep just the outermost JSON object
	if startIdx := strings.Index(content, "{"); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "}"); endIdx != -1 && endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}

	return strings.TrimSpace(content)
}
