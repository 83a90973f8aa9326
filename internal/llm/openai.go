package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Veraticus/autobudgeter/internal/common"
)

// chatCompletionsProvider talks to OpenAI-compatible chat completion endpoints,
// which covers both OpenAI and OpenRouter.
type chatCompletionsProvider struct {
	httpClient  *http.Client
	name        string
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

func newChatCompletionsProvider(name, defaultBaseURL string, cfg Config) *chatCompletionsProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 300
	}

	return &chatCompletionsProvider{
		name:        name,
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		httpClient:  newHTTPClient(cfg.Timeout),
	}
}

func (p *chatCompletionsProvider) Name() string {
	return p.name
}

// Categorize sends one chat completion request in JSON mode.
func (p *chatCompletionsProvider) Categorize(ctx context.Context, input Input) (Result, error) {
	requestBody := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildUserPrompt(input)},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     p.temperature,
		"max_tokens":      p.maxTokens,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, common.NewUpstreamError(p.name, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, common.NewUpstreamError(p.name, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, common.NewUpstreamError(p.name, resp.StatusCode, fmt.Errorf("%s", truncate(string(body), 500)))
	}

	var response chatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Result{}, common.NewValidationError("response", fmt.Sprintf("malformed completion envelope: %v", err))
	}

	if len(response.Choices) == 0 {
		return Result{}, common.NewValidationError("choices", "no completion choices returned")
	}

	return DecodeResponse(response.Choices[0].Message.Content)
}

// chatCompletionResponse is the subset of the chat completions response we read.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
		Index        int    `json:"index"`
	} `json:"choices"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
