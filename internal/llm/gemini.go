package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/Veraticus/autobudgeter/internal/common"
)

// geminiProvider implements Provider with the Google GenAI SDK.
type geminiProvider struct {
	client *genai.Client
	model  string
	temp   float32
}

func newGeminiProvider(ctx context.Context, cfg Config) (*geminiProvider, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, common.NewConfigurationError("gemini", fmt.Errorf("failed to create genai client: %w", err))
	}

	return &geminiProvider{
		client: client,
		model:  cfg.Model,
		temp:   float32(cfg.Temperature),
	}, nil
}

func (p *geminiProvider) Name() string {
	return ProviderGemini
}

// Categorize asks the model for a JSON response.
func (p *geminiProvider) Categorize(ctx context.Context, input Input) (Result, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(buildUserPrompt(input), genai.RoleUser),
	}

	temperature := p.temp
	config := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temperature,
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return Result{}, common.NewUpstreamError(ProviderGemini, apiErr.Code, err)
		}
		return Result{}, common.NewUpstreamError(ProviderGemini, 0, err)
	}

	text := resp.Text()
	if text == "" {
		return Result{}, common.NewValidationError("response", "empty response from model")
	}
	return DecodeResponse(text)
}
