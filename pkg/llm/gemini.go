package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface using the Gemini SDK.
type GeminiProvider struct {
	client *genai.Client
	models []string
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(apiKey string) (*GeminiProvider, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		models: []string{
			"gemini-3-flash-preview",
			"gemini-2.5-pro",
			"gemini-2.5-flash",
		},
	}, nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Models returns available model identifiers.
func (p *GeminiProvider) Models() []string {
	return p.models
}

// Complete generates a completion.
func (p *GeminiProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.Temperature != 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if req.TopP != 0 {
		topP := float32(req.TopP)
		config.TopP = &topP
	}
	if req.MaxTokens != 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.StopSequences) > 0 {
		config.StopSequences = req.StopSequences
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, &ProviderError{
			Provider: "gemini",
			Code:     "api_error",
			Message:  "generate content failed",
			Err:      err,
		}
	}

	if result == nil || len(result.Candidates) == 0 {
		return nil, &ProviderError{
			Provider: "gemini",
			Code:     "empty_response",
			Message:  "empty response from API",
		}
	}

	// Extract text from response parts
	var text string
	if result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" {
				text += part.Text
			}
		}
	}

	resp := &CompletionResponse{
		ID:           result.ResponseID,
		Model:        req.Model,
		Content:      text,
		FinishReason: "stop",
	}

	if result.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		resp.FinishReason = "max_tokens"
	}
	if result.UsageMetadata != nil {
		resp.Usage = TokenUsage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}

	return resp, nil
}
