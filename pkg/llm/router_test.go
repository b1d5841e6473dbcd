package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider implements Provider for testing
type mockProvider struct {
	name   string
	models []string
	resp   *CompletionResponse
	err    error

	lastReq *CompletionRequest
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Models() []string {
	return m.models
}

func (m *mockProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &CompletionResponse{
		ID:           "test-id",
		Model:        req.Model,
		Content:      "test response",
		FinishReason: "stop",
	}, nil
}

func TestRouter_Creation(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a", "model-b"},
	}

	router := NewRouter(provider)

	assert.NotNil(t, router)
	assert.Equal(t, "router:test", router.Name())
	assert.Equal(t, []string{"model-a", "model-b"}, router.Models())
}

func TestRouter_SetModels(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"default"},
	}

	router := NewRouter(provider)

	router.SetTargetModel("target-model")
	router.SetJudgeModel("judge-model")
	router.SetAssistantModel("assistant-model")

	assert.Equal(t, "target-model", router.TargetModel())
	assert.Equal(t, "judge-model", router.JudgeModel())
	assert.Equal(t, "assistant-model", router.AssistantModel())
}

func TestRouter_EmptyModelIgnored(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"default"},
	}

	router := NewRouter(provider)
	router.SetTargetModel("")

	assert.Equal(t, "default", router.TargetModel())
}

func TestRouter_RoleProviders(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"default"},
	}

	router := NewRouter(provider)
	router.SetJudgeModel("judge-model")

	judge := router.ForJudge()
	resp, err := judge.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{UserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "judge-model", resp.Model)
	assert.Equal(t, "judge-model", provider.lastReq.Model)
}

func TestGenerate(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a"},
	}

	text, err := Generate(context.Background(), provider, "model-a", "hello")
	require.NoError(t, err)
	assert.Equal(t, "test response", text)
	assert.Equal(t, "hello", provider.lastReq.Messages[0].Content)
}

func TestGenerate_WrapsErrors(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a"},
		err:    &ProviderError{Provider: "test", Code: "rate_limit", Message: "slow down"},
	}

	_, err := Generate(context.Background(), provider, "model-a", "hello")
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, "model-a", genErr.Model)
	assert.True(t, IsRateLimitError(genErr.Err))
}

func TestGenerate_EmptyCompletion(t *testing.T) {
	provider := &mockProvider{
		name:   "test",
		models: []string{"model-a"},
		resp:   &CompletionResponse{Content: "", FinishReason: "stop"},
	}

	_, err := Generate(context.Background(), provider, "model-a", "hello")

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
}
