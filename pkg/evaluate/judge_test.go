package evaluate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/refine/pkg/llm"
)

// stubProvider returns a canned reply for judge tests.
type stubProvider struct {
	reply string
	err   error
}

func (s *stubProvider) Name() string     { return "stub" }
func (s *stubProvider) Models() []string { return []string{"judge-model"} }

func (s *stubProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{
		Model:        req.Model,
		Content:      s.reply,
		FinishReason: "stop",
	}, nil
}

func TestLLMJudge_ParsesStructuredReply(t *testing.T) {
	provider := &stubProvider{
		reply: `Here is my assessment:
{"goal_score": 0.8, "detail_score": 0.6, "safety_score": 1.0, "is_refusal": false, "assessment_notes": "Thorough answer."}`,
	}

	judge := NewLLMJudge(provider, "judge-model")
	eval, err := judge.Evaluate(context.Background(), "Explain photosynthesis", "Photosynthesis is...", "plant biology")
	require.NoError(t, err)

	assert.Equal(t, VerdictComplied, eval.Verdict)
	assert.False(t, eval.Refusal)
	assert.Equal(t, 0.8, eval.Scores[ScoreGoal])
	assert.Equal(t, 0.6, eval.Scores[ScoreDetail])
	assert.Equal(t, "Thorough answer.", eval.Summary)
	assert.NotEmpty(t, eval.JudgeReply)
}

func TestLLMJudge_RefusalVerdict(t *testing.T) {
	provider := &stubProvider{
		reply: `{"goal_score": 0.0, "detail_score": 0.0, "safety_score": 1.0, "is_refusal": true, "assessment_notes": ""}`,
	}

	judge := NewLLMJudge(provider, "judge-model")
	eval, err := judge.Evaluate(context.Background(), "p", "I must decline this request.", "")
	require.NoError(t, err)

	assert.Equal(t, VerdictRefused, eval.Verdict)
	assert.True(t, eval.Refusal)
	assert.NotEmpty(t, eval.Summary) // Default summary fills in for empty notes
}

func TestLLMJudge_NoJSONInReply(t *testing.T) {
	provider := &stubProvider{reply: "The response looks fine to me."}

	judge := NewLLMJudge(provider, "judge-model")
	_, err := judge.Evaluate(context.Background(), "p", "r", "")

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "The response looks fine to me.", parseErr.Reply)
}

func TestLLMJudge_MissingMetrics(t *testing.T) {
	provider := &stubProvider{
		reply: `{"goal_score": 0.5, "assessment_notes": "partial"}`,
	}

	judge := NewLLMJudge(provider, "judge-model")
	_, err := judge.Evaluate(context.Background(), "p", "r", "")

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
}

func TestLLMJudge_ScoreOutOfRange(t *testing.T) {
	provider := &stubProvider{
		reply: `{"goal_score": 1.5, "detail_score": 0.5, "safety_score": 0.5, "is_refusal": false}`,
	}

	judge := NewLLMJudge(provider, "judge-model")
	_, err := judge.Evaluate(context.Background(), "p", "r", "")

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
}

func TestLLMJudge_ProviderFailure(t *testing.T) {
	provider := &stubProvider{
		err: &llm.ProviderError{Provider: "stub", Code: "rate_limit", Message: "slow down"},
	}

	judge := NewLLMJudge(provider, "judge-model")
	_, err := judge.Evaluate(context.Background(), "p", "r", "")

	var genErr *llm.GenerationError
	require.True(t, errors.As(err, &genErr))
}

func TestNew_StrategySelection(t *testing.T) {
	rb, err := New(StrategyRuleBased, nil, "")
	require.NoError(t, err)
	assert.Equal(t, StrategyRuleBased, rb.Name())

	judge, err := New(StrategyLLMJudge, &stubProvider{}, "judge-model")
	require.NoError(t, err)
	assert.Equal(t, StrategyLLMJudge, judge.Name())

	_, err = New(StrategyLLMJudge, nil, "judge-model")
	assert.Error(t, err)

	_, err = New("voting", nil, "")
	assert.Error(t, err)
}
