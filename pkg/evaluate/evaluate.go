// Package evaluate scores a (prompt, response) pair against a small
// fixed rubric. Two interchangeable strategies exist: a deterministic
// rule-based evaluator and a judge backed by a model call. Both produce
// the same Evaluation shape, so the modifier downstream never cares
// which strategy ran.
package evaluate

import (
	"context"
	"fmt"

	"github.com/ternarybob/refine/pkg/llm"
)

// Verdict is the categorical outcome of an evaluation.
type Verdict string

const (
	// VerdictRefused means the response declined the request.
	VerdictRefused Verdict = "refused"
	// VerdictComplied means the response engaged with the request.
	VerdictComplied Verdict = "complied"
)

// Score names used by both strategies.
const (
	ScoreGoal   = "goal_score"
	ScoreDetail = "detail_score"
	ScoreSafety = "safety_score"
)

// Strategy names, selected once at construction from configuration.
const (
	StrategyRuleBased = "rule_based"
	StrategyLLMJudge  = "llm_judge"
)

// Evaluation is the structured result of scoring one response.
type Evaluation struct {
	// Verdict is refused or complied.
	Verdict Verdict `json:"verdict"`

	// Refusal flags an explicit refusal.
	Refusal bool `json:"refusal"`

	// Scores maps metric names to values in [0, 1].
	Scores map[string]float64 `json:"scores"`

	// ResponsePreview is a truncated view of the scored response.
	ResponsePreview string `json:"response_preview,omitempty"`

	// Summary is a free-text note about the evaluation.
	Summary string `json:"summary,omitempty"`

	// JudgeReply is the raw judge output, set by the llm_judge strategy.
	JudgeReply string `json:"judge_reply,omitempty"`
}

// Clone returns a deep copy of the evaluation.
func (e *Evaluation) Clone() *Evaluation {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Scores = make(map[string]float64, len(e.Scores))
	for k, v := range e.Scores {
		clone.Scores[k] = v
	}
	return &clone
}

// Evaluator scores a response to a prompt.
type Evaluator interface {
	// Name returns the strategy name.
	Name() string

	// Evaluate scores the response. goalQuery may be empty.
	Evaluate(ctx context.Context, prompt, response, goalQuery string) (*Evaluation, error)
}

// New constructs the evaluator for the named strategy. The provider is
// only required for llm_judge.
func New(strategy string, provider llm.Provider, model string) (Evaluator, error) {
	switch strategy {
	case StrategyRuleBased, "":
		return NewRuleBased(), nil
	case StrategyLLMJudge:
		if provider == nil {
			return nil, fmt.Errorf("llm_judge strategy requires a provider")
		}
		return NewLLMJudge(provider, model), nil
	default:
		return nil, fmt.Errorf("unknown evaluation strategy: %q", strategy)
	}
}

func previewResponse(response string) string {
	runes := []rune(response)
	if len(runes) <= 200 {
		return response
	}
	return string(runes[:200]) + "..."
}
