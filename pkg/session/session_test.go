package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/refine/pkg/evaluate"
)

func strptr(s string) *string { return &s }

func TestNew_RequiresInitialPrompt(t *testing.T) {
	_, err := New("id-1", "", "goal")

	var verr *ValidationError
	require.True(t, IsValidation(err))
	require.ErrorAs(t, err, &verr)
}

func TestNew_Defaults(t *testing.T) {
	s, err := New("id-1", "Explain photosynthesis", "plant biology")
	require.NoError(t, err)

	assert.Equal(t, "id-1", s.ID)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, "Explain photosynthesis", s.CurrentPrompt)
	assert.Equal(t, "plant biology", s.GoalQuery)
	assert.NotNil(t, s.History)
	assert.Empty(t, s.History)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestSession_AppendAssignsContiguousIndices(t *testing.T) {
	s, err := New("id-1", "p", "")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Append(Iteration{PromptSent: "p"}))
	}

	for i, it := range s.History {
		assert.Equal(t, i, it.Index)
		assert.False(t, it.Timestamp.IsZero())
	}
}

func TestSession_TerminalIsReadOnly(t *testing.T) {
	s, err := New("id-1", "p", "")
	require.NoError(t, err)
	require.NoError(t, s.End(StatusCompleted))

	err = s.Append(Iteration{PromptSent: "p"})
	assert.True(t, IsValidation(err))

	err = s.End(StatusAborted)
	assert.True(t, IsValidation(err))
}

func TestSession_EndRejectsNonTerminalStatus(t *testing.T) {
	s, err := New("id-1", "p", "")
	require.NoError(t, err)

	assert.True(t, IsValidation(s.End(StatusActive)))
	assert.Equal(t, StatusActive, s.Status)
}

func TestSession_LastReturnsMutableTail(t *testing.T) {
	s, err := New("id-1", "p", "")
	require.NoError(t, err)
	assert.Nil(t, s.Last())

	require.NoError(t, s.Append(Iteration{PromptSent: "p"}))
	s.Last().Suggestion = &Suggestion{RevisedPrompt: "p2"}

	assert.Equal(t, "p2", s.History[0].Suggestion.RevisedPrompt)
}

func TestSession_CloneIsDeep(t *testing.T) {
	accepted := false
	s, err := New("id-1", "p", "")
	require.NoError(t, err)
	require.NoError(t, s.Append(Iteration{
		PromptSent: "p",
		Response:   strptr("r"),
		Evaluation: &evaluate.Evaluation{
			Verdict: evaluate.VerdictComplied,
			Scores:  map[string]float64{evaluate.ScoreGoal: 0.5},
		},
		Suggestion: &Suggestion{RevisedPrompt: "p2", Accepted: &accepted},
	}))

	clone := s.Clone()
	*clone.History[0].Response = "changed"
	clone.History[0].Evaluation.Scores[evaluate.ScoreGoal] = 0.9
	*clone.History[0].Suggestion.Accepted = true
	clone.CurrentPrompt = "other"

	assert.Equal(t, "r", *s.History[0].Response)
	assert.Equal(t, 0.5, s.History[0].Evaluation.Scores[evaluate.ScoreGoal])
	assert.False(t, *s.History[0].Suggestion.Accepted)
	assert.Equal(t, "p", s.CurrentPrompt)
}

func TestSession_PromptPreview(t *testing.T) {
	long := ""
	for i := 0; i < 20; i++ {
		long += "abcde"
	}
	s, err := New("id-1", long, "")
	require.NoError(t, err)

	p := s.PromptPreview(50)
	assert.Len(t, p, 53)
	assert.Equal(t, long[:50]+"...", p)

	short, err := New("id-2", "tiny", "")
	require.NoError(t, err)
	assert.Equal(t, "tiny", short.PromptPreview(50))
}

func TestStatus_Predicates(t *testing.T) {
	assert.False(t, StatusActive.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusAborted.IsTerminal())
	assert.True(t, StatusActive.Valid())
	assert.False(t, Status("paused").Valid())
}
