// Package session provides the prompt refinement session model and its
// durable store. A session tracks one evolving prompt together with an
// append-only history of iterations: each iteration records the prompt
// that was sent, the target model's response, its evaluation, and any
// revision suggestion that followed.
package session

import (
	"fmt"
	"time"

	"github.com/ternarybob/refine/pkg/evaluate"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive means the session accepts further iterations.
	StatusActive Status = "active"
	// StatusCompleted means the session was ended successfully.
	StatusCompleted Status = "completed"
	// StatusAborted means the session was ended without completion.
	StatusAborted Status = "aborted"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusCompleted || s == StatusAborted
}

// Session is one persisted prompt refinement workflow.
type Session struct {
	// ID is the opaque session identifier, assigned at creation.
	ID string `json:"id"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt advances on every mutation.
	UpdatedAt time.Time `json:"updated_at"`

	// GoalQuery is the user-supplied objective, immutable after creation.
	GoalQuery string `json:"goal_query,omitempty"`

	// CurrentPrompt is the prompt the next process step will send.
	CurrentPrompt string `json:"current_prompt"`

	// Status is active, completed, or aborted.
	Status Status `json:"status"`

	// History is the append-only iteration record, in causal order.
	History []Iteration `json:"history"`
}

// Iteration is one recorded step within a session.
type Iteration struct {
	// Index is the 0-based position in history.
	Index int `json:"index"`

	// PromptSent is the exact prompt submitted for this iteration.
	PromptSent string `json:"prompt_sent"`

	// Response is the raw target model output. Nil when the iteration
	// records a manual edit or a failed generation.
	Response *string `json:"response,omitempty"`

	// GenerationError holds the error message when the target call failed.
	GenerationError string `json:"generation_error,omitempty"`

	// Evaluation is the evaluator result, nil until evaluated.
	Evaluation *evaluate.Evaluation `json:"evaluation,omitempty"`

	// Suggestion is the proposed prompt revision, if one was requested.
	Suggestion *Suggestion `json:"modification_suggestion,omitempty"`

	// ManualEdit marks iterations that record a manual prompt edit.
	ManualEdit bool `json:"manual_edit,omitempty"`

	// Timestamp is when the iteration was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Suggestion is a proposed prompt revision and its outcome.
type Suggestion struct {
	// RevisedPrompt is the proposed replacement prompt.
	RevisedPrompt string `json:"revised_prompt"`

	// Rationale explains the revision.
	Rationale string `json:"rationale,omitempty"`

	// Accepted is nil while the suggestion is pending.
	Accepted *bool `json:"accepted,omitempty"`
}

// New constructs an in-memory session. Callers normally go through
// Store.Create, which also persists the result.
func New(id, initialPrompt, goalQuery string) (*Session, error) {
	if initialPrompt == "" {
		return nil, &ValidationError{Msg: "initial prompt must not be empty"}
	}

	now := time.Now().UTC()
	return &Session{
		ID:            id,
		CreatedAt:     now,
		UpdatedAt:     now,
		GoalQuery:     goalQuery,
		CurrentPrompt: initialPrompt,
		Status:        StatusActive,
		History:       []Iteration{},
	}, nil
}

// Append adds an iteration to the history, assigning the next index.
// It fails when the session is terminal.
func (s *Session) Append(it Iteration) error {
	if s.Status.IsTerminal() {
		return &ValidationError{Msg: fmt.Sprintf("session %s is %s and read-only", s.ID, s.Status)}
	}

	it.Index = len(s.History)
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now().UTC()
	}
	s.History = append(s.History, it)
	s.Touch()
	return nil
}

// Last returns the most recent iteration, or nil for an empty history.
// Only the last iteration may be amended; earlier entries are immutable.
func (s *Session) Last() *Iteration {
	if len(s.History) == 0 {
		return nil
	}
	return &s.History[len(s.History)-1]
}

// Touch advances the update timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// End moves the session to a terminal status.
func (s *Session) End(status Status) error {
	if !status.IsTerminal() {
		return &ValidationError{Msg: fmt.Sprintf("%q is not a terminal status", status)}
	}
	if s.Status.IsTerminal() {
		return &ValidationError{Msg: fmt.Sprintf("session %s already ended as %s", s.ID, s.Status)}
	}

	s.Status = status
	s.Touch()
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	clone.History = make([]Iteration, len(s.History))
	for i, it := range s.History {
		clone.History[i] = it.clone()
	}
	return &clone
}

func (it Iteration) clone() Iteration {
	c := it
	if it.Response != nil {
		v := *it.Response
		c.Response = &v
	}
	if it.Evaluation != nil {
		e := it.Evaluation.Clone()
		c.Evaluation = e
	}
	if it.Suggestion != nil {
		sg := *it.Suggestion
		if it.Suggestion.Accepted != nil {
			a := *it.Suggestion.Accepted
			sg.Accepted = &a
		}
		c.Suggestion = &sg
	}
	return c
}

// PromptPreview returns a truncated view of the current prompt for
// listings.
func (s *Session) PromptPreview(limit int) string {
	return preview(s.CurrentPrompt, limit)
}

func preview(text string, limit int) string {
	if limit <= 0 {
		limit = 50
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
