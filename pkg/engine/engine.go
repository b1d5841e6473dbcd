// Package engine drives a prompt refinement session through its
// iteration loop: send the current prompt to the target model, evaluate
// the response, optionally request and act on a revision suggestion,
// and persist every committed step.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ternarybob/refine/pkg/evaluate"
	"github.com/ternarybob/refine/pkg/llm"
	"github.com/ternarybob/refine/pkg/modify"
	"github.com/ternarybob/refine/pkg/session"
)

// Engine operates one session at a time. Transitions are discrete
// blocking steps; the engine is not safe for concurrent use on the
// same session, matching the single controlling flow the session
// model assumes.
type Engine struct {
	store     session.Store
	target    llm.Provider
	evaluator evaluate.Evaluator
	modifier  *modify.Modifier
	logger    *slog.Logger

	current *session.Session
	phase   Phase
}

// Option configures an Engine.
type Option func(*Engine) error

// WithStore sets the session store.
func WithStore(store session.Store) Option {
	return func(e *Engine) error {
		e.store = store
		return nil
	}
}

// WithTarget sets the target model provider.
func WithTarget(provider llm.Provider) Option {
	return func(e *Engine) error {
		e.target = provider
		return nil
	}
}

// WithEvaluator sets the response evaluator.
func WithEvaluator(ev evaluate.Evaluator) Option {
	return func(e *Engine) error {
		e.evaluator = ev
		return nil
	}
}

// WithModifier sets the prompt modifier.
func WithModifier(m *modify.Modifier) Option {
	return func(e *Engine) error {
		e.modifier = m
		return nil
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// New creates an engine. A store, target provider, and evaluator are
// required; the modifier is optional and only needed for
// RequestModification.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		phase:  PhaseIdle,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.store == nil {
		return nil, fmt.Errorf("engine requires a session store")
	}
	if e.target == nil {
		return nil, fmt.Errorf("engine requires a target provider")
	}
	if e.evaluator == nil {
		return nil, fmt.Errorf("engine requires an evaluator")
	}
	return e, nil
}

// Session returns the currently attached session, or nil.
func (e *Engine) Session() *session.Session {
	return e.current
}

// Phase returns the engine's position within the current iteration.
func (e *Engine) Phase() Phase {
	return e.phase
}

// StartSession creates and attaches a fresh session.
func (e *Engine) StartSession(initialPrompt, goalQuery string) (*session.Session, error) {
	s, err := e.store.Create(initialPrompt, goalQuery)
	if err != nil {
		return nil, err
	}

	e.current = s
	e.phase = PhaseIdle
	e.logger.Info("session started", "session", s.ID)
	return s, nil
}

// LoadSession attaches an existing session. Loading always lands in
// Idle: pending suggestions from a previous run stay visible in
// history but are not re-armed.
func (e *Engine) LoadSession(id string) (*session.Session, error) {
	s, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}

	e.current = s
	e.phase = PhaseIdle
	e.logger.Info("session loaded", "session", s.ID, "iterations", len(s.History))
	return s, nil
}

func (e *Engine) requireSession() error {
	if e.current == nil {
		return &session.ValidationError{Msg: "no session attached"}
	}
	if e.current.Status.IsTerminal() {
		return &session.ValidationError{Msg: fmt.Sprintf("session %s is %s and read-only", e.current.ID, e.current.Status)}
	}
	return nil
}

func (e *Engine) requirePhase(op string, allowed ...Phase) error {
	for _, p := range allowed {
		if e.phase == p {
			return nil
		}
	}
	return &session.ValidationError{Msg: fmt.Sprintf("%s is not valid in phase %s", op, e.phase)}
}

// resolvePrompt merges the goal query into the prompt text that is
// actually sent. A {query} placeholder is substituted in place;
// otherwise the query is appended.
func resolvePrompt(prompt, goalQuery string) string {
	if goalQuery == "" {
		return prompt
	}
	if strings.Contains(prompt, "{query}") {
		return strings.ReplaceAll(prompt, "{query}", goalQuery)
	}
	return fmt.Sprintf("%s\n\nRegarding the query: %s", prompt, goalQuery)
}

// ProcessCurrentPrompt sends the current prompt to the target model,
// evaluates the response, and commits the iteration. The goal query is
// merged into the outgoing text, but the iteration records the prompt
// as the user maintains it. Valid only in Idle. A failed generation is
// still recorded as an iteration, then the error is returned; the
// engine stays in Idle in that case.
func (e *Engine) ProcessCurrentPrompt(ctx context.Context) (*session.Iteration, error) {
	if err := e.requireSession(); err != nil {
		return nil, err
	}
	if err := e.requirePhase("process", PhaseIdle); err != nil {
		return nil, err
	}

	s := e.current
	outgoing := resolvePrompt(s.CurrentPrompt, s.GoalQuery)
	e.logger.Info("processing prompt", "session", s.ID, "iteration", len(s.History))

	content, genErr := llm.Generate(ctx, e.target, "", outgoing)
	if genErr != nil {
		it := session.Iteration{
			PromptSent:      s.CurrentPrompt,
			GenerationError: genErr.Error(),
		}
		if err := e.commit(it); err != nil {
			return nil, err
		}
		e.logger.Error("generation failed", "session", s.ID, "error", genErr)
		return s.Last(), genErr
	}

	it := session.Iteration{
		PromptSent: s.CurrentPrompt,
		Response:   &content,
	}

	eval, evalErr := e.evaluator.Evaluate(ctx, s.CurrentPrompt, content, s.GoalQuery)
	if evalErr == nil {
		it.Evaluation = eval
	}

	if err := e.commit(it); err != nil {
		return nil, err
	}

	e.phase = PhaseResponded
	if evalErr != nil {
		// The response is committed; the caller decides whether an
		// unscored iteration is worth continuing with.
		e.logger.Warn("evaluation failed", "session", s.ID, "error", evalErr)
		return s.Last(), evalErr
	}

	e.logger.Info("iteration evaluated",
		"session", s.ID,
		"verdict", string(eval.Verdict),
		"refusal", eval.Refusal)
	return s.Last(), nil
}

// RequestModification asks the modifier for a prompt revision against
// the latest iteration. Valid only in Responded. On failure the engine
// stays in Responded and no mutation is committed.
func (e *Engine) RequestModification(ctx context.Context) (*session.Suggestion, error) {
	if err := e.requireSession(); err != nil {
		return nil, err
	}
	if err := e.requirePhase("request modification", PhaseResponded); err != nil {
		return nil, err
	}
	if e.modifier == nil {
		return nil, &session.ValidationError{Msg: "no modifier configured"}
	}

	s := e.current
	last := s.Last()

	response := ""
	if last.Response != nil {
		response = *last.Response
	}

	proposed, err := e.modifier.Suggest(ctx, s.CurrentPrompt, response, last.Evaluation, s.GoalQuery)
	if err != nil {
		return nil, err
	}

	sug := &session.Suggestion{
		RevisedPrompt: proposed.RevisedPrompt,
		Rationale:     proposed.Rationale,
	}

	prev := last.Suggestion
	last.Suggestion = sug
	s.Touch()
	if err := e.save(); err != nil {
		last.Suggestion = prev
		return nil, err
	}

	e.phase = PhaseSuggested
	e.logger.Info("suggestion attached", "session", s.ID, "iteration", last.Index)
	return sug, nil
}

// AcceptSuggestion adopts the pending suggestion as the current prompt.
// Valid only in Suggested.
func (e *Engine) AcceptSuggestion() error {
	return e.decideSuggestion(true)
}

// RejectSuggestion discards the pending suggestion, leaving the current
// prompt unchanged. Valid only in Suggested.
func (e *Engine) RejectSuggestion() error {
	return e.decideSuggestion(false)
}

func (e *Engine) decideSuggestion(accept bool) error {
	if err := e.requireSession(); err != nil {
		return err
	}
	op := "reject suggestion"
	if accept {
		op = "accept suggestion"
	}
	if err := e.requirePhase(op, PhaseSuggested); err != nil {
		return err
	}

	s := e.current
	last := s.Last()
	if last == nil || last.Suggestion == nil {
		return &session.ValidationError{Msg: "no pending suggestion"}
	}

	prevPrompt := s.CurrentPrompt
	prevAccepted := last.Suggestion.Accepted

	decision := accept
	last.Suggestion.Accepted = &decision
	if accept {
		s.CurrentPrompt = last.Suggestion.RevisedPrompt
	}
	s.Touch()

	if err := e.save(); err != nil {
		last.Suggestion.Accepted = prevAccepted
		s.CurrentPrompt = prevPrompt
		return err
	}

	e.phase = PhaseIdle
	e.logger.Info("suggestion decided", "session", s.ID, "accepted", accept)
	return nil
}

// ManualEdit replaces the current prompt directly and records the edit
// as a lightweight iteration. Valid in any phase of an active session.
// An edit made while a suggestion is pending implicitly rejects it.
func (e *Engine) ManualEdit(newPrompt string) error {
	if err := e.requireSession(); err != nil {
		return err
	}
	if newPrompt == "" {
		return &session.ValidationError{Msg: "new prompt must not be empty"}
	}

	s := e.current
	prevPrompt := s.CurrentPrompt

	var editedSuggestion *session.Suggestion
	if e.phase == PhaseSuggested {
		if last := s.Last(); last != nil && last.Suggestion != nil && last.Suggestion.Accepted == nil {
			rejected := false
			last.Suggestion.Accepted = &rejected
			editedSuggestion = last.Suggestion
		}
	}

	s.CurrentPrompt = newPrompt
	it := session.Iteration{
		PromptSent: newPrompt,
		ManualEdit: true,
	}
	if err := e.commitRevert(it, func() {
		s.CurrentPrompt = prevPrompt
		if editedSuggestion != nil {
			editedSuggestion.Accepted = nil
		}
	}); err != nil {
		return err
	}

	e.phase = PhaseIdle
	e.logger.Info("prompt edited", "session", s.ID)
	return nil
}

// End moves the session to a terminal status and persists it. After a
// successful End the engine detaches from the session.
func (e *Engine) End(status session.Status) error {
	if err := e.requireSession(); err != nil {
		return err
	}

	s := e.current
	prevStatus := s.Status
	if err := s.End(status); err != nil {
		return err
	}
	if err := e.save(); err != nil {
		s.Status = prevStatus
		return err
	}

	e.logger.Info("session ended", "session", s.ID, "status", string(status))
	e.current = nil
	e.phase = PhaseIdle
	return nil
}

// commit appends the iteration and persists, reverting the in-memory
// append when the save fails so history never diverges from disk.
func (e *Engine) commit(it session.Iteration) error {
	s := e.current
	if err := s.Append(it); err != nil {
		return err
	}
	if err := e.save(); err != nil {
		s.History = s.History[:len(s.History)-1]
		return err
	}
	return nil
}

func (e *Engine) commitRevert(it session.Iteration, revert func()) error {
	s := e.current
	if err := s.Append(it); err != nil {
		revert()
		return err
	}
	if err := e.save(); err != nil {
		s.History = s.History[:len(s.History)-1]
		revert()
		return err
	}
	return nil
}

func (e *Engine) save() error {
	return e.store.Save(e.current)
}
