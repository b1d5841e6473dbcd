// Package refine provides an SDK for iterative prompt refinement
// sessions.
//
// Refine drives a conversation loop against a target LLM: send the
// current prompt, evaluate the response, and revise the prompt via
// assistant suggestions or manual edits. Every step is recorded in a
// durable session history.
//
// # Quick Start
//
//	store, err := refine.OpenStore("./sessions")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	router := refine.NewRouter(llm.NewOllamaProvider(""))
//	eng, err := refine.NewEngine(
//	    refine.WithStore(store),
//	    refine.WithTarget(router.ForTarget()),
//	    refine.WithEvaluator(evaluate.NewRuleBased()),
//	)
//
//	sess, _ := eng.StartSession("Explain photosynthesis", "")
//	it, _ := eng.ProcessCurrentPrompt(ctx)
//
// # Architecture
//
// Refine separates the loop into four capabilities:
//   - TARGET: the model whose responses are being improved
//   - EVALUATOR: scores responses (rule based or LLM judge)
//   - MODIFIER: proposes prompt revisions via an assistant model
//   - STORE: persists sessions as append-only iteration histories
//
// # Core Principles
//
//   - History is law: every transition persists before it commits
//   - Explicit phases: process, suggest, decide, one step at a time
//   - Pluggable models: role-based routing over a single provider
package refine

import (
	"github.com/ternarybob/refine/pkg/engine"
	"github.com/ternarybob/refine/pkg/evaluate"
	"github.com/ternarybob/refine/pkg/llm"
	"github.com/ternarybob/refine/pkg/modify"
	"github.com/ternarybob/refine/pkg/session"
)

// Engine is an alias for the core engine type.
type Engine = engine.Engine

// Phase is an alias for the engine phase type.
type Phase = engine.Phase

// Session is an alias for the session record type.
type Session = session.Session

// Iteration is an alias for one recorded refinement step.
type Iteration = session.Iteration

// Evaluation is an alias for the evaluator result type.
type Evaluation = evaluate.Evaluation

// Suggestion is an alias for a proposed prompt revision.
type Suggestion = session.Suggestion

// NewEngine creates a refinement engine.
var NewEngine = engine.New

// Engine options.
var (
	WithStore     = engine.WithStore
	WithTarget    = engine.WithTarget
	WithEvaluator = engine.WithEvaluator
	WithModifier  = engine.WithModifier
	WithLogger    = engine.WithLogger
)

// OpenStore opens a file-backed session store rooted at dir.
func OpenStore(dir string) (*session.FileStore, error) {
	return session.Open(dir)
}

// NewMemoryStore creates an in-memory session store, mainly for tests.
func NewMemoryStore() *session.MemoryStore {
	return session.NewMemoryStore()
}

// NewRouter creates a role router over the given provider.
func NewRouter(provider llm.Provider) *llm.Router {
	return llm.NewRouter(provider)
}

// NewModifier creates a prompt modifier backed by the given provider.
func NewModifier(provider llm.Provider, model string) *modify.Modifier {
	return modify.New(provider, model)
}
