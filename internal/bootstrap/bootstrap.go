// Package bootstrap wires configuration into the refinement runtime:
// provider, router, evaluator, modifier, store, engine, and archive.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/ternarybob/refine/internal/config"
	"github.com/ternarybob/refine/pkg/archive"
	"github.com/ternarybob/refine/pkg/engine"
	"github.com/ternarybob/refine/pkg/evaluate"
	"github.com/ternarybob/refine/pkg/llm"
	"github.com/ternarybob/refine/pkg/modify"
	"github.com/ternarybob/refine/pkg/session"
)

// Runtime holds the wired components of a refine process.
type Runtime struct {
	Config  *config.Config
	Store   *session.FileStore
	Router  *llm.Router
	Archive *archive.Archive
	Watcher *archive.Watcher
}

// NewProvider builds the configured LLM provider.
func NewProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return llm.NewAnthropicProvider(cfg.LLM.APIKey), nil
	case "ollama", "":
		return llm.NewOllamaProvider(cfg.LLM.BaseURL), nil
	case "gemini":
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return llm.NewGeminiProvider(cfg.LLM.APIKey)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.LLM.Provider)
	}
}

// NewRouter builds the role router from configuration.
func NewRouter(cfg *config.Config) (*llm.Router, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	router := llm.NewRouter(provider).
		SetTargetModel(cfg.LLM.TargetModel).
		SetJudgeModel(cfg.LLM.JudgeModel).
		SetAssistantModel(cfg.LLM.AssistantModel)
	return router, nil
}

// NewEvaluator builds the configured evaluation strategy.
func NewEvaluator(cfg *config.Config, router *llm.Router) (evaluate.Evaluator, error) {
	return evaluate.New(cfg.Evaluation.Strategy, router.ForJudge(), router.JudgeModel())
}

// New assembles the full runtime. The archive is nil when disabled.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := session.Open(cfg.SessionsDir())
	if err != nil {
		return nil, err
	}

	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config: cfg,
		Store:  store,
		Router: router,
	}

	if cfg.Archive.Enabled {
		var opts []archive.Option
		if cfg.Archive.EmbeddingAPIKey != "" {
			embedder, err := archive.NewGeminiEmbedding(ctx, cfg.Archive.EmbeddingAPIKey, cfg.Archive.EmbeddingModel)
			if err != nil {
				return nil, err
			}
			opts = append(opts, archive.WithEmbedding(embedder))
		}

		arch, err := archive.New(store, opts...)
		if err != nil {
			return nil, err
		}
		if err := arch.IndexAll(ctx); err != nil {
			return nil, err
		}

		watcher, err := archive.NewWatcher(arch, store.Root(), cfg.Archive.WatchDebounceMs)
		if err != nil {
			return nil, err
		}

		rt.Archive = arch
		rt.Watcher = watcher
	}

	return rt, nil
}

// EngineFactory returns a factory producing engines wired to this
// runtime.
func (rt *Runtime) EngineFactory() func() (*engine.Engine, error) {
	return func() (*engine.Engine, error) {
		evaluator, err := NewEvaluator(rt.Config, rt.Router)
		if err != nil {
			return nil, err
		}

		return engine.New(
			engine.WithStore(rt.Store),
			engine.WithTarget(rt.Router.ForTarget()),
			engine.WithEvaluator(evaluator),
			engine.WithModifier(modify.New(rt.Router.ForAssistant(), rt.Router.AssistantModel())),
		)
	}
}

// Close stops background components.
func (rt *Runtime) Close() {
	if rt.Watcher != nil {
		_ = rt.Watcher.Stop()
	}
}
