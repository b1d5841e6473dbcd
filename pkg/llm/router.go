package llm

import (
	"context"
	"fmt"
	"sync"
)

// Router provides multi-model routing capabilities.
// It routes requests to different models based on the role a call plays
// in a refinement session: the target model whose responses are being
// improved, the judge model scoring responses, and the assistant model
// proposing prompt revisions.
type Router struct {
	mu sync.RWMutex

	// Provider is the underlying LLM provider.
	provider Provider

	// Model configurations
	targetModel    string
	judgeModel     string
	assistantModel string
	defaultModel   string
}

// NewRouter creates a new router with the given provider.
func NewRouter(provider Provider) *Router {
	models := provider.Models()
	defaultModel := ""
	if len(models) > 0 {
		defaultModel = models[0]
	}

	return &Router{
		provider:       provider,
		targetModel:    defaultModel,
		judgeModel:     defaultModel,
		assistantModel: defaultModel,
		defaultModel:   defaultModel,
	}
}

// SetTargetModel sets the model whose responses are refined.
func (r *Router) SetTargetModel(model string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	if model != "" {
		r.targetModel = model
	}
	return r
}

// SetJudgeModel sets the model used for response evaluation.
func (r *Router) SetJudgeModel(model string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	if model != "" {
		r.judgeModel = model
	}
	return r
}

// SetAssistantModel sets the model used for prompt revision.
func (r *Router) SetAssistantModel(model string) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	if model != "" {
		r.assistantModel = model
	}
	return r
}

// TargetModel returns the target model.
func (r *Router) TargetModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.targetModel
}

// JudgeModel returns the judge model.
func (r *Router) JudgeModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.judgeModel
}

// AssistantModel returns the assistant model.
func (r *Router) AssistantModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assistantModel
}

// ForTarget returns a provider configured for target calls.
func (r *Router) ForTarget() Provider {
	return &routedProvider{router: r, model: r.TargetModel()}
}

// ForJudge returns a provider configured for judge calls.
func (r *Router) ForJudge() Provider {
	return &routedProvider{router: r, model: r.JudgeModel()}
}

// ForAssistant returns a provider configured for assistant calls.
func (r *Router) ForAssistant() Provider {
	return &routedProvider{router: r, model: r.AssistantModel()}
}

// Provider returns the underlying provider.
func (r *Router) Provider() Provider {
	return r.provider
}

// Name returns the router name.
func (r *Router) Name() string {
	return fmt.Sprintf("router:%s", r.provider.Name())
}

// Models returns the underlying provider's models.
func (r *Router) Models() []string {
	return r.provider.Models()
}

// Complete routes to the default model when none is set on the request.
func (r *Router) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		r.mu.RLock()
		req.Model = r.defaultModel
		r.mu.RUnlock()
	}
	return r.provider.Complete(ctx, req)
}

// routedProvider wraps the router with a fixed model.
type routedProvider struct {
	router *Router
	model  string
}

func (p *routedProvider) Name() string {
	return p.router.Name()
}

func (p *routedProvider) Models() []string {
	return []string{p.model}
}

func (p *routedProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	return p.router.provider.Complete(ctx, req)
}
