package resilience

import (
	"context"

	"github.com/MrWong99/talk2me/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across scoring backends.
type LLMFallback struct {
	g *Group[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns an [LLMFallback] that prefers primary.
func NewLLMFallback(primary llm.Provider, name string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{g: NewGroup(primary, name, cfg)}
}

// AddFallback appends a backend tried after the ones already added.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.g.Add(name, p) }

// Names lists the backends in failover order.
func (f *LLMFallback) Names() []string { return f.g.Names() }

// States reports each backend's breaker state.
func (f *LLMFallback) States() map[string]State { return f.g.States() }

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(f.g, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities reports the primary's capabilities. A fallback without
// native JSON mode still honours JSONMode through its system prompt.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	return f.g.backends[0].p.Capabilities()
}
