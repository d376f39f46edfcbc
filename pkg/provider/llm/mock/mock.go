// Package mock provides a test double for llm.Provider.
//
// Example:
//
//	p := &mock.Provider{Response: &llm.CompletionResponse{Content: `{"score": 80}`}}
//	resp, _ := p.Complete(ctx, req)
//	p.Calls()[0].Req.JSONMode // what the scorer asked for
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/talk2me/pkg/provider/llm"
)

// CompleteCall records a single invocation of Provider.Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider. Configure it before
// use; the zero value answers every request with nil, nil.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when Err is nil.
	Response *llm.CompletionResponse

	// Err, if non-nil, is returned from Complete.
	Err error

	// Func, if set, answers instead of Response and Err. It runs outside
	// the lock, so it may block on ctx.
	Func func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Caps is returned by Capabilities.
	Caps llm.ModelCapabilities

	calls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and answers with Func or Response, Err.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err := p.Func, p.Response, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Capabilities returns Caps.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Caps
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.calls...)
}

// CallCount returns the number of Complete calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// SetResponse swaps the canned answer between calls.
func (p *Provider) SetResponse(resp *llm.CompletionResponse, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Response, p.Err = resp, err
}
