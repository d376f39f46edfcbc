// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller requests the expected file and
// options, and to feed a controlled Result or error back.
//
// Example:
//
//	p := &mock.Provider{Result: &stt.Result{Text: "um hello"}}
//	res, _ := p.Transcribe(ctx, stt.Request{Path: path})
//	len(p.Calls()) // 1
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/talk2me/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil. A nil Result yields
	// an empty transcript.
	Result *stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Hook, if set, runs before Transcribe returns. Tests use it to block
	// until the context expires or to inspect the file while it exists.
	Hook func(ctx context.Context, req stt.Request) error

	calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, TranscribeCall{Ctx: ctx, Req: req})
	hook, res, err := p.Hook, p.Result, p.Err
	p.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx, req); herr != nil {
			return nil, herr
		}
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &stt.Result{}, nil
	}
	out := *res
	return &out, nil
}

// Calls returns a copy of all recorded calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
