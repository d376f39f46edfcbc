package resilience

import (
	"context"

	"github.com/MrWong99/talk2me/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over across transcription
// backends.
type STTFallback struct {
	g *Group[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns an [STTFallback] that prefers primary.
func NewSTTFallback(primary stt.Provider, name string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{g: NewGroup(primary, name, cfg)}
}

// AddFallback appends a backend tried after the ones already added.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.g.Add(name, p) }

// Names lists the backends in failover order.
func (f *STTFallback) Names() []string { return f.g.Names() }

// States reports each backend's breaker state.
func (f *STTFallback) States() map[string]State { return f.g.States() }

// Transcribe implements [stt.Provider]. An unconfigured backend counts as
// failed, so when none is configured the error still matches
// [stt.ErrNotConfigured].
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	return Call(f.g, func(p stt.Provider) (*stt.Result, error) {
		return p.Transcribe(ctx, req)
	})
}
