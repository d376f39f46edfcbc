// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (OpenAI Whisper,
// Deepgram pre-recorded, a local whisper.cpp server or the in-process
// whisper.cpp bindings) and exposes a uniform file-in, text-out interface.
// Coaching depends on filler words surviving transcription, so every provider
// is asked for verbatim output through [Request.Verbatim].
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no STT backend has been configured. The
// caller is expected to degrade to a placeholder transcript rather than fail.
var ErrNotConfigured = errors.New("stt: no provider configured")

// VerbatimPrompt is the priming text sent to prompt-driven models when
// Request.Verbatim is set. Whisper-family models mimic the style of the
// prompt, so a prompt that itself contains disfluencies makes them keep the
// speaker's fillers instead of cleaning them up.
const VerbatimPrompt = "Umm, let me think like, hmm... Okay, here's what I'm, like, thinking. So, uh, you know, basically I actually literally mean it."

// Request describes one batch transcription.
type Request struct {
	// Path is the audio file on local disk. Its container format is
	// detected from content, not from the file extension.
	Path string

	// Language is the BCP-47 language hint (e.g., "en", "de"). An empty
	// string falls back to the provider default.
	Language string

	// Prompt is an optional priming text. When Verbatim is set and Prompt
	// is empty, providers that accept prompts use [VerbatimPrompt].
	Prompt string

	// Verbatim requests that disfluencies (um, uh, like, ...) are preserved.
	Verbatim bool
}

// PromptText returns the prompt a provider should send for r.
func (r Request) PromptText() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	if r.Verbatim {
		return VerbatimPrompt
	}
	return ""
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe transcribes the whole file named by req.Path. It returns an
	// error when the backend is unreachable, rejects the request or the
	// audio cannot be read; the caller owns degradation policy.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
