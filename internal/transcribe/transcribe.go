// Package transcribe turns an attempt recording into a verbatim transcript.
//
// A [Transcriber] always produces a [Result]. When no speech-to-text backend
// is configured the transcript is the [UnavailableText] placeholder; when the
// backend fails or times out it is the error message behind [ErrorPrefix].
// Both are ordinary text so the attempt pipeline keeps going and the scorer
// grades them as off-topic.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/talk2me/internal/observe"
	"github.com/MrWong99/talk2me/pkg/provider/stt"
)

const (
	// UnavailableText is the transcript used when no backend is configured.
	UnavailableText = "Transcription unavailable (No API Key)"

	// ErrorPrefix starts the transcript used when the backend failed.
	ErrorPrefix = "Error during transcription: "

	// DefaultTimeout bounds one transcription call.
	DefaultTimeout = 60 * time.Second
)

// Status tags a [Result].
type Status int

const (
	// StatusOK means the backend returned a transcript.
	StatusOK Status = iota

	// StatusUnavailable means no backend is configured.
	StatusUnavailable

	// StatusFailed means the backend returned an error.
	StatusFailed

	// StatusTimeout means the backend did not answer within the timeout.
	StatusTimeout
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnavailable:
		return "unavailable"
	case StatusFailed:
		return "failed"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of one transcription.
type Result struct {
	// Text is the transcript, or a sentinel for degraded statuses.
	Text string

	Status Status

	// Err is the underlying error for StatusFailed and StatusTimeout.
	Err error

	// Language is the language reported by the backend, if any.
	Language string
}

// OK reports whether Text came from a backend.
func (r Result) OK() bool { return r.Status == StatusOK }

// WordCount is the number of whitespace-separated tokens in Text.
func (r Result) WordCount() int { return WordCount(r.Text) }

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int { return len(strings.Fields(text)) }

// Option configures a [Transcriber].
type Option func(*Transcriber)

// WithTimeout bounds each backend call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(t *Transcriber) { t.timeout = d }
}

// WithLanguage sets the language hint passed to the backend.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithVerbatim controls whether fillers are requested. Default: true.
func WithVerbatim(v bool) Option {
	return func(t *Transcriber) { t.verbatim = v }
}

// Transcriber wraps an optional [stt.Provider].
type Transcriber struct {
	provider stt.Provider
	timeout  time.Duration
	language string
	verbatim bool
}

// New returns a [Transcriber]. A nil provider yields [StatusUnavailable]
// results.
func New(p stt.Provider, opts ...Option) *Transcriber {
	t := &Transcriber{
		provider: p,
		timeout:  DefaultTimeout,
		verbatim: true,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transcribe transcribes the file at path. It never returns an error.
func (t *Transcriber) Transcribe(ctx context.Context, path string) Result {
	if t.provider == nil {
		return Result{Text: UnavailableText, Status: StatusUnavailable}
	}

	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	res, err := t.provider.Transcribe(callCtx, stt.Request{
		Path:     path,
		Language: t.language,
		Verbatim: t.verbatim,
	})
	log := observe.Logger(ctx)
	switch {
	case err == nil && res != nil:
		return Result{Text: strings.TrimSpace(res.Text), Status: StatusOK, Language: res.Language}
	case err == nil:
		err = errors.New("transcribe: backend returned no result")
	case errors.Is(err, stt.ErrNotConfigured):
		log.Warn("no speech-to-text backend configured")
		return Result{Text: UnavailableText, Status: StatusUnavailable, Err: err}
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		err = fmt.Errorf("timed out after %s", t.timeout)
		log.Warn("transcription timed out", "timeout", t.timeout)
		return Result{Text: ErrorPrefix + err.Error(), Status: StatusTimeout, Err: err}
	}

	log.Warn("transcription failed", "err", err)
	return Result{Text: ErrorPrefix + err.Error(), Status: StatusFailed, Err: err}
}
