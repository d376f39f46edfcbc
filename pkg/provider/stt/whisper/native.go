package whisper

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/talk2me/pkg/audio"
	"github.com/MrWong99/talk2me/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider runs whisper.cpp in-process. Building it needs libwhisper.a
// and whisper.h on LIBRARY_PATH and C_INCLUDE_PATH.
//
// The model is loaded once and shared. Every transcription gets its own
// whisper context, and at most the configured number run at the same time
// since each one saturates several cores.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	decoder  audio.Decoder
	slots    *semaphore.Weighted
}

type NativeOption func(*nativeConfig)

type nativeConfig struct {
	language    string
	decoder     audio.Decoder
	concurrency int
}

func WithNativeLanguage(lang string) NativeOption {
	return func(c *nativeConfig) { c.language = lang }
}

func WithNativeDecoder(d audio.Decoder) NativeOption {
	return func(c *nativeConfig) { c.decoder = d }
}

// WithNativeConcurrency caps simultaneous inferences. The default is
// GOMAXPROCS/4, at least one.
func WithNativeConcurrency(n int) NativeOption {
	return func(c *nativeConfig) { c.concurrency = n }
}

// NewNative loads the ggml model at modelPath. Close releases it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is required")
	}
	cfg := nativeConfig{
		language:    defaultLanguage,
		concurrency: max(1, runtime.GOMAXPROCS(0)/4),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.decoder == nil {
		cfg.decoder = audio.NewFileDecoder()
	}

	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load %s: %w", modelPath, err)
	}
	return &NativeProvider{
		model:    model,
		language: cfg.language,
		decoder:  cfg.decoder,
		slots:    semaphore.NewWeighted(int64(max(1, cfg.concurrency))),
	}, nil
}

func (p *NativeProvider) Close() error {
	if p.model == nil {
		return nil
	}
	return p.model.Close()
}

// Transcribe decodes req.Path and runs inference on it once a slot is free.
// Inference itself cannot be interrupted; ctx is honoured while waiting for
// a slot and checked again afterwards.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	samples, err := loadSamples(ctx, p.decoder, req.Path)
	if err != nil {
		return nil, err
	}
	lang := cmp.Or(req.Language, p.language)

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("whisper: wait for slot: %w", err)
	}
	text, err := p.infer(audio.ToFloat32(samples), lang, req.PromptText())
	p.slots.Release(1)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return result(text, lang, len(samples)), nil
}

func (p *NativeProvider) infer(samples []float32, lang, prompt string) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: language rejected, keeping model default", "language", lang, "err", err)
	}
	if prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var sb strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
}
