package app

import (
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/talk2me/internal/config"
	"github.com/MrWong99/talk2me/internal/observe"
	"github.com/MrWong99/talk2me/internal/resilience"
	"github.com/MrWong99/talk2me/pkg/audio"
	"github.com/MrWong99/talk2me/pkg/provider/llm"
	"github.com/MrWong99/talk2me/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/talk2me/pkg/provider/llm/openai"
	"github.com/MrWong99/talk2me/pkg/provider/stt"
	"github.com/MrWong99/talk2me/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/talk2me/pkg/provider/stt/openai"
	"github.com/MrWong99/talk2me/pkg/provider/stt/whisper"
)

// Providers holds the configured backends. Nil means not configured; the
// pipeline then runs degraded.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
}

// RegisterBuiltinProviders wires every built-in factory into reg. dec is
// handed to the STT backends that need PCM input; nil selects a native-only
// decoder.
func RegisterBuiltinProviders(reg *config.Registry, dec audio.Decoder) {
	// ── LLM ──────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := config.OptString(entry.Options, "organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// OpenAI itself goes through openai-go above; everything else any-llm
	// speaks to is registered under its backend name.
	for _, name := range anyllm.Backends() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── STT ──────────────────────────────────────────────────────────────────
	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if dec != nil {
			opts = append(opts, whisper.WithDecoder(dec))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = config.OptString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if dec != nil {
			opts = append(opts, whisper.WithNativeDecoder(dec))
		}
		if n := config.OptInt(entry.Options, "concurrency"); n > 0 {
			opts = append(opts, whisper.WithNativeConcurrency(n))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	slog.Debug("registered providers", "llm", reg.Names("llm"), "stt", reg.Names("stt"))
}

// BuildProviders instantiates the providers named in cfg. Each configured
// primary is wrapped in a failover group with its fallbacks, so every
// backend sits behind a circuit breaker and reports its calls to m. m may
// be nil.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	ps := &Providers{}
	pc := cfg.Providers

	if pc.LLM.Name != "" {
		primary, err := reg.CreateLLM(pc.LLM)
		if err != nil {
			return nil, fmt.Errorf("app: create llm provider %q: %w", pc.LLM.Name, err)
		}
		group := resilience.NewLLMFallback(primary, pc.LLM.Name, fallbackConfig(m, "llm"))
		for _, fb := range pc.LLMFallbacks {
			p, err := reg.CreateLLM(fb)
			if err != nil {
				return nil, fmt.Errorf("app: create llm fallback %q: %w", fb.Name, err)
			}
			group.AddFallback(fb.Name, p)
		}
		ps.LLM = group
		slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name, "model", pc.LLM.Model, "fallbacks", len(pc.LLMFallbacks))
	}

	if pc.STT.Name != "" {
		primary, err := reg.CreateSTT(pc.STT)
		if err != nil {
			return nil, fmt.Errorf("app: create stt provider %q: %w", pc.STT.Name, err)
		}
		group := resilience.NewSTTFallback(primary, pc.STT.Name, fallbackConfig(m, "stt"))
		for _, fb := range pc.STTFallbacks {
			p, err := reg.CreateSTT(fb)
			if err != nil {
				return nil, fmt.Errorf("app: create stt fallback %q: %w", fb.Name, err)
			}
			group.AddFallback(fb.Name, p)
		}
		ps.STT = group
		slog.Info("provider created", "kind", "stt", "name", pc.STT.Name, "model", pc.STT.Model, "fallbacks", len(pc.STTFallbacks))
	}

	return ps, nil
}

func fallbackConfig(m *observe.Metrics, kind string) resilience.FallbackConfig {
	var cfg resilience.FallbackConfig
	if m != nil {
		cfg.Observer = m.ProviderObserver(kind)
	}
	return cfg
}

// NewDecoder returns the audio decoder shared by feature extraction and the
// STT backends. Without ffmpeg on PATH, WebM uploads cannot be decoded and
// their attempts run without delivery features.
func NewDecoder() audio.Decoder {
	ff, err := audio.LookupFFmpeg()
	if err != nil {
		slog.Warn("ffmpeg unavailable, only WAV, MP3 and Ogg/Opus uploads will be decoded", "err", err)
		return audio.NewFileDecoder()
	}
	return audio.NewFileDecoder(audio.WithExternal(ff))
}
