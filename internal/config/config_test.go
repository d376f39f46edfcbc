package config_test

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/talk2me/internal/config"
	"github.com/MrWong99/talk2me/pkg/provider/llm"
	llmmock "github.com/MrWong99/talk2me/pkg/provider/llm/mock"
	"github.com/MrWong99/talk2me/pkg/provider/stt"
	sttmock "github.com/MrWong99/talk2me/pkg/provider/stt/mock"
)

// ── defaults ─────────────────────────────────────────────────────────────────

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config
	config.ApplyDefaults(&cfg)

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxUploadMB != 25 {
		t.Errorf("max_upload_mb = %d", cfg.Server.MaxUploadMB)
	}
	a := cfg.Analysis
	if a.SilenceThreshold != 0.005 || a.BrightnessThreshold != 1000 {
		t.Errorf("thresholds = %v / %v", a.SilenceThreshold, a.BrightnessThreshold)
	}
	if !slices.Equal(a.FillerWords, config.DefaultFillerWords) {
		t.Errorf("filler_words = %v", a.FillerWords)
	}
	if a.STTTimeout != 60*time.Second || a.LLMTimeout != 30*time.Second {
		t.Errorf("timeouts = %v / %v", a.STTTimeout, a.LLMTimeout)
	}
	if a.ScoringMode != "auto" {
		t.Errorf("scoring_mode = %q", a.ScoringMode)
	}
	s := cfg.Storage
	if s.Driver != "memory" || s.UploadDir != "uploads" || s.TempMaxAge != 30*time.Minute {
		t.Errorf("storage = %+v", s)
	}
	if cfg.Telemetry.ServiceName != "talk2me" {
		t.Errorf("service_name = %q", cfg.Telemetry.ServiceName)
	}
}

func TestApplyDefaults_KeepsSetValues(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Server:   config.ServerConfig{ListenAddr: ":9000", LogLevel: config.LogDebug},
		Analysis: config.AnalysisConfig{SilenceThreshold: 0.01, FillerWords: []string{"er"}},
		Storage:  config.StorageConfig{Driver: "sqlite"},
	}
	config.ApplyDefaults(&cfg)

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server overwritten: %+v", cfg.Server)
	}
	if cfg.Analysis.SilenceThreshold != 0.01 || !slices.Equal(cfg.Analysis.FillerWords, []string{"er"}) {
		t.Errorf("analysis overwritten: %+v", cfg.Analysis)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("driver overwritten: %q", cfg.Storage.Driver)
	}
}

func TestApplyDefaults_FillerWordsNotShared(t *testing.T) {
	t.Parallel()

	var cfg config.Config
	config.ApplyDefaults(&cfg)
	cfg.Analysis.FillerWords[0] = "mutated"
	if config.DefaultFillerWords[0] == "mutated" {
		t.Fatal("ApplyDefaults aliased DefaultFillerWords")
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()

	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "trace", "INFO"} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()

	tests := map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	}
	for in, want := range tests {
		if got := in.SlogLevel(); got != want {
			t.Errorf("%q.SlogLevel() = %v, want %v", in, got, want)
		}
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateLLM(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	want := &llmmock.Provider{}
	var got config.ProviderEntry
	reg.RegisterLLM("fake", func(e config.ProviderEntry) (llm.Provider, error) {
		got = e
		return want, nil
	})

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "fake", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p != want {
		t.Error("returned a different provider")
	}
	if got.Model != "m1" {
		t.Errorf("factory saw model %q", got.Model)
	}
}

func TestRegistry_CreateSTT(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	want := &sttmock.Provider{}
	reg.RegisterSTT("fake", func(config.ProviderEntry) (stt.Provider, error) { return want, nil })

	p, err := reg.CreateSTT(config.ProviderEntry{Name: "fake"})
	if err != nil || p != want {
		t.Fatalf("CreateSTT = %v, %v", p, err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	reg := config.NewRegistry()
	reg.RegisterLLM("bad", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "bad"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterLLM("openai", nil)
	reg.RegisterLLM("anthropic", nil)
	reg.RegisterSTT("whisper", nil)

	if got := reg.Names("llm"); !slices.Equal(got, []string{"anthropic", "openai"}) {
		t.Errorf("llm names = %v", got)
	}
	if got := reg.Names("stt"); !slices.Equal(got, []string{"whisper"}) {
		t.Errorf("stt names = %v", got)
	}
	if got := reg.Names("tts"); len(got) != 0 {
		t.Errorf("unknown kind names = %v", got)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for i := 0; ctx.Err() == nil; i++ {
			reg.RegisterSTT("fake", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
		}
	}()
	for range 200 {
		_, _ = reg.CreateSTT(config.ProviderEntry{Name: "fake"})
		_ = reg.Names("stt")
	}
}

func TestOptString(t *testing.T) {
	t.Parallel()

	opts := map[string]any{"language": "en", "n": 3}
	if got := config.OptString(opts, "language"); got != "en" {
		t.Errorf("language = %q", got)
	}
	if got := config.OptString(opts, "n"); got != "" {
		t.Errorf("non-string = %q", got)
	}
	if got := config.OptString(nil, "x"); got != "" {
		t.Errorf("nil map = %q", got)
	}
}

func TestOptInt(t *testing.T) {
	t.Parallel()

	opts := map[string]any{"a": 3, "b": int64(4), "c": 2.0, "d": 2.5, "e": "7"}
	for key, want := range map[string]int{"a": 3, "b": 4, "c": 2, "d": 0, "e": 0, "missing": 0} {
		if got := config.OptInt(opts, key); got != want {
			t.Errorf("OptInt(%q) = %d, want %d", key, got, want)
		}
	}
}
