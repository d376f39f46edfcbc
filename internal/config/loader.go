package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/talk2me/internal/coach"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// warns about names outside this list.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "deepgram", "whisper", "whisper-native"},
}

// Environment variables read by [ApplyEnv].
const (
	EnvOpenAIKey   = "TALK2ME_OPENAI_API_KEY"
	EnvDeepgramKey = "TALK2ME_DEEPGRAM_API_KEY"
	EnvPostgresDSN = "TALK2ME_POSTGRES_DSN"

	// EnvOpenAIKeyStd is the OpenAI SDK's own variable, used when
	// EnvOpenAIKey is unset.
	EnvOpenAIKeyStd = "OPENAI_API_KEY"
)

const (
	storageMemory   = "memory"
	storageSQLite   = "sqlite"
	storagePostgres = "postgres"
)

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, then applies defaults, the process
// environment and [Validate]. Unknown keys are rejected. An empty document
// yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.Getenv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the config used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.Getenv)
	return cfg
}

// ApplyEnv overlays secrets from the environment. API keys only fill empty
// api_key fields; the Postgres DSN always wins over the file.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	openaiKey := getenv(EnvOpenAIKey)
	if openaiKey == "" {
		openaiKey = getenv(EnvOpenAIKeyStd)
	}
	deepgramKey := getenv(EnvDeepgramKey)

	fill := func(e *ProviderEntry) {
		if e.APIKey != "" {
			return
		}
		switch e.Name {
		case "openai":
			e.APIKey = openaiKey
		case "deepgram":
			e.APIKey = deepgramKey
		}
	}
	fill(&cfg.Providers.LLM)
	fill(&cfg.Providers.STT)
	for i := range cfg.Providers.LLMFallbacks {
		fill(&cfg.Providers.LLMFallbacks[i])
	}
	for i := range cfg.Providers.STTFallbacks {
		fill(&cfg.Providers.STTFallbacks[i])
	}

	if dsn := getenv(EnvPostgresDSN); dsn != "" {
		cfg.Storage.PostgresDSN = dsn
	}
}

// Validate checks cfg and returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadMB < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb %d must not be negative", cfg.Server.MaxUploadMB))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, e := range cfg.Providers.LLMFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", e.Name)
	}
	for i, e := range cfg.Providers.STTFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", e.Name)
	}
	if cfg.Providers.LLM.Name == "" && len(cfg.Providers.LLMFallbacks) > 0 {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	if cfg.Providers.STT.Name == "" && len(cfg.Providers.STTFallbacks) > 0 {
		errs = append(errs, errors.New("providers.stt_fallbacks requires providers.stt"))
	}

	a := cfg.Analysis
	if a.SilenceThreshold < 0 || a.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("analysis.silence_threshold %v is out of range [0, 1)", a.SilenceThreshold))
	}
	if a.BrightnessThreshold < 0 {
		errs = append(errs, fmt.Errorf("analysis.brightness_threshold %v must not be negative", a.BrightnessThreshold))
	}
	if a.STTTimeout < 0 || a.LLMTimeout < 0 {
		errs = append(errs, errors.New("analysis timeouts must not be negative"))
	}
	for i, w := range a.FillerWords {
		if strings.TrimSpace(w) == "" {
			errs = append(errs, fmt.Errorf("analysis.filler_words[%d] is empty", i))
		}
	}
	if _, err := coach.ParseMode(a.ScoringMode); err != nil {
		errs = append(errs, fmt.Errorf("analysis.scoring_mode: %w", err))
	}
	if a.ScoringMode != string(coach.ModeHeuristic) && cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; attempts will get placeholder feedback (set analysis.scoring_mode: heuristic for offline grading)")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; transcripts will be unavailable")
	}

	s := cfg.Storage
	switch s.Driver {
	case "", storageMemory:
	case storageSQLite:
		if s.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case storagePostgres:
		if s.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("storage.postgres_dsn (or %s) is required for the postgres driver", EnvPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: memory, sqlite, postgres", s.Driver))
	}
	if s.TempMaxAge < 0 {
		errs = append(errs, fmt.Errorf("storage.temp_max_age %v must not be negative", s.TempMaxAge))
	}

	return errors.Join(errs...)
}

// validateProviderName warns when name is set but not built in.
func validateProviderName(kind, name string) {
	if name == "" || slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
