// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry of the talk2me server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Defaults applied by [ApplyDefaults] to unset fields.
const (
	DefaultListenAddr          = ":8000"
	DefaultMaxUploadMB         = 25
	DefaultSilenceThreshold    = 0.005
	DefaultBrightnessThreshold = 1000
	DefaultSTTTimeout          = 60 * time.Second
	DefaultLLMTimeout          = 30 * time.Second
	DefaultStorageDriver       = "memory"
	DefaultSQLitePath          = "data/talk2me.db"
	DefaultUploadDir           = "uploads"
	DefaultTempMaxAge          = 30 * time.Minute
	DefaultServiceName         = "talk2me"
)

// DefaultFillerWords is used when analysis.filler_words is empty.
var DefaultFillerWords = []string{"um", "uh", "like", "you know", "so", "actually", "basically", "literally"}

// Config is the root configuration. Load it with [Load] or
// [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// MaxUploadMB caps the size of an uploaded recording.
	MaxUploadMB int `yaml:"max_upload_mb"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds PEM file paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the transcription and scoring backends. Fallbacks
// are tried in order when the primary fails.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	STT          ProviderEntry   `yaml:"stt"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
}

// ProviderEntry configures one provider. Name selects the constructor in the
// [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values such as "language" or
	// "model_path".
	Options map[string]any `yaml:"options"`
}

// AnalysisConfig holds the hot-reloadable knobs of the attempt pipeline.
type AnalysisConfig struct {
	// SilenceThreshold is the RMS volume below which a recording is silent.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// BrightnessThreshold (Hz) splits Confident from Calm in heuristic
	// scoring.
	BrightnessThreshold float64 `yaml:"brightness_threshold"`

	FillerWords []string `yaml:"filler_words"`

	STTTimeout time.Duration `yaml:"stt_timeout"`
	LLMTimeout time.Duration `yaml:"llm_timeout"`

	// ScoringMode is "auto" or "heuristic".
	ScoringMode string `yaml:"scoring_mode"`

	// EnforceWeighting recomputes the model's overall score from its
	// content and delivery parts.
	EnforceWeighting bool `yaml:"enforce_weighting"`

	// Language is passed to the transcriber as a hint.
	Language string `yaml:"language"`
}

// StorageConfig selects persistence.
type StorageConfig struct {
	// Driver is memory, sqlite or postgres.
	Driver      string `yaml:"driver"`
	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`

	// UploadDir holds stored recordings served under /uploads/.
	UploadDir string `yaml:"upload_dir"`

	// TempDir holds in-flight uploads. Empty means the OS default.
	TempDir string `yaml:"temp_dir"`

	// TempMaxAge is the age after which the janitor removes a temp upload.
	TempMaxAge time.Duration `yaml:"temp_max_age"`

	// SeedFile optionally names a YAML file of topics and users loaded at
	// startup.
	SeedFile string `yaml:"seed_file"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = DefaultMaxUploadMB
	}

	a := &cfg.Analysis
	if a.SilenceThreshold == 0 {
		a.SilenceThreshold = DefaultSilenceThreshold
	}
	if a.BrightnessThreshold == 0 {
		a.BrightnessThreshold = DefaultBrightnessThreshold
	}
	if len(a.FillerWords) == 0 {
		a.FillerWords = append([]string(nil), DefaultFillerWords...)
	}
	if a.STTTimeout == 0 {
		a.STTTimeout = DefaultSTTTimeout
	}
	if a.LLMTimeout == 0 {
		a.LLMTimeout = DefaultLLMTimeout
	}
	if a.ScoringMode == "" {
		a.ScoringMode = "auto"
	}

	s := &cfg.Storage
	if s.Driver == "" {
		s.Driver = DefaultStorageDriver
	}
	if s.SQLitePath == "" {
		s.SQLitePath = DefaultSQLitePath
	}
	if s.UploadDir == "" {
		s.UploadDir = DefaultUploadDir
	}
	if s.TempMaxAge == 0 {
		s.TempMaxAge = DefaultTempMaxAge
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}
