package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/talk2me/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
  max_upload_mb: 10

providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  stt:
    name: whisper
    base_url: http://localhost:8081
    options:
      language: en
  llm_fallbacks:
    - name: ollama
      model: llama3

analysis:
  silence_threshold: 0.01
  filler_words: [um, uh]
  stt_timeout: 45s
  scoring_mode: heuristic
  enforce_weighting: true

storage:
  driver: sqlite
  sqlite_path: /var/lib/talk2me/db.sqlite
  upload_dir: /var/lib/talk2me/uploads
  temp_max_age: 1h
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogDebug || cfg.Server.MaxUploadMB != 10 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Providers.LLM.Name != "openai" || cfg.Providers.LLM.APIKey != "sk-test" || cfg.Providers.LLM.Model != "gpt-4o-mini" {
		t.Errorf("llm = %+v", cfg.Providers.LLM)
	}
	if got := config.OptString(cfg.Providers.STT.Options, "language"); got != "en" {
		t.Errorf("stt language option = %q", got)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "ollama" {
		t.Errorf("llm_fallbacks = %+v", cfg.Providers.LLMFallbacks)
	}

	a := cfg.Analysis
	if a.SilenceThreshold != 0.01 {
		t.Errorf("silence_threshold = %v", a.SilenceThreshold)
	}
	if a.STTTimeout != 45*time.Second {
		t.Errorf("stt_timeout = %v", a.STTTimeout)
	}
	if a.LLMTimeout != config.DefaultLLMTimeout {
		t.Errorf("llm_timeout default not applied: %v", a.LLMTimeout)
	}
	if a.ScoringMode != "heuristic" || !a.EnforceWeighting {
		t.Errorf("scoring = %q / %v", a.ScoringMode, a.EnforceWeighting)
	}
	if len(a.FillerWords) != 2 {
		t.Errorf("filler_words = %v", a.FillerWords)
	}

	if cfg.Storage.Driver != "sqlite" || cfg.Storage.TempMaxAge != time.Hour {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr || cfg.Storage.Driver != "memory" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFromReader_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "server:\n  colour: blue\n", "colour"},
		{"bad yaml", "server: [\n", "decode yaml"},
		{"bad log level", "server:\n  log_level: loud\n", "server.log_level"},
		{"negative upload", "server:\n  max_upload_mb: -1\n", "max_upload_mb"},
		{"half tls", "server:\n  tls:\n    cert_file: c.pem\n", "server.tls"},
		{"silence out of range", "analysis:\n  silence_threshold: 1.5\n", "silence_threshold"},
		{"bad scoring mode", "analysis:\n  scoring_mode: vibes\n", "scoring_mode"},
		{"blank filler", "analysis:\n  filler_words: [um, \" \"]\n", "filler_words[1]"},
		{"bad driver", "storage:\n  driver: mongo\n", "storage.driver"},
		{"fallback without primary", "providers:\n  stt_fallbacks:\n    - name: whisper\n", "requires providers.stt"},
		{"nameless fallback", "providers:\n  llm:\n    name: openai\n  llm_fallbacks:\n    - model: x\n", "llm_fallbacks[0].name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Storage.Driver = "mongo"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "storage.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidate_StorageRequirements(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Storage.Driver = "postgres"
	cfg.Storage.PostgresDSN = ""
	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "postgres_dsn") {
		t.Errorf("postgres without dsn: %v", err)
	}

	cfg.Storage.Driver = "sqlite"
	cfg.Storage.SQLitePath = ""
	if err := config.Validate(cfg); err == nil || !strings.Contains(err.Error(), "sqlite_path") {
		t.Errorf("sqlite without path: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		config.EnvOpenAIKeyStd: "sk-std",
		config.EnvDeepgramKey:  "dg-env",
		config.EnvPostgresDSN:  "postgres://env/db",
	}
	getenv := func(k string) string { return env[k] }

	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			LLM:          config.ProviderEntry{Name: "openai"},
			STT:          config.ProviderEntry{Name: "deepgram", APIKey: "dg-file"},
			STTFallbacks: []config.ProviderEntry{{Name: "openai"}},
		},
		Storage: config.StorageConfig{PostgresDSN: "postgres://file/db"},
	}
	config.ApplyEnv(cfg, getenv)

	if cfg.Providers.LLM.APIKey != "sk-std" {
		t.Errorf("llm key = %q, want OPENAI_API_KEY fallback", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.STT.APIKey != "dg-file" {
		t.Errorf("file key overwritten: %q", cfg.Providers.STT.APIKey)
	}
	if cfg.Providers.STTFallbacks[0].APIKey != "sk-std" {
		t.Errorf("fallback key = %q", cfg.Providers.STTFallbacks[0].APIKey)
	}
	if cfg.Storage.PostgresDSN != "postgres://env/db" {
		t.Errorf("dsn = %q", cfg.Storage.PostgresDSN)
	}

	env[config.EnvOpenAIKey] = "sk-talk2me"
	cfg.Providers.LLM.APIKey = ""
	config.ApplyEnv(cfg, getenv)
	if cfg.Providers.LLM.APIKey != "sk-talk2me" {
		t.Errorf("TALK2ME_OPENAI_API_KEY should win, got %q", cfg.Providers.LLM.APIKey)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "talk2me.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
