package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Tuning and log
// level changes are applied live; everything listed in RestartRequired only
// takes effect after a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TuningChanged lists the analysis keys that differ, e.g.
	// "analysis.silence_threshold".
	TuningChanged []string

	TempMaxAgeChanged bool

	// RestartRequired lists changed keys that cannot be hot-applied.
	RestartRequired []string
}

// Empty reports whether nothing relevant changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.TuningChanged) == 0 && !d.TempMaxAgeChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oa, na := old.Analysis, new.Analysis
	tuning := []struct {
		key     string
		changed bool
	}{
		{"analysis.silence_threshold", oa.SilenceThreshold != na.SilenceThreshold},
		{"analysis.brightness_threshold", oa.BrightnessThreshold != na.BrightnessThreshold},
		{"analysis.filler_words", !slices.Equal(oa.FillerWords, na.FillerWords)},
		{"analysis.stt_timeout", oa.STTTimeout != na.STTTimeout},
		{"analysis.llm_timeout", oa.LLMTimeout != na.LLMTimeout},
		{"analysis.scoring_mode", oa.ScoringMode != na.ScoringMode},
		{"analysis.enforce_weighting", oa.EnforceWeighting != na.EnforceWeighting},
		{"analysis.language", oa.Language != na.Language},
	}
	for _, t := range tuning {
		if t.changed {
			d.TuningChanged = append(d.TuningChanged, t.key)
		}
	}

	d.TempMaxAgeChanged = old.Storage.TempMaxAge != new.Storage.TempMaxAge

	restart := []struct {
		key     string
		changed bool
	}{
		{"server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr},
		{"server.max_upload_mb", old.Server.MaxUploadMB != new.Server.MaxUploadMB},
		{"server.tls", !reflect.DeepEqual(old.Server.TLS, new.Server.TLS)},
		{"providers", !reflect.DeepEqual(old.Providers, new.Providers)},
		{"storage.driver", old.Storage.Driver != new.Storage.Driver},
		{"storage.postgres_dsn", old.Storage.PostgresDSN != new.Storage.PostgresDSN},
		{"storage.sqlite_path", old.Storage.SQLitePath != new.Storage.SQLitePath},
		{"storage.upload_dir", old.Storage.UploadDir != new.Storage.UploadDir},
		{"storage.temp_dir", old.Storage.TempDir != new.Storage.TempDir},
		{"storage.seed_file", old.Storage.SeedFile != new.Storage.SeedFile},
		{"telemetry", old.Telemetry != new.Telemetry},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.key)
		}
	}
	return d
}
