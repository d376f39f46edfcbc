package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/talk2me/internal/app"
	"github.com/MrWong99/talk2me/internal/config"
	"github.com/MrWong99/talk2me/internal/observe"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	lv := newLogger(cfg.Server.LogLevel)

	slog.Info("talk2me starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"storage", cfg.Storage.Driver,
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	metrics := observe.DefaultMetrics()
	dec := app.NewDecoder()
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg, dec)

	providers, err := app.BuildProviders(cfg, reg, metrics)
	if err != nil {
		return err
	}
	logProviders(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithLogLevel(lv),
	)
	if err != nil {
		return err
	}

	if configPath != "" {
		w, err := config.NewWatcher(configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func logProviders(cfg *config.Config) {
	describe := func(e config.ProviderEntry, fallbacks int) string {
		if e.Name == "" {
			return "(not configured)"
		}
		s := e.Name
		if e.Model != "" {
			s += " / " + e.Model
		}
		if fallbacks > 0 {
			s += fmt.Sprintf(" (+%d fallbacks)", fallbacks)
		}
		return s
	}
	p := cfg.Providers
	slog.Info("providers",
		"llm", describe(p.LLM, len(p.LLMFallbacks)),
		"stt", describe(p.STT, len(p.STTFallbacks)),
		"scoring_mode", cfg.Analysis.ScoringMode,
	)
}
