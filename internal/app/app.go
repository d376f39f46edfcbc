// Package app wires the talk2me subsystems into a running server.
//
// New opens the store, seeds it, builds the attempt pipeline and the HTTP
// handler. Run serves HTTP and sweeps stale uploads until the context ends.
// Shutdown tears everything down. ApplyConfig hot-applies a reloaded config.
//
// Tests inject doubles through the With* options; anything not injected is
// built from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/talk2me/internal/api"
	"github.com/MrWong99/talk2me/internal/attempt"
	"github.com/MrWong99/talk2me/internal/blob"
	"github.com/MrWong99/talk2me/internal/coach"
	"github.com/MrWong99/talk2me/internal/config"
	"github.com/MrWong99/talk2me/internal/features"
	"github.com/MrWong99/talk2me/internal/health"
	"github.com/MrWong99/talk2me/internal/janitor"
	"github.com/MrWong99/talk2me/internal/observe"
	"github.com/MrWong99/talk2me/internal/store"
)

// sweepInterval is how often the janitor looks for stale uploads.
const sweepInterval = time.Minute

// App owns the lifetime of every subsystem.
type App struct {
	cfg       *config.Config
	providers *Providers

	store     store.Store
	blobs     *blob.Store
	extractor attempt.FeatureExtractor
	pipeline  *attempt.Pipeline
	janitor   *janitor.Janitor
	metrics   *observe.Metrics
	level     *slog.LevelVar
	handler   http.Handler

	mu     sync.Mutex
	server *http.Server

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option configures an [App].
type Option func(*App)

// WithStore injects a store instead of opening the configured driver. The
// caller keeps ownership; Shutdown does not close it.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithExtractor injects the feature extractor.
func WithExtractor(e attempt.FeatureExtractor) Option {
	return func(a *App) { a.extractor = e }
}

// WithMetrics injects the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets [App.ApplyConfig] change the log level of the handler
// built around lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New builds an App from cfg. providers may be nil or partially filled.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.extractor == nil {
		a.extractor = features.New(NewDecoder())
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Recordings ────────────────────────────────────────────────────
	blobs, err := blob.New(cfg.Storage.UploadDir)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("app: init uploads: %w", err)
	}
	a.blobs = blobs

	// ── 3. Pipeline ──────────────────────────────────────────────────────
	a.pipeline, err = attempt.New(attempt.Config{
		Extractor: a.extractor,
		STT:       providers.STT,
		LLM:       providers.LLM,
		Topics:    a.store,
		Users:     a.store,
		Attempts:  a.store,
		Blobs:     a.blobs,
		TempDir:   cfg.Storage.TempDir,
		Tuning:    TuningFromConfig(cfg.Analysis),
		Metrics:   a.metrics,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 4. Janitor ───────────────────────────────────────────────────────
	a.janitor = janitor.New(cfg.Storage.TempDir, attempt.TempPrefix, cfg.Storage.TempMaxAge)

	// ── 5. HTTP ──────────────────────────────────────────────────────────
	if err := a.initHTTP(); err != nil {
		a.close()
		return nil, fmt.Errorf("app: init http: %w", err)
	}

	return a, nil
}

// initStore opens the configured store unless one was injected, then seeds
// it. A fresh memory store gets the built-in topics.
func (a *App) initStore(ctx context.Context) error {
	s := a.cfg.Storage
	if a.store == nil {
		st, err := store.Open(ctx, store.Options{
			Driver:      s.Driver,
			PostgresDSN: s.PostgresDSN,
			SQLitePath:  s.SQLitePath,
		})
		if err != nil {
			return err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)

		if s.Driver == "" || s.Driver == store.DriverMemory {
			n, err := store.Seed(ctx, st, store.DefaultSeed())
			if err != nil {
				a.close()
				return err
			}
			slog.Info("seeded built-in topics", "created", n)
		}
	}

	if s.SeedFile != "" {
		sf, err := store.LoadSeedFile(s.SeedFile)
		if err != nil {
			a.close()
			return err
		}
		n, err := store.Seed(ctx, a.store, sf)
		if err != nil {
			a.close()
			return err
		}
		slog.Info("seeded store", "path", s.SeedFile, "created", n)
	}
	return nil
}

func (a *App) initHTTP() error {
	srv, err := api.New(api.Config{
		Pipeline:       a.pipeline,
		Attempts:       a.store,
		Users:          a.store,
		Uploads:        a.blobs,
		MaxUploadBytes: int64(a.cfg.Server.MaxUploadMB) << 20,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	srv.Register(mux)
	health.New(
		health.Store(a.store),
		health.WritableDir("uploads", a.blobs.Dir()),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.handler = observe.Middleware(a.metrics)(mux)
	return nil
}

// TuningFromConfig maps the analysis section onto pipeline tuning.
func TuningFromConfig(c config.AnalysisConfig) attempt.Tuning {
	mode, err := coach.ParseMode(c.ScoringMode)
	if err != nil {
		mode = coach.ModeAuto
	}
	return attempt.Tuning{
		SilenceThreshold:    c.SilenceThreshold,
		BrightnessThreshold: c.BrightnessThreshold,
		FillerWords:         c.FillerWords,
		STTTimeout:          c.STTTimeout,
		LLMTimeout:          c.LLMTimeout,
		ScoringMode:         mode,
		EnforceWeighting:    c.EnforceWeighting,
		Language:            c.Language,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Pipeline returns the attempt pipeline.
func (a *App) Pipeline() *attempt.Pipeline { return a.pipeline }

// Store returns the store in use.
func (a *App) Store() store.Store { return a.store }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on server.listen_addr and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln and runs the janitor until ctx is cancelled. It
// returns nil after a cancellation and the server error otherwise.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.janitor.Start(sweepInterval); err != nil {
		_ = ln.Close()
		return fmt.Errorf("app: start janitor: %w", err)
	}

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		errCh <- err
	}()
	slog.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new.
// Changes that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.TuningChanged) > 0 {
		a.pipeline.SetTuning(TuningFromConfig(new.Analysis))
		slog.Info("analysis tuning reloaded", "changed", d.TuningChanged)
	}
	if d.TempMaxAgeChanged {
		a.janitor.SetMaxAge(new.Storage.TempMaxAge)
		slog.Info("temp upload max age changed", "max_age", new.Storage.TempMaxAge)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after a restart", "keys", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, waiting for in-flight attempts until ctx
// expires, then stops the janitor and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		a.mu.Lock()
		srv := a.server
		a.mu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}
		a.janitor.Stop()
		if err := a.close(); err != nil {
			errs = append(errs, err)
		}
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

// close runs the closers once.
func (a *App) close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
