package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/talk2me/internal/app"
	"github.com/MrWong99/talk2me/internal/attempt"
	"github.com/MrWong99/talk2me/internal/config"
	"github.com/MrWong99/talk2me/internal/features"
	"github.com/MrWong99/talk2me/internal/store"
)

type analyzeOptions struct {
	topicText string
	topicID   int64
	jobs      int
}

// fileResult is one line of analyze output.
type fileResult struct {
	File   string            `json:"file"`
	Result *attempt.Response `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func newAnalyzeCmd(configPath *string) *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze [flags] FILE...",
		Short: "Score local recordings without storing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, files []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return analyze(ctx, *configPath, opts, files, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.topicText, "topic-text", "", "expected content to match the transcript against")
	f.Int64Var(&opts.topicID, "topic-id", 0, "look the expected content up in the configured store")
	f.IntVarP(&opts.jobs, "jobs", "j", runtime.NumCPU(), "recordings analysed in parallel")
	return cmd
}

func analyze(ctx context.Context, configPath string, opts analyzeOptions, files []string, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	newLogger(cfg.Server.LogLevel)

	dec := app.NewDecoder()
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg, dec)
	providers, err := app.BuildProviders(cfg, reg, nil)
	if err != nil {
		return err
	}

	pcfg := attempt.Config{
		Extractor: features.New(dec),
		STT:       providers.STT,
		LLM:       providers.LLM,
		TempDir:   cfg.Storage.TempDir,
		Tuning:    app.TuningFromConfig(cfg.Analysis),
	}
	if opts.topicText == "" && opts.topicID != 0 {
		topics, closeStore, err := openTopics(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		pcfg.Topics = topics
	}
	pipeline, err := attempt.New(pcfg)
	if err != nil {
		return err
	}

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.jobs))
	for i, path := range files {
		g.Go(func() error {
			results[i] = analyzeFile(gctx, pipeline, path, opts)
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	var failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d recordings failed", failed, len(files))
	}
	return nil
}

func analyzeFile(ctx context.Context, p *attempt.Pipeline, path string, opts analyzeOptions) fileResult {
	res := fileResult{File: path}
	f, err := os.Open(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()

	resp, err := p.Run(ctx, attempt.Request{
		Audio:     f,
		TopicID:   opts.topicID,
		TopicText: opts.topicText,
	})
	if err != nil {
		slog.Error("analysis failed", "file", path, "err", err)
		res.Error = err.Error()
		return res
	}
	res.Result = resp
	return res
}

// openTopics opens the configured store for topic lookups. A memory store
// only knows the built-in topics.
func openTopics(ctx context.Context, cfg *config.Config) (attempt.TopicStore, func(), error) {
	s := cfg.Storage
	st, err := store.Open(ctx, store.Options{
		Driver:      s.Driver,
		PostgresDSN: s.PostgresDSN,
		SQLitePath:  s.SQLitePath,
	})
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			slog.Warn("close store", "err", err)
		}
	}
	if s.Driver == "" || s.Driver == store.DriverMemory {
		if _, err := store.Seed(ctx, st, store.DefaultSeed()); err != nil {
			closeStore()
			return nil, nil, err
		}
	}
	return st, closeStore, nil
}
