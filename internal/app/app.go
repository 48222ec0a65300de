// Package app assembles the generation stack from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"psadtagent/internal/artifact"
	"psadtagent/internal/config"
	"psadtagent/internal/generator"
	"psadtagent/internal/jobs"
	"psadtagent/internal/knowledge"
	"psadtagent/internal/lint"
	"psadtagent/internal/llm"
	"psadtagent/internal/pkgstore"
	"psadtagent/internal/server"
)

// Core is what the CLI commands need: retrieval, the model and the linter.
type Core struct {
	Config    *config.Config
	Logger    *zap.Logger
	Knowledge knowledge.Store
	LLM       llm.Client
	Linter    *lint.Linter
	Generator *generator.Generator
	Switches  *knowledge.SwitchCatalog
}

// NewCore opens the knowledge store (indexing the docs directory when it is
// empty) and the LLM client.
func NewCore(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...generator.Option) (*Core, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Core{Config: cfg, Logger: logger}

	linter, err := NewLinter(cfg.LintRulesFile)
	if err != nil {
		return nil, err
	}
	c.Linter = linter

	if cfg.Knowledge.SwitchesFile != "" {
		sw, err := knowledge.LoadSwitches(cfg.Knowledge.SwitchesFile)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded switch catalog", zap.Int("records", sw.Len()))
		c.Switches = sw
	}

	emb, err := InitEmbedder(ctx, cfg.Knowledge)
	if err != nil {
		return nil, err
	}
	kb, err := InitKnowledge(ctx, cfg.Knowledge, emb, logger)
	if err != nil {
		return nil, err
	}
	c.Knowledge = kb
	if _, err := knowledge.NewIndexer(kb, logger).EnsureIndexed(ctx, cfg.Knowledge.DocsDir); err != nil {
		c.Close()
		return nil, fmt.Errorf("app: index docs: %w", err)
	}

	client, err := NewLLM(ctx, cfg.LLM, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.LLM = client

	opts = append([]generator.Option{generator.WithLinter(linter), generator.WithLogger(logger)}, opts...)
	c.Generator = generator.New(kb, client, opts...)
	return c, nil
}

// NewLLM resolves the configured provider behind the standard middleware.
func NewLLM(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (llm.Client, error) {
	return llm.NewClient(ctx, llm.Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		RPS:      cfg.RPS,
		Burst:    cfg.Burst,
		Retries:  cfg.Retries,
		Timeout:  cfg.Timeout,
		Logger:   logger,
	})
}

// NewLinter loads a YAML rule table, or the built-in rules when path is
// empty.
func NewLinter(path string) (*lint.Linter, error) {
	if path == "" {
		return lint.New(nil), nil
	}
	rs, err := lint.LoadRules(path)
	if err != nil {
		return nil, err
	}
	return lint.New(rs), nil
}

func (c *Core) Close() error {
	var errs []error
	if c.LLM != nil {
		errs = append(errs, c.LLM.Close())
	}
	if c.Knowledge != nil {
		errs = append(errs, c.Knowledge.Close())
	}
	return errors.Join(errs...)
}

// App is the HTTP service: Core plus persistence and background jobs.
type App struct {
	*Core
	Packages  pkgstore.Store
	Artifacts artifact.Store
	Runner    *jobs.Runner
	server    *server.Server
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	core, err := NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Core: core}

	if a.Packages, err = initPackages(ctx, cfg.Packages, core.Logger); err != nil {
		core.Close()
		return nil, err
	}
	if a.Artifacts, err = initArtifacts(cfg.Artifact, core.Logger); err != nil {
		a.Close()
		return nil, err
	}

	runnerOpts := []jobs.Option{jobs.WithLogger(core.Logger), jobs.WithMaxConcurrent(cfg.JobsMaxConcurrent)}
	if core.Switches != nil {
		runnerOpts = append(runnerOpts, jobs.WithSwitches(core.Switches))
	}
	a.Runner = jobs.NewRunner(a.Packages, a.Artifacts, core.Generator, runnerOpts...)
	a.server = server.New(cfg.Port, a.Handler(), core.Logger)
	return a, nil
}

func (a *App) Handler() http.Handler {
	return server.NewHandler(server.Deps{
		Generator: a.Generator,
		Linter:    a.Linter,
		Packages:  a.Packages,
		Artifacts: a.Artifacts,
		Jobs:      a.Runner,
		UploadDir: a.Config.UploadDir,
		Provider:  a.LLM.Name(),
		APIKey:    a.Config.APIKey,
		Logger:    a.Logger,
	})
}

func (a *App) Start() error { return a.server.Start() }

// Shutdown stops the HTTP server, then cancels and waits for running jobs.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	return errors.Join(err, a.Close())
}

func (a *App) Close() error {
	if a.Runner != nil {
		a.Runner.Close()
	}
	var errs []error
	if a.Packages != nil {
		errs = append(errs, a.Packages.Close())
	}
	errs = append(errs, a.Core.Close())
	return errors.Join(errs...)
}
