// Package jobs runs script generation for stored packages in the background.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"psadtagent/internal/artifact"
	"psadtagent/internal/generator"
	"psadtagent/internal/installer"
	"psadtagent/internal/knowledge"
	"psadtagent/internal/pkgstore"
)

const DefaultMaxConcurrent = 2

const (
	msgExtracting = "Extracting metadata from installer file..."
	msgGenerating = "Generating PSADT script..."
	msgCompleted  = "Completed"
)

var (
	ErrClosed   = errors.New("jobs: runner closed")
	errNoScript = errors.New("script generation failed to produce a result")
)

// SwitchFinder looks up known silent switches; *knowledge.SwitchCatalog
// implements it.
type SwitchFinder interface {
	FindSwitches(product, exe string, topK int) []knowledge.SwitchRecord
}

// Generator is the part of generator.Generator the runner needs.
type Generator interface {
	Generate(ctx context.Context, meta installer.Metadata, userNotes string) (*generator.Result, error)
}

type Runner struct {
	store     pkgstore.Store
	artifacts artifact.Store
	gen       Generator
	logger    *zap.Logger
	extract   func(path string) (installer.Metadata, error)
	switches  SwitchFinder
	sem       *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	changed map[string]chan struct{}
}

type Option func(*Runner)

func WithLogger(l *zap.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithMaxConcurrent bounds how many generations run at once. n <= 0 keeps
// the default.
func WithMaxConcurrent(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithExtractor replaces installer.Extract.
func WithExtractor(fn func(path string) (installer.Metadata, error)) Option {
	return func(r *Runner) { r.extract = fn }
}

// WithSwitches overrides extracted silent switches with catalog entries.
func WithSwitches(f SwitchFinder) Option { return func(r *Runner) { r.switches = f } }

// NewRunner builds a runner. artifacts may be nil, in which case only the
// package record receives the script.
func NewRunner(store pkgstore.Store, artifacts artifact.Store, gen Generator, opts ...Option) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		store:     store,
		artifacts: artifacts,
		gen:       gen,
		extract:   installer.Extract,
		sem:       semaphore.NewWeighted(DefaultMaxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
		changed:   map[string]chan struct{}{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Submit schedules generation for packageID and returns immediately.
func (r *Runner) Submit(packageID string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			r.logger.Warn("queued generation cancelled", zap.String("package_id", packageID), zap.Error(err))
			if ferr := r.fail(r.ctx, packageID, err); ferr != nil {
				r.logger.Error("could not record failed status", zap.String("package_id", packageID), zap.Error(ferr))
			}
			return
		}
		defer r.sem.Release(1)
		if err := r.Run(r.ctx, packageID); err != nil {
			r.logger.Error("background generation failed", zap.String("package_id", packageID), zap.Error(err))
		}
	}()
	return nil
}

// Run generates the script for one package synchronously. The returned
// error is also recorded on the package as a failed status.
func (r *Runner) Run(ctx context.Context, packageID string) error {
	log := r.logger.With(zap.String("package_id", packageID))
	pkg, err := r.store.Get(ctx, packageID)
	if err != nil {
		return fmt.Errorf("jobs: load package: %w", err)
	}
	log.Info("starting background generation")

	if err := r.progress(ctx, packageID, pkgstore.StatusInProgress, 0, ""); err != nil {
		return err
	}

	runErr := r.generate(ctx, log, pkg)
	if runErr != nil {
		log.Error("error during script generation", zap.Error(runErr))
		if err := r.fail(ctx, packageID, runErr); err != nil {
			return errors.Join(runErr, err)
		}
		return runErr
	}
	log.Info("generated script")
	return nil
}

// fail marks the package failed at its current progress. It runs even
// when ctx is already cancelled.
func (r *Runner) fail(ctx context.Context, packageID string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	current, err := r.store.Get(ctx, packageID)
	if err != nil {
		return err
	}
	return r.progress(ctx, packageID, pkgstore.StatusFailed, current.Progress, "Failed: "+cause.Error())
}

func (r *Runner) generate(ctx context.Context, log *zap.Logger, pkg pkgstore.Package) error {
	if err := r.progress(ctx, pkg.ID, pkgstore.StatusInProgress, 10, msgExtracting); err != nil {
		return err
	}
	meta, err := r.metadataFor(log, pkg)
	if err != nil {
		return err
	}

	if err := r.progress(ctx, pkg.ID, pkgstore.StatusInProgress, 30, msgGenerating); err != nil {
		return err
	}
	res, err := r.gen.Generate(ctx, meta, pkg.UserNotes)
	if err != nil {
		return err
	}
	if res == nil || res.Script == nil {
		return errNoScript
	}

	if r.artifacts != nil {
		if err := r.artifacts.Put(ctx, pkg.ID, artifact.ScriptName, []byte(res.ScriptContent)); err != nil {
			return fmt.Errorf("store artifact: %w", err)
		}
	}

	current, err := r.store.Get(ctx, pkg.ID)
	if err != nil {
		return err
	}
	current.ScriptText = res.ScriptContent
	current.Status = pkgstore.StatusCompleted
	current.Progress = 100
	current.StatusMessage = msgCompleted
	if _, err := r.store.Update(ctx, current); err != nil {
		return err
	}
	r.Notify(pkg.ID)
	return nil
}

// metadataFor extracts metadata from the uploaded installer, or derives it
// from the package record when no installer was uploaded.
func (r *Runner) metadataFor(log *zap.Logger, pkg pkgstore.Package) (installer.Metadata, error) {
	if strings.TrimSpace(pkg.InstallerPath) == "" {
		log.Warn("no installer path, using fallback metadata")
		return r.applySwitches(log, FallbackMetadata(pkg), ""), nil
	}
	meta, err := r.extract(pkg.InstallerPath)
	if err != nil {
		return installer.Metadata{}, err
	}
	log.Info("extracted metadata", zap.String("name", meta.Name), zap.String("version", meta.Version))
	return r.applySwitches(log, meta, filepath.Base(pkg.InstallerPath)), nil
}

func (r *Runner) applySwitches(log *zap.Logger, meta installer.Metadata, exe string) installer.Metadata {
	if r.switches == nil {
		return meta
	}
	recs := r.switches.FindSwitches(meta.Name, exe, 1)
	if len(recs) == 0 {
		return meta
	}
	rec := recs[0]
	if rec.InstallSwitches != "" {
		meta.SilentArgs = rec.InstallSwitches
	}
	if rec.UninstallSwitches != "" {
		meta.UninstallArgs = rec.UninstallSwitches
	}
	if rec.Notes != "" && meta.Notes == "" {
		meta.Notes = rec.Notes
	}
	log.Info("applied catalog switches", zap.String("record", rec.ID))
	return meta
}

func FallbackMetadata(pkg pkgstore.Package) installer.Metadata {
	version := pkg.Version
	if strings.TrimSpace(version) == "" {
		version = "1.0.0"
	}
	return installer.Metadata{
		Name:          pkg.Name,
		Version:       version,
		Vendor:        "Unknown",
		InstallerType: "exe",
		SilentArgs:    "/S",
		Architecture:  installer.DefaultArchitecture,
		Language:      installer.DefaultLanguage,
	}
}

func (r *Runner) progress(ctx context.Context, id string, st pkgstore.Status, pct int, msg string) error {
	if _, err := r.store.SetProgress(ctx, id, pkgstore.Progress{Status: st, Percent: pct, Message: msg}); err != nil {
		return err
	}
	r.logger.Debug("progress", zap.String("package_id", id), zap.Int("progress", pct), zap.String("message", msg))
	r.Notify(id)
	return nil
}

// Close stops accepting work, cancels running and queued generations and
// waits for them to finish recording their outcome.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() { r.wg.Wait() }
