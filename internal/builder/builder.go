// internal/builder/builder.go
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"docpages/internal/config"
	"docpages/internal/gitroot"
	"docpages/internal/logger"
	"docpages/internal/markdown"
	"docpages/internal/metrics"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const markdownExt = ".md"

// Stats summarizes one build.
type Stats struct {
	BuildID     string
	Pages       int
	Copied      int
	Directories int
	Duration    time.Duration
}

// Builder mirrors a documentation source tree into an output tree of HTML
// fragments, JSON metadata and verbatim copies. A Builder may run several
// builds, one after another or concurrently.
type Builder struct {
	cfg      config.Config
	repoRoot string
	log      *log.Logger
	recorder metrics.Recorder
	renderer *markdown.Renderer
}

// Option configures a Builder.
type Option func(*Builder)

func WithLogger(l *log.Logger) Option {
	return func(b *Builder) { b.log = l }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) { b.recorder = r }
}

// WithRenderer replaces the renderer derived from the config. The caller is
// responsible for attaching markdown.RewriteLinks if links should be rewritten.
func WithRenderer(r *markdown.Renderer) Option {
	return func(b *Builder) { b.renderer = r }
}

// New validates cfg and prepares a Builder.
func New(cfg config.Config, opts ...Option) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	b := &Builder{
		cfg:      cfg,
		log:      logger.Discard(),
		recorder: metrics.NoopRecorder{},
		renderer: markdown.New(
			markdown.WithPostProcess(markdown.RewriteLinks),
			markdown.WithSanitize(cfg.Sanitize),
			markdown.WithEditML(cfg.EditML),
		),
	}
	for _, opt := range opts {
		opt(b)
	}

	switch cfg.RepoRoot {
	case "":
	case config.RepoRootAuto:
		root, err := gitroot.Find(cfg.SourceDir)
		if err != nil {
			return nil, fmt.Errorf("could not discover repository root: %w", err)
		}
		b.repoRoot = root
	default:
		root, err := filepath.Abs(cfg.RepoRoot)
		if err != nil {
			return nil, err
		}
		b.repoRoot = root
	}
	return b, nil
}

// run carries the per-build state shared by the walker and emitter.
type run struct {
	*Builder
	log    *log.Logger
	sem    *semaphore.Weighted
	pages  atomic.Int64
	copied atomic.Int64
	dirs   atomic.Int64
}

// Build walks the configured source directory and writes the output tree.
// The first error anywhere in the tree fails the build; files already written
// are left in place.
func (b *Builder) Build(ctx context.Context) (Stats, error) {
	start := time.Now()
	stats := Stats{BuildID: uuid.NewString()}
	r := &run{
		Builder: b,
		log:     b.log.With("build", stats.BuildID[:8]),
		sem:     semaphore.NewWeighted(int64(b.cfg.Concurrency)),
	}

	r.log.Info("Start building doc pages", "source", b.cfg.SourceDir, "output", b.cfg.OutputDir)
	err := b.checkSource()
	if err == nil {
		err = r.walk(ctx, b.cfg.SourceDir, b.cfg.OutputDir)
	}

	stats.Pages = int(r.pages.Load())
	stats.Copied = int(r.copied.Load())
	stats.Directories = int(r.dirs.Load())
	stats.Duration = time.Since(start)
	b.recorder.ObserveBuildDuration(stats.Duration)

	if err != nil {
		b.recorder.IncBuildOutcome(metrics.OutcomeFailed)
		r.log.Error("Doc pages build failed", "err", err)
		return stats, err
	}
	b.recorder.IncBuildOutcome(metrics.OutcomeSuccess)
	r.log.Info("Doc pages built",
		"pages", stats.Pages,
		"copied", stats.Copied,
		"directories", stats.Directories,
		"duration", stats.Duration.Round(time.Millisecond))
	return stats, nil
}

func (b *Builder) checkSource() error {
	info, err := os.Stat(b.cfg.SourceDir)
	if err != nil {
		return fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", b.cfg.SourceDir)
	}
	return nil
}
