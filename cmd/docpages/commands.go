package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"docpages/internal/builder"
	"docpages/internal/config"
	"docpages/internal/logger"
	"docpages/internal/metrics"
	"docpages/internal/scaffold"
	"docpages/internal/server"

	"github.com/charmbracelet/log"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Globals is bound into every command's Run method.
type Globals struct {
	ctx context.Context
	cli *CLI
	// stdout receives progress logs and command output; nil means os.Stdout.
	stdout io.Writer
}

func (g *Globals) out() io.Writer {
	if g.stdout == nil {
		return os.Stdout
	}
	return g.stdout
}

// setup loads the configuration and the logger it asks for.
func (g *Globals) setup() (config.Config, *log.Logger, error) {
	cfg, err := config.Load(g.cli.Config)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if g.cli.Verbose {
		level = "debug"
	}
	return cfg, logger.New(g.out(), level), nil
}

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Source string `short:"s" help:"Override the source directory"`
	Output string `short:"o" help:"Override the output directory"`
}

func (c *BuildCmd) Run(g *Globals) error {
	cfg, l, err := g.setup()
	if err != nil {
		return err
	}
	if c.Source != "" {
		cfg.SourceDir = c.Source
	}
	if c.Output != "" {
		cfg.OutputDir = c.Output
	}

	b, err := builder.New(cfg, builder.WithLogger(l))
	if err != nil {
		return err
	}
	stats, err := b.Build(g.ctx)
	if err != nil {
		return fmt.Errorf("doc build failed: %w", err)
	}
	fmt.Fprintf(g.out(), "✅ Success! Built %d pages and copied %d files into %s.\n", stats.Pages, stats.Copied, cfg.OutputDir)
	return nil
}

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Port int `short:"p" help:"Port for the local preview server" default:"1313"`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, l, err := g.setup()
	if err != nil {
		return err
	}

	reg := prom.NewRegistry()
	b, err := builder.New(cfg,
		builder.WithLogger(l),
		builder.WithRecorder(metrics.NewPrometheusRecorder(reg)),
	)
	if err != nil {
		return err
	}

	return server.Run(g.ctx, server.Options{
		Port:      c.Port,
		SourceDir: cfg.SourceDir,
		OutputDir: cfg.OutputDir,
		Build: func(ctx context.Context) error {
			_, err := b.Build(ctx)
			return err
		},
		Metrics: metrics.HTTPHandler(reg),
		Logger:  l,
	})
}

// InitCmd implements the 'init' command.
type InitCmd struct {
	Dir string `arg:"" optional:"" default:"." help:"Project directory"`
}

func (c *InitCmd) Run(g *Globals) error {
	created, err := scaffold.CreateProject(c.Dir, g.cli.Config)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Fprintln(g.out(), "Nothing to do, project files already exist.")
		return nil
	}
	for _, path := range created {
		fmt.Fprintln(g.out(), "Created:", path)
	}
	return nil
}

// NewCmd implements the 'new' command.
type NewCmd struct {
	Path  string `arg:"" help:"Page path relative to the source directory"`
	Title string `short:"t" help:"Page title written to the front matter"`
}

func (c *NewCmd) Run(g *Globals) error {
	cfg, _, err := g.setup()
	if err != nil {
		return err
	}
	path, err := scaffold.CreatePage(cfg.SourceDir, c.Path, c.Title)
	if err != nil {
		return err
	}
	fmt.Fprintln(g.out(), "Created:", path)
	return nil
}
