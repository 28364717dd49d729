// cmd/docpages/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

var version = "dev"

// CLI is the root command line definition.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"docpages.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build BuildCmd `cmd:"" default:"withargs" help:"Build the documentation pages (default command)"`
	Serve ServeCmd `cmd:"" help:"Build, then serve the output with live reload and rebuild on change"`
	Init  InitCmd  `cmd:"" help:"Create a config file and a starter docs tree"`
	New   NewCmd   `cmd:"" help:"Create a new Markdown page from the archetype"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("docpages"),
		kong.Description("docpages - builds Markdown docs into HTML fragments with JSON metadata"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := kctx.Run(&Globals{ctx: ctx, cli: &cli})
	kctx.FatalIfErrorf(err)
}
