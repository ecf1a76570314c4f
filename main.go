package main

import (
	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context is shared by every CLI command.
type Context struct {
	Debug bool
	Log   *zap.Logger
}

var cli struct {
	Debug bool `help:"Enable debug logging."`

	Serve ServeCmd `cmd:"" default:"withargs" help:"Serve the application portal."`
}

func main() {
	ctx := kong.Parse(&cli)

	cfg := zap.NewProductionConfig()
	if cli.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	log, err := cfg.Build()
	ctx.FatalIfErrorf(err)
	defer func() { _ = log.Sync() }()

	err = ctx.Run(&Context{Debug: cli.Debug, Log: log})
	ctx.FatalIfErrorf(err)
}
