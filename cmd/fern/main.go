// Command fern serves the record API over a schema registry.
//
//	fern serve    run migrations and serve HTTP
//	fern migrate  run migrations and exit
//	fern seed     insert the seed directory, masters first (-dir overrides SEED_DIR)
//	fern graph    export the association graph and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ramsey-B/fern/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
)

func main() {
	command := "serve"
	args := []string{}
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	fs.StringVar(&cfg.SeedDir, "dir", cfg.SeedDir, "seed directory holding <entity>.yaml files")
	fs.StringVar(&cfg.SchemaFile, "schema", cfg.SchemaFile, "entity schema file")
	_ = fs.Parse(args)

	zapLogger, err := newZap(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync() //nolint:errcheck
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, cfg, logger); err != nil {
		logger.WithError(err).WithField("command", command).Error("Command failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, cfg *config.Config, logger ectologger.Logger) error {
	switch command {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return withApp(ctx, cfg, logger, func(ctx context.Context, a *app) error { return nil })
	case "seed":
		return withApp(ctx, cfg, logger, runSeed)
	case "graph":
		cfg.GraphExportEnabled = true
		return withApp(ctx, cfg, logger, func(ctx context.Context, a *app) error { return nil })
	default:
		return fmt.Errorf("unknown command %q, expected serve, migrate, seed or graph", command)
	}
}

func newZap(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.InitialFields = map[string]any{"app": cfg.AppName, "version": cfg.Version}
	return zc.Build()
}
