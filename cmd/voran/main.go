// Command voran is the entry point for the deterministic resolution engine.
// It loads configuration, validates it, wires dependencies, sets up signal
// handling, and runs the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gitadpal/voran/internal/app"
	"github.com/gitadpal/voran/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to TOML configuration file (optional)")
	mode := flag.String("mode", "", "override mode: validate, expand, resolve, dry-run, batch, verify, server, encrypt-key")
	specPath := flag.String("spec", "", "spec document path, or - for stdin")
	templatePath := flag.String("template", "", "template document path, or - for stdin")
	payloadPath := flag.String("payload", "", "signed payload or verify request path, or - for stdin")
	keyPath := flag.String("key", "", "encrypt-key mode: hex private key path, or - for stdin")
	rawPath := flag.String("raw", "", "use this raw response instead of fetching the source")
	policy := flag.String("policy", "", "batch dry-run policy: first or all")
	outPath := flag.String("out", "", "write the result here instead of stdout")
	flag.Parse()

	// Logs go to stderr so one-shot modes can pipe their JSON result.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("voran starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, app.Input{
		SpecPath:     *specPath,
		TemplatePath: *templatePath,
		PayloadPath:  *payloadPath,
		KeyPath:      *keyPath,
		RawPath:      *rawPath,
		OutPath:      *outPath,
		Policy:       *policy,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx)
	stop()
	application.Close()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Info("application shut down gracefully")
	case errors.Is(err, app.ErrCheckFailed):
		logger.Warn("check failed", slog.String("error", err.Error()))
		os.Exit(2)
	default:
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
