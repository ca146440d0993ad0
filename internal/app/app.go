// Package app provides the top-level application lifecycle for voran. It
// wires the resolution engine and its optional backends (PostgreSQL, Redis,
// S3, notifications) and runs the configured mode.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gitadpal/voran/internal/config"
)

// Input names the documents a one-shot mode reads and where it writes its
// result. A path of "-" means stdin; an empty OutPath means stdout.
type Input struct {
	SpecPath     string
	TemplatePath string
	PayloadPath  string
	KeyPath      string
	RawPath      string
	OutPath      string
	Policy       string
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	in      Input
	logger  *slog.Logger
	stdin   io.Reader
	stdout  io.Writer
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, in Input, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		in:     in,
		logger: logger.With(slog.String("component", "app")),
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
}

// Run wires all dependencies, selects the operating mode and runs it. Server
// mode blocks until ctx is cancelled; every other mode returns when its
// document has been processed.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	// Key encryption is an offline operator task and needs no backends.
	if strings.EqualFold(a.cfg.Mode, "encrypt-key") {
		return a.EncryptKeyMode(ctx)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "validate":
		return a.ValidateMode(ctx, deps)
	case "expand":
		return a.ExpandMode(ctx, deps)
	case "resolve":
		return a.ResolveMode(ctx, deps)
	case "dry-run":
		return a.DryRunMode(ctx, deps)
	case "batch":
		return a.BatchMode(ctx, deps)
	case "verify":
		return a.VerifyMode(ctx, deps)
	case "server":
		return a.ServerMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
