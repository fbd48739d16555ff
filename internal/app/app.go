// Package app wires the configured components together and runs one CLI
// command: run, once, scan, evaluate, health or close.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alanyoungcy/memebot/internal/config"
)

// ErrUnhealthy is returned by the health command when the RPC does not
// answer with a block number.
var ErrUnhealthy = errors.New("app: chain unhealthy")

// App owns the configuration, logger and cleanup functions.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	out     io.Writer
	closers []func()
}

// Option configures an App.
type Option func(*App)

// WithOutput redirects command results, which default to stdout.
func WithOutput(w io.Writer) Option { return func(a *App) { a.out = w } }

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		out:    os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run wires the dependencies for cfg.Mode and runs it. evaluate and close
// take the token address as args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", mode),
		slog.String("chain", a.cfg.Chain.Name),
		slog.String("log_level", a.cfg.LogLevel),
	)

	var token string
	switch mode {
	case "evaluate", "close":
		if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
			return fmt.Errorf("app: %s requires a token address", mode)
		}
		token = strings.TrimSpace(args[0])
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch mode {
	case "run":
		return a.RunMode(ctx, deps, true)
	case "once":
		return a.RunMode(ctx, deps, false)
	case "scan":
		return a.ScanMode(ctx, deps)
	case "evaluate":
		return a.EvaluateMode(ctx, deps, token)
	case "health":
		return a.HealthMode(ctx, deps)
	case "close":
		return a.CloseMode(ctx, deps, token)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases resources in reverse order. Safe to call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
