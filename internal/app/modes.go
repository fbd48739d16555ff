package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/memebot/internal/domain"
	"github.com/alanyoungcy/memebot/internal/server"
	"github.com/alanyoungcy/memebot/internal/server/handler"
	"github.com/alanyoungcy/memebot/internal/server/ws"
)

const (
	shutdownTimeout = 10 * time.Second
	// replayExecutions is how many journal entries a new websocket client
	// receives on connect.
	replayExecutions = 20
)

// RunMode loads the portfolio and runs the control loop, once or until ctx
// is cancelled. In continuous mode the monitoring server runs alongside.
func (a *App) RunMode(ctx context.Context, deps *Dependencies, continuous bool) error {
	if err := deps.Portfolio.Load(ctx); err != nil {
		return fmt.Errorf("app: load portfolio: %w", err)
	}
	a.logger.InfoContext(ctx, "portfolio loaded",
		slog.Int("open", len(deps.Portfolio.Open())),
		slog.String("wallet", deps.Executor.Wallet().Hex()),
	)
	if continuous {
		a.notifyAll(ctx, deps, "memebot started", fmt.Sprintf("chain %s, wallet %s, %d open positions",
			a.cfg.Chain.Name, deps.Executor.Wallet().Hex(), len(deps.Portfolio.Open())))
	}

	g, gctx := errgroup.WithContext(ctx)
	monCtx, stopMonitor := context.WithCancel(gctx)
	defer stopMonitor()

	var srv *server.Server
	if continuous && a.cfg.Monitor.Enabled {
		var hub *ws.Hub
		srv, hub = a.buildServer(deps)
		g.Go(srv.Start)
		if hub != nil {
			g.Go(func() error {
				if err := hub.Run(monCtx); !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}
	}

	g.Go(func() error {
		defer func() {
			stopMonitor()
			if srv != nil {
				sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					a.logger.Warn("server shutdown failed", slog.String("error", err.Error()))
				}
			}
		}()
		return deps.Loop.Run(gctx, continuous)
	})

	err := g.Wait()
	if continuous && err == nil {
		a.notifyAll(context.WithoutCancel(ctx), deps, "memebot stopped", "clean shutdown")
	}
	if !continuous {
		report := deps.Loop.LastCycle()
		a.logger.InfoContext(ctx, "cycle finished",
			slog.String("cycle", report.ID),
			slog.Int("admitted", report.Admitted),
			slog.Int("exits", report.Exits),
			slog.Bool("persisted", report.Persisted),
		)
	}
	return err
}

func (a *App) buildServer(deps *Dependencies) (*server.Server, *ws.Hub) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:          a.cfg.Mode,
			StartedAt:     time.Now().UTC(),
			OpenPositions: func() int { return len(deps.Portfolio.Open()) },
			Replay:        replayExecutions,
		})
	}
	srv := server.New(server.Config{
		Addr:               a.cfg.Monitor.Addr,
		APIKey:             a.cfg.Monitor.APIKey,
		CORSOrigins:        a.cfg.Monitor.CORSOrigins,
		RateLimitPerMinute: a.cfg.Monitor.RateLimitPerMinute,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(deps.Loop, a.logger),
		Portfolio: handler.NewPortfolioHandler(deps.Portfolio),
	}, hub, deps.RateLimiter, a.logger)
	return srv, hub
}

// ScanMode prints the current candidates, one JSON object per line, in
// descending momentum order. Nothing is traded.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	seq, err := deps.Scanner.Discover(ctx)
	if err != nil {
		return fmt.Errorf("app: scan: %w", err)
	}
	enc := json.NewEncoder(a.out)
	n := 0
	for c := range seq {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("app: scan: write: %w", err)
		}
		n++
	}
	a.logger.InfoContext(ctx, "scan complete", slog.Int("candidates", n))
	return nil
}

// Evaluation is the evaluate command's output.
type Evaluation struct {
	Candidate      domain.Candidate   `json:"candidate"`
	IntakeFailures []string           `json:"intake_failures"`
	Verdict        domain.RiskVerdict `json:"verdict"`
	Admissible     bool               `json:"admissible"`
}

// EvaluateMode looks up one token, reports which intake thresholds it misses
// and runs the risk rules on it. Nothing is traded.
func (a *App) EvaluateMode(ctx context.Context, deps *Dependencies, token string) error {
	c, err := deps.Scanner.Lookup(ctx, token)
	if err != nil {
		return fmt.Errorf("app: evaluate: %w", err)
	}
	ev := Evaluation{
		Candidate:      c,
		IntakeFailures: deps.Scanner.Check(c, time.Now()),
		Verdict:        deps.Risk.Evaluate(ctx, c),
	}
	if ev.IntakeFailures == nil {
		ev.IntakeFailures = []string{}
	}
	ev.Admissible = len(ev.IntakeFailures) == 0 && ev.Verdict.Accepted
	return a.print(ev)
}

// HealthMode prints {synced_block, ok} and returns ErrUnhealthy when not ok.
func (a *App) HealthMode(ctx context.Context, deps *Dependencies) error {
	h := chainHealth(ctx, deps.Executor, a.cfg.Execution.RPCTimeout.Duration)
	if err := a.print(h); err != nil {
		return err
	}
	if !h.OK {
		return ErrUnhealthy
	}
	return nil
}

// CloseMode sells the open position in token and records it closed as
// manual.
func (a *App) CloseMode(ctx context.Context, deps *Dependencies, token string) error {
	if err := deps.Portfolio.Load(ctx); err != nil {
		return fmt.Errorf("app: load portfolio: %w", err)
	}
	pos, err := deps.Loop.ClosePosition(ctx, token)
	if err != nil {
		return fmt.Errorf("app: close %s: %w", token, err)
	}
	return a.print(pos)
}

type blockNumberer interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

func chainHealth(ctx context.Context, chain blockNumberer, timeout time.Duration) domain.Health {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	n, err := chain.BlockNumber(ctx)
	if err != nil {
		return domain.Health{}
	}
	return domain.Health{SyncedBlock: n, OK: n > 0}
}

func (a *App) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("app: write output: %w", err)
	}
	return nil
}

func (a *App) notifyAll(ctx context.Context, deps *Dependencies, title, body string) {
	if deps.Notifier == nil || !deps.Notifier.Enabled() {
		return
	}
	if err := deps.Notifier.NotifyAll(ctx, title, body); err != nil {
		a.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
	}
}
