// Package risk decides whether a candidate is safe enough to buy. It is
// fail-closed: a token without security data is rejected.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// Config holds the rejection thresholds.
type Config struct {
	MaxTaxBps           int
	MaxTopHolderPercent float64
	MinLockRatioPercent float64
	MinHolderCount      int
	RejectProxy         bool
	Timeout             time.Duration
}

// Evaluator screens candidates against a security feed.
type Evaluator struct {
	feed   domain.SecurityFeed
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// New creates an Evaluator.
func New(feed domain.SecurityFeed, cfg Config, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		feed:   feed,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// Evaluate queries the security feed once and applies every rule. All
// failing rules are reported, not just the first.
func (e *Evaluator) Evaluate(ctx context.Context, c domain.Candidate) domain.RiskVerdict {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	verdict := domain.RiskVerdict{Token: c.Token, EvaluatedAt: e.now()}

	report, err := e.feed.TokenSecurity(ctx, c.Token)
	if err != nil {
		e.logger.WarnContext(ctx, "security feed failed, rejecting",
			slog.String("token", c.Token),
			slog.String("error", err.Error()),
		)
		verdict.Reasons = []domain.RiskReason{{
			Code:   domain.RiskDataUnavailable,
			Detail: "risk data unavailable",
		}}
		return verdict
	}

	verdict.Reasons = e.Rules(c, report)
	verdict.Accepted = len(verdict.Reasons) == 0

	e.logger.DebugContext(ctx, "candidate evaluated",
		slog.String("token", c.Token),
		slog.Bool("accepted", verdict.Accepted),
		slog.Int("reasons", len(verdict.Reasons)),
	)
	return verdict
}

// Rules applies the heuristics to a report and returns the failing ones in a
// fixed order.
func (e *Evaluator) Rules(c domain.Candidate, r domain.SecurityReport) []domain.RiskReason {
	var reasons []domain.RiskReason
	reject := func(code domain.RiskCode, format string, args ...any) {
		reasons = append(reasons, domain.RiskReason{Code: code, Detail: fmt.Sprintf(format, args...)})
	}

	if r.Honeypot {
		reject(domain.RiskHoneypot, "token cannot be sold")
	}
	if !r.OwnershipRenounced {
		reject(domain.RiskOwnershipRetained, "owner or mint authority retained (mintable=%t)", r.Mintable)
	}
	if tax := r.BuyTaxBps + r.SellTaxBps; tax > e.cfg.MaxTaxBps {
		reject(domain.RiskExcessiveTax, "buy+sell tax %d bps above %d bps", tax, e.cfg.MaxTaxBps)
	}
	if r.TopHolderPercent > e.cfg.MaxTopHolderPercent {
		reject(domain.RiskHolderConcentration, "top holders own %.2f%% above %.2f%%", r.TopHolderPercent, e.cfg.MaxTopHolderPercent)
	}
	if r.LockedLiquidityPercent < e.cfg.MinLockRatioPercent {
		reject(domain.RiskLowLiquidityLock, "locked liquidity %.2f%% below %.2f%%", r.LockedLiquidityPercent, e.cfg.MinLockRatioPercent)
	}

	if r.TradingDisabled {
		reject(domain.RiskTradingDisabled, "trading disabled by contract")
	}
	if e.cfg.RejectProxy && r.Proxy {
		reject(domain.RiskProxyContract, "upgradeable proxy contract")
	}
	if holders := max(r.HolderCount, c.HolderCount); e.cfg.MinHolderCount > 0 && holders < e.cfg.MinHolderCount {
		reject(domain.RiskFewHolders, "%d holders below %d", holders, e.cfg.MinHolderCount)
	}
	return reasons
}
