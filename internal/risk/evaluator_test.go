package risk

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/memebot/internal/domain"
)

type fakeSecurity struct {
	report domain.SecurityReport
	err    error
	calls  int
	block  bool
}

func (f *fakeSecurity) TokenSecurity(ctx context.Context, _ string) (domain.SecurityReport, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return domain.SecurityReport{}, fmt.Errorf("goplus: %w: %w", domain.ErrRiskDataUnavailable, ctx.Err())
	}
	return f.report, f.err
}

func cleanReport() domain.SecurityReport {
	return domain.SecurityReport{
		OwnershipRenounced:     true,
		BuyTaxBps:              100,
		SellTaxBps:             100,
		TopHolderPercent:       10,
		LockedLiquidityPercent: 90,
		HolderCount:            2_000,
	}
}

func testConfig() Config {
	return Config{
		MaxTaxBps:           1000,
		MaxTopHolderPercent: 18,
		MinLockRatioPercent: 60,
		MinHolderCount:      500,
		RejectProxy:         true,
		Timeout:             time.Second,
	}
}

func newEvaluator(feed domain.SecurityFeed, cfg Config) *Evaluator {
	return New(feed, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEvaluate_AcceptsCleanToken(t *testing.T) {
	feed := &fakeSecurity{report: cleanReport()}
	v := newEvaluator(feed, testConfig()).Evaluate(t.Context(), domain.Candidate{Token: "0xabc"})

	assert.True(t, v.Accepted)
	assert.Empty(t, v.Reasons)
	assert.Equal(t, "0xabc", v.Token)
	assert.Equal(t, 1, feed.calls)
}

func TestEvaluate_ExcessiveTaxRejectsRegardlessOfOtherFields(t *testing.T) {
	r := cleanReport()
	r.BuyTaxBps, r.SellTaxBps = 1000, 1000

	v := newEvaluator(&fakeSecurity{report: r}, testConfig()).Evaluate(t.Context(), domain.Candidate{Token: "0xabc"})
	assert.False(t, v.Accepted)
	assert.True(t, v.Has(domain.RiskExcessiveTax))
	assert.Len(t, v.Reasons, 1)
}

func TestEvaluate_ReportsEveryFailingRule(t *testing.T) {
	r := domain.SecurityReport{
		Honeypot:               true,
		OwnershipRenounced:     false,
		BuyTaxBps:              1500,
		TopHolderPercent:       60,
		LockedLiquidityPercent: 5,
		TradingDisabled:        true,
		Proxy:                  true,
		HolderCount:            10,
	}
	v := newEvaluator(&fakeSecurity{report: r}, testConfig()).Evaluate(t.Context(), domain.Candidate{Token: "0xabc"})

	require.False(t, v.Accepted)
	var codes []domain.RiskCode
	for _, reason := range v.Reasons {
		codes = append(codes, reason.Code)
		assert.NotEmpty(t, reason.Detail)
	}
	assert.Equal(t, []domain.RiskCode{
		domain.RiskHoneypot,
		domain.RiskOwnershipRetained,
		domain.RiskExcessiveTax,
		domain.RiskHolderConcentration,
		domain.RiskLowLiquidityLock,
		domain.RiskTradingDisabled,
		domain.RiskProxyContract,
		domain.RiskFewHolders,
	}, codes)
}

func TestEvaluate_FailClosedOnFeedError(t *testing.T) {
	v := newEvaluator(&fakeSecurity{err: domain.ErrRiskDataUnavailable}, testConfig()).
		Evaluate(t.Context(), domain.Candidate{Token: "0xabc"})

	assert.False(t, v.Accepted)
	require.Len(t, v.Reasons, 1)
	assert.Equal(t, domain.RiskDataUnavailable, v.Reasons[0].Code)
	assert.Equal(t, "risk data unavailable", v.Reasons[0].Detail)
}

func TestEvaluate_TimeoutIsRejection(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 10 * time.Millisecond
	v := newEvaluator(&fakeSecurity{block: true}, cfg).Evaluate(t.Context(), domain.Candidate{Token: "0xabc"})

	assert.False(t, v.Accepted)
	assert.True(t, v.Has(domain.RiskDataUnavailable))
}

func TestRules_ProxyAllowedWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.RejectProxy = false
	r := cleanReport()
	r.Proxy = true

	assert.Empty(t, newEvaluator(nil, cfg).Rules(domain.Candidate{}, r))
}

func TestRules_CandidateHolderCountFallback(t *testing.T) {
	r := cleanReport()
	r.HolderCount = 0
	e := newEvaluator(nil, testConfig())

	assert.Empty(t, e.Rules(domain.Candidate{HolderCount: 800}, r))
	assert.NotEmpty(t, e.Rules(domain.Candidate{}, r))
}
