package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/memebot/internal/config"
	"github.com/alanyoungcy/memebot/internal/domain"
	"github.com/alanyoungcy/memebot/internal/risk"
	"github.com/alanyoungcy/memebot/internal/scanner"
)

const weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

type stubMarket struct {
	listings []domain.Candidate
	err      error
}

func (s *stubMarket) Listings(context.Context) ([]domain.Candidate, error) { return s.listings, s.err }

func (s *stubMarket) TokenListings(_ context.Context, token string) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for _, c := range s.listings {
		if c.Token == domain.NormalizeAddress(token) {
			out = append(out, c)
		}
	}
	return out, s.err
}

type stubSecurity struct{ report domain.SecurityReport }

func (s stubSecurity) TokenSecurity(context.Context, string) (domain.SecurityReport, error) {
	return s.report, nil
}

type stubChain struct {
	block uint64
	err   error
}

func (s stubChain) BlockNumber(context.Context) (uint64, error) { return s.block, s.err }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func listing(token string, volume1h float64) domain.Candidate {
	return domain.Candidate{
		Token:        token,
		BaseToken:    weth,
		Symbol:       strings.ToUpper(token[2:5]),
		PriceNative:  decimal.RequireFromString("0.000002"),
		LiquidityUSD: 150_000,
		Volume24hUSD: 300_000,
		Volume1hUSD:  volume1h,
		BuyPressure:  0.7,
		ListedAt:     time.Now().Add(-3 * time.Hour),
	}
}

func testDeps(market *stubMarket, report domain.SecurityReport) *Dependencies {
	cfg := config.Defaults()
	cfg.Scanner.MinMomentum = 0
	return &Dependencies{
		Scanner: scanner.New(market, scannerConfig(&cfg), discard()),
		Risk: risk.New(stubSecurity{report: report}, risk.Config{
			MaxTaxBps:           1000,
			MaxTopHolderPercent: 18,
			MinLockRatioPercent: 60,
			MinHolderCount:      500,
			RejectProxy:         true,
			Timeout:             time.Second,
		}, discard()),
	}
}

func cleanReport() domain.SecurityReport {
	return domain.SecurityReport{
		OwnershipRenounced:     true,
		BuyTaxBps:              100,
		SellTaxBps:             100,
		TopHolderPercent:       9,
		LockedLiquidityPercent: 95,
		HolderCount:            3_000,
	}
}

func newTestApp(t *testing.T, out io.Writer) *App {
	t.Helper()
	cfg := config.Defaults()
	return New(&cfg, discard(), WithOutput(out))
}

func TestScanMode_PrintsRankedCandidates(t *testing.T) {
	market := &stubMarket{listings: []domain.Candidate{
		listing("0xaaa0000000000000000000000000000000000001", 10_000),
		listing("0xbbb0000000000000000000000000000000000002", 40_000),
		func() domain.Candidate {
			c := listing("0xccc0000000000000000000000000000000000003", 90_000)
			c.LiquidityUSD = 1_000
			return c
		}(),
	}}
	var out bytes.Buffer
	a := newTestApp(t, &out)

	require.NoError(t, a.ScanMode(t.Context(), testDeps(market, cleanReport())))

	var got []string
	dec := json.NewDecoder(&out)
	for dec.More() {
		var c domain.Candidate
		require.NoError(t, dec.Decode(&c))
		got = append(got, c.Token)
	}
	assert.Equal(t, []string{
		"0xbbb0000000000000000000000000000000000002",
		"0xaaa0000000000000000000000000000000000001",
	}, got)
}

func TestScanMode_FeedError(t *testing.T) {
	a := newTestApp(t, io.Discard)
	err := a.ScanMode(t.Context(), testDeps(&stubMarket{err: domain.ErrFeedUnavailable}, cleanReport()))
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestEvaluateMode_Admissible(t *testing.T) {
	token := "0xaaa0000000000000000000000000000000000001"
	var out bytes.Buffer
	a := newTestApp(t, &out)

	require.NoError(t, a.EvaluateMode(t.Context(), testDeps(&stubMarket{listings: []domain.Candidate{listing(token, 20_000)}}, cleanReport()), token))

	var ev Evaluation
	require.NoError(t, json.Unmarshal(out.Bytes(), &ev))
	assert.True(t, ev.Admissible)
	assert.Empty(t, ev.IntakeFailures)
	assert.True(t, ev.Verdict.Accepted)
	assert.Equal(t, token, ev.Candidate.Token)
}

func TestEvaluateMode_ReportsFailures(t *testing.T) {
	token := "0xaaa0000000000000000000000000000000000001"
	c := listing(token, 20_000)
	c.ListedAt = time.Time{}
	report := cleanReport()
	report.Honeypot = true

	var out bytes.Buffer
	a := newTestApp(t, &out)
	require.NoError(t, a.EvaluateMode(t.Context(), testDeps(&stubMarket{listings: []domain.Candidate{c}}, report), token))

	var ev Evaluation
	require.NoError(t, json.Unmarshal(out.Bytes(), &ev))
	assert.False(t, ev.Admissible)
	require.Len(t, ev.IntakeFailures, 1)
	assert.Contains(t, ev.IntakeFailures[0], "age")
	assert.False(t, ev.Verdict.Accepted)
}

func TestEvaluateMode_UnknownToken(t *testing.T) {
	a := newTestApp(t, io.Discard)
	err := a.EvaluateMode(t.Context(), testDeps(&stubMarket{}, cleanReport()), "0xdead")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChainHealth(t *testing.T) {
	h := chainHealth(t.Context(), stubChain{block: 19_000_000}, time.Second)
	assert.Equal(t, domain.Health{SyncedBlock: 19_000_000, OK: true}, h)

	h = chainHealth(t.Context(), stubChain{err: errors.New("dial tcp: connection refused")}, time.Second)
	assert.False(t, h.OK)
	assert.Zero(t, h.SyncedBlock)
}

func TestRun_RequiresTokenArgument(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "evaluate"
	a := New(&cfg, discard(), WithOutput(io.Discard))
	err := a.Run(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a token address")
}

func TestWire_ScanModeBuildsFeedsOnly(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "scan"
	deps, cleanup, err := Wire(t.Context(), &cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Scanner)
	assert.NotNil(t, deps.Risk)
	assert.NotNil(t, deps.Notifier)
	assert.Nil(t, deps.Executor)
	assert.Nil(t, deps.Portfolio)
	assert.Nil(t, deps.Loop)
}

func TestModeRequirements(t *testing.T) {
	for _, m := range []string{"run", "once", "close"} {
		assert.True(t, needsChain(m), m)
		assert.True(t, needsMarketFeed(m), m)
		assert.True(t, needsPortfolio(m), m)
	}
	assert.True(t, needsChain("health"))
	assert.False(t, needsMarketFeed("health"))
	assert.False(t, needsChain("scan"))
	assert.False(t, needsPortfolio("evaluate"))
}

func TestExecutorConfig_GweiToWei(t *testing.T) {
	cfg := config.Defaults()
	cfg.Exchange.MaxGasPriceGwei = 1.5
	ec := executorConfig(&cfg)
	assert.Equal(t, 0, ec.MaxGasPrice.Cmp(big.NewInt(1_500_000_000)))

	cfg.Exchange.MaxGasPriceGwei = 0
	assert.Nil(t, executorConfig(&cfg).MaxGasPrice)
}

func TestLoopConfig(t *testing.T) {
	cfg := config.Defaults()
	lc := loopConfig(&cfg)
	assert.True(t, lc.PositionSize.Equal(decimal.RequireFromString("0.3")))
	assert.Equal(t, 300, lc.SlippageBps)
	assert.Equal(t, 30*time.Second, lc.Interval)
	assert.Equal(t, 5*time.Second, lc.SideEffectTimeout)
}
