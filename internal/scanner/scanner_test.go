package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/memebot/internal/domain"
)

var (
	now  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

type fakeFeed struct {
	listings []domain.Candidate
	err      error
	calls    int
}

func (f *fakeFeed) Listings(context.Context) ([]domain.Candidate, error) {
	f.calls++
	return f.listings, f.err
}

func (f *fakeFeed) TokenListings(_ context.Context, token string) ([]domain.Candidate, error) {
	var out []domain.Candidate
	for _, c := range f.listings {
		if c.Token == domain.NormalizeAddress(token) {
			out = append(out, c)
		}
	}
	return out, f.err
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig() Config {
	return Config{
		MinLiquidityUSD:   100_000,
		MinDailyVolumeUSD: 200_000,
		MinAge:            30 * time.Minute,
		MaxCandidates:     12,
		Weights:           Weights{Price: 1, Volume: 2},
		MinMomentum:       0,
		MinBuyPressure:    0.5,
		WrappedNative:     weth,
	}
}

func candidate(token string) domain.Candidate {
	return domain.Candidate{
		Token:        token,
		BaseToken:    weth,
		PriceNative:  decimal.RequireFromString("0.000001"),
		LiquidityUSD: 150_000,
		Volume24hUSD: 300_000,
		Volume1hUSD:  20_000,
		BuyPressure:  0.6,
		ListedAt:     now.Add(-2 * time.Hour),
	}
}

func tokens(seq func(func(domain.Candidate) bool)) []string {
	var out []string
	for c := range seq {
		out = append(out, c.Token)
	}
	return out
}

func TestDiscover_OrdersByMomentumDescending(t *testing.T) {
	low, high := candidate("0xlow"), candidate("0xhigh")
	scores := map[string]float64{"0xlow": 0.3, "0xhigh": 0.8}
	feed := &fakeFeed{listings: []domain.Candidate{low, high}}

	s := New(feed, testConfig(), discardLogger(),
		WithClock(func() time.Time { return now }),
		WithScorer(func(c domain.Candidate) float64 { return scores[c.Token] }),
	)
	seq, err := s.Discover(t.Context())
	require.NoError(t, err)

	var got []domain.Candidate
	for c := range seq {
		got = append(got, c)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "0xhigh", got[0].Token)
	assert.Equal(t, 0.8, got[0].Momentum)
	assert.Equal(t, "0xlow", got[1].Token)
}

func TestDiscover_LowLiquidityExcludedRegardlessOfMomentum(t *testing.T) {
	thin := candidate("0xthin")
	thin.LiquidityUSD = 5_000
	feed := &fakeFeed{listings: []domain.Candidate{thin, candidate("0xok")}}

	s := New(feed, testConfig(), discardLogger(),
		WithClock(func() time.Time { return now }),
		WithScorer(func(c domain.Candidate) float64 {
			if c.Token == "0xthin" {
				return 1e9
			}
			return 0.1
		}),
	)
	seq, err := s.Discover(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xok"}, tokens(seq))
}

func TestDiscover_Filters(t *testing.T) {
	young := candidate("0xyoung")
	young.ListedAt = now.Add(-5 * time.Minute)
	unknownAge := candidate("0xunknown")
	unknownAge.ListedAt = time.Time{}
	quiet := candidate("0xquiet")
	quiet.Volume24hUSD = 10
	sold := candidate("0xsold")
	sold.BuyPressure = 0.2
	usdc := candidate("0xusdc")
	usdc.BaseToken = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	banned := candidate("0x000000000000000000000000000000000000dead")

	cfg := testConfig()
	cfg.Blacklist = []string{"0x000000000000000000000000000000000000dEaD"}
	feed := &fakeFeed{listings: []domain.Candidate{young, unknownAge, quiet, sold, usdc, banned, candidate("0xgood")}}

	s := New(feed, cfg, discardLogger(), WithClock(func() time.Time { return now }))
	seq, err := s.Discover(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"0xgood"}, tokens(seq))
}

func TestDiscover_TruncatesAndDedupes(t *testing.T) {
	var listings []domain.Candidate
	for i := range 20 {
		c := candidate("0x" + string(rune('a'+i)))
		c.PriceChange.H1 = float64(i)
		listings = append(listings, c)
	}
	shallow := candidate("0xa")
	shallow.LiquidityUSD = 100_001
	listings = append(listings, shallow)

	cfg := testConfig()
	cfg.MaxCandidates = 5
	s := New(&fakeFeed{listings: listings}, cfg, discardLogger(), WithClock(func() time.Time { return now }))
	seq, err := s.Discover(t.Context())
	require.NoError(t, err)

	got := slices.Collect(seq)
	require.Len(t, got, 5)
	assert.Equal(t, "0xt", got[0].Token)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Momentum, got[i].Momentum)
	}
}

func TestDiscover_FeedErrorNotRetried(t *testing.T) {
	feed := &fakeFeed{err: domain.ErrFeedUnavailable}
	s := New(feed, testConfig(), discardLogger())

	_, err := s.Discover(t.Context())
	assert.True(t, errors.Is(err, domain.ErrFeedUnavailable))
	assert.Equal(t, 1, feed.calls)
}

func TestMomentum_DeterministicAndMonotonic(t *testing.T) {
	w := Weights{Price: 1, Volume: 2}
	c := candidate("0x1")
	c.PriceChange = domain.PriceChange{M5: 10, M15: 10, H1: 10}

	base := Momentum(c, w)
	assert.Equal(t, base, Momentum(c, w))
	assert.InDelta(t, 10+2*(20_000*24/300_000.0), base, 1e-9)

	up := c
	up.PriceChange.M5 = 20
	assert.Greater(t, Momentum(up, w), base)

	accel := c
	accel.Volume1hUSD = 40_000
	assert.Greater(t, Momentum(accel, w), base)

	none := c
	none.Volume24hUSD = 0
	assert.InDelta(t, 10, Momentum(none, w), 1e-9)
}

func TestLookup(t *testing.T) {
	s := New(&fakeFeed{listings: []domain.Candidate{candidate("0xabc")}}, testConfig(), discardLogger())

	c, err := s.Lookup(t.Context(), "0xABC")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", c.Token)

	_, err = s.Lookup(t.Context(), "0xdef")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
