// Package scanner turns the raw market feed into a filtered list of
// candidates ranked by momentum.
package scanner

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// Weights tunes the two momentum components.
type Weights struct {
	Price  float64
	Volume float64
}

// Config holds the intake thresholds. Every emitted candidate satisfies all
// of them.
type Config struct {
	MinLiquidityUSD   float64
	MinDailyVolumeUSD float64
	MinAge            time.Duration
	MaxCandidates     int
	Weights           Weights
	MinMomentum       float64
	MinBuyPressure    float64
	// WrappedNative, when set, drops pairs quoted in anything else since the
	// router path is always native -> token.
	WrappedNative string
	Blacklist     []string
}

// Scorer computes a candidate's momentum score.
type Scorer func(domain.Candidate) float64

// Option configures a Scanner.
type Option func(*Scanner)

// WithScorer replaces the default momentum function.
func WithScorer(fn Scorer) Option {
	return func(s *Scanner) { s.score = fn }
}

// WithClock overrides the time source used for the age filter.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// Scanner filters and ranks feed listings.
type Scanner struct {
	feed      domain.MarketFeed
	cfg       Config
	blacklist map[string]struct{}
	score     Scorer
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Scanner reading from feed.
func New(feed domain.MarketFeed, cfg Config, logger *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		feed:      feed,
		cfg:       cfg,
		blacklist: make(map[string]struct{}, len(cfg.Blacklist)),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "scanner")),
	}
	for _, tok := range cfg.Blacklist {
		s.blacklist[domain.NormalizeAddress(tok)] = struct{}{}
	}
	s.score = func(c domain.Candidate) float64 { return Momentum(c, cfg.Weights) }
	for _, o := range opts {
		o(s)
	}
	return s
}

// Momentum blends recent price change with volume acceleration. The price
// component weights 5m/15m/1h changes (percent) 0.4/0.35/0.25; acceleration is
// the last hour's volume annualised to a day over the trailing 24h volume.
// The result is monotonic in both components.
func Momentum(c domain.Candidate, w Weights) float64 {
	price := 0.4*c.PriceChange.M5 + 0.35*c.PriceChange.M15 + 0.25*c.PriceChange.H1
	var accel float64
	if c.Volume24hUSD > 0 {
		accel = c.Volume1hUSD * 24 / c.Volume24hUSD
	}
	return w.Price*price + w.Volume*accel
}

// Discover fetches the feed once and returns the passing candidates in
// descending momentum order, truncated to MaxCandidates. Fetching, filtering
// and ranking happen before Discover returns; the sequence only yields. A feed
// failure is returned as-is and never retried here.
func (s *Scanner) Discover(ctx context.Context) (iter.Seq[domain.Candidate], error) {
	listings, err := s.feed.Listings(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner: discover: %w", err)
	}

	now := s.now()
	ranked := make([]domain.Candidate, 0, len(listings))
	for _, c := range s.bestPairs(listings) {
		c.Momentum = s.score(c)
		if reasons := s.Check(c, now); len(reasons) > 0 {
			s.logger.DebugContext(ctx, "candidate filtered",
				slog.String("token", c.Token),
				slog.String("symbol", c.Symbol),
				slog.Any("reasons", reasons),
			)
			continue
		}
		ranked = append(ranked, c)
	}

	slices.SortStableFunc(ranked, func(a, b domain.Candidate) int {
		if a.Momentum != b.Momentum {
			return cmp.Compare(b.Momentum, a.Momentum)
		}
		return cmp.Compare(b.LiquidityUSD, a.LiquidityUSD)
	})
	if s.cfg.MaxCandidates > 0 && len(ranked) > s.cfg.MaxCandidates {
		ranked = ranked[:s.cfg.MaxCandidates]
	}

	s.logger.InfoContext(ctx, "discovery complete",
		slog.Int("listings", len(listings)),
		slog.Int("candidates", len(ranked)),
	)
	return slices.Values(ranked), nil
}

// Lookup returns the deepest pair for token with its momentum scored but no
// threshold applied. Callers use Check to see which thresholds it misses.
func (s *Scanner) Lookup(ctx context.Context, token string) (domain.Candidate, error) {
	listings, err := s.feed.TokenListings(ctx, token)
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("scanner: lookup: %w", err)
	}
	want := domain.NormalizeAddress(token)
	for _, c := range s.bestPairs(listings) {
		if c.Token == want {
			c.Momentum = s.score(c)
			return c, nil
		}
	}
	return domain.Candidate{}, fmt.Errorf("scanner: lookup %s: %w", want, domain.ErrNotFound)
}

// Check returns the thresholds c fails at now. An empty result means the
// candidate is admissible to screening.
func (s *Scanner) Check(c domain.Candidate, now time.Time) []string {
	var reasons []string
	if _, banned := s.blacklist[c.Token]; banned {
		reasons = append(reasons, "blacklisted")
	}
	if s.cfg.WrappedNative != "" && c.BaseToken != domain.NormalizeAddress(s.cfg.WrappedNative) {
		reasons = append(reasons, "not quoted in wrapped native")
	}
	if !c.PriceNative.IsPositive() {
		reasons = append(reasons, "no native price")
	}
	if c.LiquidityUSD < s.cfg.MinLiquidityUSD {
		reasons = append(reasons, fmt.Sprintf("liquidity %.0f below %.0f", c.LiquidityUSD, s.cfg.MinLiquidityUSD))
	}
	if c.Volume24hUSD < s.cfg.MinDailyVolumeUSD {
		reasons = append(reasons, fmt.Sprintf("24h volume %.0f below %.0f", c.Volume24hUSD, s.cfg.MinDailyVolumeUSD))
	}
	if age := c.Age(now); age < s.cfg.MinAge || c.ListedAt.IsZero() {
		reasons = append(reasons, fmt.Sprintf("age %s below %s", age.Truncate(time.Second), s.cfg.MinAge))
	}
	if c.Momentum < s.cfg.MinMomentum {
		reasons = append(reasons, fmt.Sprintf("momentum %.2f below %.2f", c.Momentum, s.cfg.MinMomentum))
	}
	if c.BuyPressure < s.cfg.MinBuyPressure {
		reasons = append(reasons, fmt.Sprintf("buy pressure %.2f below %.2f", c.BuyPressure, s.cfg.MinBuyPressure))
	}
	return reasons
}

// bestPairs keeps the deepest-liquidity pair per token, preserving feed order.
func (s *Scanner) bestPairs(listings []domain.Candidate) []domain.Candidate {
	idx := make(map[string]int, len(listings))
	out := make([]domain.Candidate, 0, len(listings))
	for _, c := range listings {
		if i, ok := idx[c.Token]; ok {
			if c.LiquidityUSD > out[i].LiquidityUSD {
				out[i] = c
			}
			continue
		}
		idx[c.Token] = len(out)
		out = append(out, c)
	}
	return out
}
