// Package dexscreener is the market-data feed client. It lists trending and
// recently active pairs for one chain and resolves the pairs of a single
// token.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// Client is the REST client for the DexScreener public API.
type Client struct {
	baseURL    string
	chain      string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for degraded fetches.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l.With(slog.String("component", "dexscreener")) }
}

// NewClient creates a client for chain (a DexScreener chain id such as
// "ethereum"). rps bounds the outbound request rate.
func NewClient(baseURL, chain string, rps float64, timeout time.Duration, opts ...Option) *Client {
	if rps <= 0 {
		rps = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		chain:   chain,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), max(1, int(rps))),
		now:     time.Now,
		logger:  slog.Default().With(slog.String("component", "dexscreener")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Listings returns the union of the trending and latest pair lists for the
// configured chain, deduplicated by pair address. The trending list is
// mandatory; a failing latest list only narrows the result.
func (c *Client) Listings(ctx context.Context) ([]domain.Candidate, error) {
	trending, err := c.fetchPairs(ctx, "/latest/dex/trending/"+url.PathEscape(c.chain))
	if err != nil {
		return nil, fmt.Errorf("dexscreener: trending: %w: %w", domain.ErrFeedUnavailable, err)
	}
	latest, err := c.fetchPairs(ctx, "/latest/dex/pairs/"+url.PathEscape(c.chain))
	if err != nil {
		c.logger.WarnContext(ctx, "latest pairs unavailable, discovery limited to trending",
			slog.String("chain", c.chain),
			slog.String("error", err.Error()),
		)
		latest = nil
	}

	now := c.now()
	seen := make(map[string]struct{}, len(trending)+len(latest))
	out := make([]domain.Candidate, 0, len(trending)+len(latest))
	for _, batch := range [][]APIPair{trending, latest} {
		for i := range batch {
			p := &batch[i]
			if !strings.EqualFold(p.ChainID, c.chain) {
				continue
			}
			cand, ok := p.ToDomainCandidate(now)
			if !ok {
				continue
			}
			if _, dup := seen[cand.Pair]; dup {
				continue
			}
			seen[cand.Pair] = struct{}{}
			out = append(out, cand)
		}
	}
	return out, nil
}

// TokenListings returns every pair of token on the configured chain.
func (c *Client) TokenListings(ctx context.Context, token string) ([]domain.Candidate, error) {
	pairs, err := c.fetchPairs(ctx, "/latest/dex/tokens/"+url.PathEscape(domain.NormalizeAddress(token)))
	if err != nil {
		return nil, fmt.Errorf("dexscreener: token %s: %w: %w", token, domain.ErrFeedUnavailable, err)
	}

	now := c.now()
	out := make([]domain.Candidate, 0, len(pairs))
	for i := range pairs {
		if !strings.EqualFold(pairs[i].ChainID, c.chain) {
			continue
		}
		if cand, ok := pairs[i].ToDomainCandidate(now); ok {
			out = append(out, cand)
		}
	}
	return out, nil
}

func (c *Client) fetchPairs(ctx context.Context, path string) ([]APIPair, error) {
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, err
	}
	var resp pairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}
	return resp.Pairs, nil
}

// doGet sends a rate-limited GET request.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	snippet := string(body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, snippet)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, snippet)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, snippet)
	}
}
