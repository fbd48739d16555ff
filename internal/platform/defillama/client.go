// Package defillama prices the chain's native token in USD.
package defillama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/memebot/internal/domain"
)

type pricesResponse struct {
	Coins map[string]struct {
		Price      decimal.Decimal `json:"price"`
		Symbol     string          `json:"symbol"`
		Timestamp  int64           `json:"timestamp"`
		Confidence float64         `json:"confidence"`
	} `json:"coins"`
}

// Client reads current prices from the DefiLlama coins API.
type Client struct {
	baseURL    string
	coinKey    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client that prices wrappedNative on chain (a DefiLlama
// chain slug such as "ethereum").
func NewClient(baseURL, chain, wrappedNative string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		coinKey:    chain + ":" + domain.NormalizeAddress(wrappedNative),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 2),
	}
}

// NativeUSD returns the USD price of one whole native token.
func (c *Client) NativeUSD(ctx context.Context) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("defillama: rate limiter: %w", err)
	}

	reqURL := c.baseURL + "/prices/current/" + url.PathEscape(c.coinKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("defillama: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("defillama: http request: %w: %w", domain.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, fmt.Errorf("defillama: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("defillama: HTTP %d: %w", resp.StatusCode, domain.ErrFeedUnavailable)
	}

	var out pricesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, fmt.Errorf("defillama: decode: %w", err)
	}
	coin, ok := out.Coins[c.coinKey]
	if !ok || !coin.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("defillama: %s: %w", c.coinKey, domain.ErrNotFound)
	}
	return coin.Price, nil
}
