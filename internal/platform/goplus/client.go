// Package goplus is the security feed client backed by the GoPlus token
// security API.
package goplus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// Client queries token security reports for one chain.
type Client struct {
	baseURL    string
	chainID    int64
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a GoPlus client for chainID.
func NewClient(baseURL string, chainID int64, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chainID:    chainID,
		httpClient: &http.Client{Timeout: timeout},
		// The public tier allows roughly 30 calls per minute.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

// TokenSecurity fetches the security report for token. Any transport, status
// or schema problem is reported as domain.ErrRiskDataUnavailable.
func (c *Client) TokenSecurity(ctx context.Context, token string) (domain.SecurityReport, error) {
	addr := domain.NormalizeAddress(token)

	params := url.Values{}
	params.Set("contract_addresses", addr)
	path := "/api/v1/token_security/" + strconv.FormatInt(c.chainID, 10) + "?" + params.Encode()

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.SecurityReport{}, fmt.Errorf("goplus: token %s: %w: %w", addr, domain.ErrRiskDataUnavailable, err)
	}

	var resp securityResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.SecurityReport{}, fmt.Errorf("goplus: decode: %w: %w", domain.ErrRiskDataUnavailable, err)
	}
	if resp.Code != 1 {
		return domain.SecurityReport{}, fmt.Errorf("goplus: api code %d (%s): %w", resp.Code, resp.Message, domain.ErrRiskDataUnavailable)
	}

	for key, sec := range resp.Result {
		if domain.NormalizeAddress(key) != addr {
			continue
		}
		if !sec.Complete() {
			return domain.SecurityReport{}, fmt.Errorf("goplus: token %s: incomplete report: %w", addr, domain.ErrRiskDataUnavailable)
		}
		return sec.ToDomainReport(addr), nil
	}
	return domain.SecurityReport{}, fmt.Errorf("goplus: token %s missing from result: %w", addr, domain.ErrRiskDataUnavailable)
}

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

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return body, nil
}
