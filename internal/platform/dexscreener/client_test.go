package dexscreener

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/memebot/internal/domain"
)

const (
	tokenA = "0x1111111111111111111111111111111111111111"
	tokenB = "0x2222222222222222222222222222222222222222"
	weth   = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

func pairJSON(pair, token string, chain string) string {
	return `{
		"chainId": "` + chain + `",
		"dexId": "uniswap",
		"pairAddress": "` + pair + `",
		"baseToken": {"address": "` + token + `", "symbol": "PEPE", "name": "Pepe"},
		"quoteToken": {"address": "` + weth + `", "symbol": "WETH", "name": "Wrapped Ether"},
		"priceUsd": "0.0021",
		"priceNative": "0.0000007",
		"priceChange": {"m5": 4.5, "h1": 12},
		"liquidity": {"usd": 250000},
		"volume": {"h24": 900000, "h1": 60000},
		"txns": {"m5": {"buys": 30, "sells": 10}},
		"pairCreatedAt": 1700000000000,
		"unknownField": {"ignored": true}
	}`
}

func TestListings_MergesAndDedupes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/latest/dex/trending/ethereum":
			_, _ = w.Write([]byte(`{"pairs": [` + pairJSON(tokenA, tokenA, "ethereum") + `]}`))
		case "/latest/dex/pairs/ethereum":
			_, _ = w.Write([]byte(`{"pairs": [` +
				pairJSON(tokenA, tokenA, "ethereum") + `,` +
				pairJSON(tokenB, tokenB, "ethereum") + `,` +
				pairJSON("0x3333333333333333333333333333333333333333", "not-an-address", "ethereum") + `,` +
				pairJSON("0x4444444444444444444444444444444444444444", tokenB, "base") + `]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ethereum", 100, time.Second)
	got, err := c.Listings(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, tokenA, first.Token)
	assert.Equal(t, domain.NormalizeAddress(weth), first.BaseToken)
	assert.Equal(t, "PEPE", first.Symbol)
	assert.Equal(t, "0.0000007", first.PriceNative.String())
	assert.InDelta(t, 0.75, first.BuyPressure, 1e-9)
	assert.Equal(t, int64(1700000000000), first.ListedAt.UnixMilli())
	assert.Zero(t, first.PriceChange.M15)
}

func TestListings_LatestFailureIsLogged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/latest/dex/trending/ethereum" {
			_, _ = w.Write([]byte(`{"pairs": [` + pairJSON(tokenA, tokenA, "ethereum") + `]}`))
			return
		}
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	got, err := NewClient(srv.URL, "ethereum", 100, time.Second, WithLogger(logger)).Listings(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tokenA, got[0].Token)
	assert.Contains(t, buf.String(), "latest pairs unavailable")
	assert.Contains(t, buf.String(), `"component":"dexscreener"`)
}

func TestListings_TrendingFailureIsFeedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "ethereum", 100, time.Second).Listings(t.Context())
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestListings_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs": [`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "ethereum", 100, time.Second).Listings(t.Context())
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestTokenListings_FiltersChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest/dex/tokens/"+tokenA, r.URL.Path)
		_, _ = w.Write([]byte(`{"pairs": [` +
			pairJSON(tokenA, tokenA, "ethereum") + `,` +
			pairJSON(tokenB, tokenA, "base") + `]}`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, "ethereum", 100, time.Second).TokenListings(t.Context(), tokenA)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tokenA, got[0].Pair)
}

func TestBuyPressure_FloorsAtOne(t *testing.T) {
	p := APIPair{}
	assert.InDelta(t, 0.5, p.BuyPressure(), 1e-9)
	p.Txns.M5 = APITxnWindow{Buys: 9, Sells: 0}
	assert.InDelta(t, 0.9, p.BuyPressure(), 1e-9)
}

func TestToDomainCandidate_MissingFieldsFailClosed(t *testing.T) {
	p := APIPair{
		BaseToken:  APIToken{Address: tokenA},
		QuoteToken: APIToken{Address: weth},
	}
	c, ok := p.ToDomainCandidate(time.Now())
	require.True(t, ok)
	assert.True(t, c.ListedAt.IsZero())
	assert.Zero(t, c.LiquidityUSD)
	assert.True(t, c.PriceNative.IsZero())
}
