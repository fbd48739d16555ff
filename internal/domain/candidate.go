package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceChange holds percentage price moves over the feed's trailing windows.
type PriceChange struct {
	M5  float64 `json:"m5"`
	M15 float64 `json:"m15"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

// Candidate is a discovered tradeable token at a point in time. It lives for
// one cycle and is never persisted.
type Candidate struct {
	Token     string `json:"token"`
	BaseToken string `json:"base_token"`
	Pair      string `json:"pair"`
	DexID     string `json:"dex_id"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`

	PriceUSD    decimal.Decimal `json:"price_usd"`
	PriceNative decimal.Decimal `json:"price_native"` // native units per whole token

	LiquidityUSD float64     `json:"liquidity_usd"`
	Volume24hUSD float64     `json:"volume_24h_usd"`
	Volume1hUSD  float64     `json:"volume_1h_usd"`
	FDVUSD       float64     `json:"fdv_usd"`
	PriceChange  PriceChange `json:"price_change"`
	BuyPressure  float64     `json:"buy_pressure"`
	HolderCount  int         `json:"holder_count"`

	ListedAt   time.Time `json:"listed_at"`
	ObservedAt time.Time `json:"observed_at"`

	Momentum float64 `json:"momentum"`
}

// Age returns the time since listing. An unknown listing time yields zero so
// that minimum-age filters reject the candidate.
func (c Candidate) Age(now time.Time) time.Duration {
	if c.ListedAt.IsZero() || c.ListedAt.After(now) {
		return 0
	}
	return now.Sub(c.ListedAt)
}

// NormalizeAddress lowercases and trims an address so it can be used as a map key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
