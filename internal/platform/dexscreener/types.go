package dexscreener

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// pairsResponse is the envelope returned by every /latest/dex endpoint.
type pairsResponse struct {
	Pairs []APIPair `json:"pairs"`
}

// APIPair is a single DEX pair as reported by DexScreener. Prices arrive as
// strings; decimal.NullDecimal accepts both quoted and bare numbers.
type APIPair struct {
	ChainID     string              `json:"chainId"`
	DexID       string              `json:"dexId"`
	PairAddress string              `json:"pairAddress"`
	BaseToken   APIToken            `json:"baseToken"`
	QuoteToken  APIToken            `json:"quoteToken"`
	PriceUSD    decimal.NullDecimal `json:"priceUsd"`
	PriceNative decimal.NullDecimal `json:"priceNative"`
	PriceChange APIPriceChange      `json:"priceChange"`
	Liquidity   APILiquidity        `json:"liquidity"`
	Volume      APIVolume           `json:"volume"`
	Txns        APITxns             `json:"txns"`
	CreatedAtMs int64               `json:"pairCreatedAt"`
	FDV         float64             `json:"fdv"`
	Info        *APIInfo            `json:"info"`
}

type APIToken struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
}

type APIPriceChange struct {
	M5  float64 `json:"m5"`
	M15 float64 `json:"m15"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

type APILiquidity struct {
	USD    float64 `json:"usd"`
	Base   float64 `json:"base"`
	Quote  float64 `json:"quote"`
	Locked float64 `json:"locked"`
}

type APIVolume struct {
	H24 float64 `json:"h24"`
	H6  float64 `json:"h6"`
	H1  float64 `json:"h1"`
}

type APITxnWindow struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

type APITxns struct {
	M5  APITxnWindow `json:"m5"`
	H1  APITxnWindow `json:"h1"`
	H24 APITxnWindow `json:"h24"`
}

type APIInfo struct {
	Holders int `json:"holders"`
}

// BuyPressure returns the share of buys in the last five minutes. Both counts
// are floored at one so an idle pair scores a neutral 0.5.
func (p *APIPair) BuyPressure() float64 {
	buys := float64(max(p.Txns.M5.Buys, 1))
	sells := float64(max(p.Txns.M5.Sells, 1))
	return buys / (buys + sells)
}

// ToDomainCandidate converts the pair into a domain.Candidate. ok is false when
// the pair carries an address that cannot be parsed. Missing numeric fields
// stay zero so they fail the scanner's minimum thresholds.
func (p *APIPair) ToDomainCandidate(observedAt time.Time) (domain.Candidate, bool) {
	if !common.IsHexAddress(p.BaseToken.Address) || !common.IsHexAddress(p.QuoteToken.Address) {
		return domain.Candidate{}, false
	}

	c := domain.Candidate{
		Token:        domain.NormalizeAddress(p.BaseToken.Address),
		BaseToken:    domain.NormalizeAddress(p.QuoteToken.Address),
		Pair:         domain.NormalizeAddress(p.PairAddress),
		DexID:        p.DexID,
		Symbol:       p.BaseToken.Symbol,
		Name:         p.BaseToken.Name,
		LiquidityUSD: p.Liquidity.USD,
		Volume24hUSD: p.Volume.H24,
		Volume1hUSD:  p.Volume.H1,
		FDVUSD:       p.FDV,
		PriceChange: domain.PriceChange{
			M5:  p.PriceChange.M5,
			M15: p.PriceChange.M15,
			H1:  p.PriceChange.H1,
			H6:  p.PriceChange.H6,
			H24: p.PriceChange.H24,
		},
		BuyPressure: p.BuyPressure(),
		ObservedAt:  observedAt,
	}
	if p.PriceUSD.Valid {
		c.PriceUSD = p.PriceUSD.Decimal
	}
	if p.PriceNative.Valid {
		c.PriceNative = p.PriceNative.Decimal
	}
	if p.CreatedAtMs > 0 {
		c.ListedAt = time.UnixMilli(p.CreatedAtMs).UTC()
	}
	if p.Info != nil {
		c.HolderCount = p.Info.Holders
	}
	return c, true
}
