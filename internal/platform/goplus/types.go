package goplus

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/alanyoungcy/memebot/internal/domain"
)

type securityResponse struct {
	Code    int                      `json:"code"`
	Message string                   `json:"message"`
	Result  map[string]TokenSecurity `json:"result"`
}

// TokenSecurity mirrors the GoPlus token_security record. Flags are "0"/"1"
// strings and ratios are fractions encoded as strings. Pointer fields are
// required: nil means the key was absent from the response.
type TokenSecurity struct {
	IsHoneypot           string       `json:"is_honeypot"`
	BuyTax               string       `json:"buy_tax"`
	SellTax              string       `json:"sell_tax"`
	CannotSellAll        string       `json:"cannot_sell_all"`
	OwnerAddress         *string      `json:"owner_address"`
	CanTakeBackOwnership string       `json:"can_take_back_ownership"`
	HiddenOwner          string       `json:"hidden_owner"`
	IsProxy              string       `json:"is_proxy"`
	IsMintable           *string      `json:"is_mintable"`
	TradingDisabled      string       `json:"trading_disabled"`
	HolderCount          string       `json:"holder_count"`
	Holders              *[]APIHolder `json:"holders"`
	LPHolders            *[]APIHolder `json:"lp_holders"`
}

type APIHolder struct {
	Address  string `json:"address"`
	Percent  string `json:"percent"`
	IsLocked int    `json:"is_locked"`
}

const topHolderWindow = 10

var burnAddresses = map[string]bool{
	"": true,
	"0x0000000000000000000000000000000000000000": true,
	"0x000000000000000000000000000000000000dead": true,
}

func flag(s string) bool { return strings.TrimSpace(s) == "1" }

func fraction(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || f < 0 {
		return 0, false
	}
	return f, true
}

// taxBps converts a fractional tax to basis points. An unknown tax is
// reported as 100% so it can never pass a ceiling.
func taxBps(s string) int {
	f, ok := fraction(s)
	if !ok {
		return 10_000
	}
	return int(math.Round(f * 10_000))
}

// Complete reports whether the record carries the fields the risk rules
// cannot do without.
func (t *TokenSecurity) Complete() bool {
	return strings.TrimSpace(t.IsHoneypot) != "" &&
		t.OwnerAddress != nil &&
		t.IsMintable != nil &&
		t.Holders != nil &&
		t.LPHolders != nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// ToDomainReport converts the record into a domain.SecurityReport. An
// incomplete record never reports renounced ownership.
func (t *TokenSecurity) ToDomainReport(token string) domain.SecurityReport {
	owner := domain.NormalizeAddress(deref(t.OwnerAddress))
	mintable := flag(deref(t.IsMintable))

	r := domain.SecurityReport{
		Token:           domain.NormalizeAddress(token),
		Honeypot:        flag(t.IsHoneypot) || flag(t.CannotSellAll),
		TradingDisabled: flag(t.TradingDisabled),
		Proxy:           flag(t.IsProxy),
		Mintable:        mintable,
		OwnershipRenounced: t.OwnerAddress != nil && t.IsMintable != nil &&
			burnAddresses[owner] &&
			!flag(t.CanTakeBackOwnership) &&
			!flag(t.HiddenOwner) &&
			!mintable,
		BuyTaxBps:  taxBps(t.BuyTax),
		SellTaxBps: taxBps(t.SellTax),
	}

	if n, err := strconv.Atoi(strings.TrimSpace(t.HolderCount)); err == nil {
		r.HolderCount = n
	}

	top := deref(t.Holders)
	holders := make([]float64, 0, len(top))
	for _, h := range top {
		if f, ok := fraction(h.Percent); ok {
			holders = append(holders, f)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(holders)))
	for i, f := range holders {
		if i == topHolderWindow {
			break
		}
		r.TopHolderPercent += f * 100
	}

	for _, lp := range deref(t.LPHolders) {
		f, ok := fraction(lp.Percent)
		if !ok {
			continue
		}
		if lp.IsLocked == 1 || burnAddresses[domain.NormalizeAddress(lp.Address)] {
			r.LockedLiquidityPercent += f * 100
		}
	}
	return r
}
