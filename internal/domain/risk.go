package domain

import "time"

// RiskCode tags the heuristic behind a rejection.
type RiskCode string

const (
	RiskHoneypot            RiskCode = "honeypot"
	RiskOwnershipRetained   RiskCode = "ownership_not_renounced"
	RiskExcessiveTax        RiskCode = "excessive_tax"
	RiskHolderConcentration RiskCode = "holder_concentration"
	RiskLowLiquidityLock    RiskCode = "low_liquidity_lock"
	RiskTradingDisabled     RiskCode = "trading_disabled"
	RiskProxyContract       RiskCode = "proxy_contract"
	RiskFewHolders          RiskCode = "holder_count_low"
	RiskDataUnavailable     RiskCode = "risk_data_unavailable"
)

// RiskReason is one failed rule with a human-readable detail.
type RiskReason struct {
	Code   RiskCode `json:"code"`
	Detail string   `json:"detail"`
}

// RiskVerdict is the outcome of evaluating one candidate.
type RiskVerdict struct {
	Token       string       `json:"token"`
	Accepted    bool         `json:"accepted"`
	Reasons     []RiskReason `json:"reasons"`
	EvaluatedAt time.Time    `json:"evaluated_at"`
}

// Has reports whether the verdict carries a reason with the given code.
func (v RiskVerdict) Has(code RiskCode) bool {
	for _, r := range v.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

// SecurityReport is the provider-neutral view of a token's security data.
type SecurityReport struct {
	Token string

	Honeypot        bool
	TradingDisabled bool
	Proxy           bool

	// OwnershipRenounced is false when a privileged owner remains or when the
	// owner can reclaim ownership.
	OwnershipRenounced bool
	Mintable           bool

	BuyTaxBps  int
	SellTaxBps int

	TopHolderPercent       float64 // combined share of the largest holders, 0-100
	LockedLiquidityPercent float64 // share of LP tokens locked, 0-100
	HolderCount            int
}
