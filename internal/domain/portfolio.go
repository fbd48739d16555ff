package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioDocument is the on-disk shape of the portfolio. It is always
// written as a whole.
type PortfolioDocument struct {
	Open      []Position `json:"open"`
	Closed    []Position `json:"closed"`
	Capacity  int        `json:"capacity"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PositionView is an open position with its valuation at the last seen price.
type PositionView struct {
	Position
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLBps decimal.Decimal `json:"unrealized_pnl_bps"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	CurrentValueUSD  decimal.Decimal `json:"current_value_usd"`
}

// PortfolioView is the read-only snapshot served to operators.
type PortfolioView struct {
	Open          []PositionView  `json:"open"`
	Closed        []Position      `json:"closed"`
	Capacity      int             `json:"capacity"`
	UpdatedAt     time.Time       `json:"updated_at"`
	TotalOpen     int             `json:"total_open"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl_native"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl_native"`
	NativeUSD     decimal.Decimal `json:"native_usd"`
}

// Health is the liveness summary of the chain connection.
type Health struct {
	SyncedBlock uint64 `json:"synced_block"`
	OK          bool   `json:"ok"`
}
