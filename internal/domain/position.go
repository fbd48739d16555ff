package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// CloseReason records why a position was exited.
type CloseReason string

const (
	CloseTakeProfit  CloseReason = "take-profit"
	CloseStopLoss    CloseReason = "stop-loss"
	CloseManual      CloseReason = "manual"
	CloseErrorUnwind CloseReason = "error-unwind"
)

var bps = decimal.NewFromInt(10_000)

// Position is the durable unit of committed capital. Prices are native units
// per whole token; EntryNative and ExitNative are whole native units;
// TokenAmount is raw token units.
type Position struct {
	ID            string         `json:"id"`
	Token         string         `json:"token"`
	BaseToken     string         `json:"base_token"`
	Pair          string         `json:"pair,omitempty"`
	Symbol        string         `json:"symbol,omitempty"`
	TokenDecimals uint8          `json:"token_decimals"`
	Status        PositionStatus `json:"status"`

	EntryPrice     decimal.Decimal `json:"entry_price"`
	EntryNative    decimal.Decimal `json:"entry_native"`
	TokenAmount    decimal.Decimal `json:"token_amount"`
	EntryAt        time.Time       `json:"entry_at"`
	EntryTx        string          `json:"entry_tx"`
	EntryNativeUSD decimal.Decimal `json:"entry_native_usd"`

	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`
	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`

	LastPrice   decimal.Decimal `json:"last_price"`
	LastPriceAt time.Time       `json:"last_price_at"`

	ExitPrice   decimal.Decimal `json:"exit_price"`
	ExitNative  decimal.Decimal `json:"exit_native"`
	ExitAt      *time.Time      `json:"exit_at,omitempty"`
	ExitTx      string          `json:"exit_tx,omitempty"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	CloseReason CloseReason     `json:"close_reason,omitempty"`
}

// IsOpen reports whether the position still holds tokens.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// WholeTokens converts the raw token amount to whole token units.
func (p Position) WholeTokens() decimal.Decimal {
	return p.TokenAmount.Shift(-int32(p.TokenDecimals))
}

// MarkPrice is the last observed price, falling back to the entry price.
func (p Position) MarkPrice() decimal.Decimal {
	if p.LastPrice.IsPositive() {
		return p.LastPrice
	}
	return p.EntryPrice
}

// UnrealizedPnL is the native-unit gain of the position at price.
func (p Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return price.Mul(p.WholeTokens()).Sub(p.EntryNative)
}

// PnLBps returns the move from entry to price in basis points.
func (p Position) PnLBps(price decimal.Decimal) decimal.Decimal {
	if !p.EntryPrice.IsPositive() {
		return decimal.Zero
	}
	return price.Div(p.EntryPrice).Sub(decimal.NewFromInt(1)).Mul(bps)
}

// ExitTargets derives the take-profit and stop-loss prices from basis-point
// offsets around the entry price.
func ExitTargets(entry decimal.Decimal, takeProfitBps, stopLossBps int) (takeProfit, stopLoss decimal.Decimal) {
	one := decimal.NewFromInt(1)
	takeProfit = entry.Mul(one.Add(decimal.NewFromInt(int64(takeProfitBps)).Div(bps)))
	stopLoss = entry.Mul(one.Sub(decimal.NewFromInt(int64(stopLossBps)).Div(bps)))
	if stopLoss.IsNegative() {
		stopLoss = decimal.Zero
	}
	return takeProfit, stopLoss
}
