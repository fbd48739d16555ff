package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of a swap relative to the traded token.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// NativeDecimals is the decimal precision of the chain's native currency.
const NativeDecimals = 18

// TradeIntent is a request to swap a fixed amount through the router. It is
// built immediately before submission.
type TradeIntent struct {
	ID        string    `json:"id"`
	Side      TradeSide `json:"side"`
	Token     string    `json:"token"`
	BaseToken string    `json:"base_token"`
	Symbol    string    `json:"symbol,omitempty"`

	// AmountIn is whole native units for buys and raw token units for sells.
	AmountIn decimal.Decimal `json:"amount_in"`

	// ReferencePrice is the expected native price per whole token. When set,
	// a fresh quote worse than the slippage bound abandons the intent before
	// submission.
	ReferencePrice decimal.Decimal `json:"reference_price"`

	SlippageBps int       `json:"slippage_bps"`
	Deadline    time.Time `json:"deadline"`

	// Sell intents reference the position they close.
	PositionID string      `json:"position_id,omitempty"`
	Reason     CloseReason `json:"reason,omitempty"`
}

// Validate checks the intent before any chain interaction.
func (i TradeIntent) Validate(now time.Time) error {
	switch {
	case i.Side != SideBuy && i.Side != SideSell:
		return fmt.Errorf("%w: side %q", ErrInvalidIntent, i.Side)
	case i.Token == "":
		return fmt.Errorf("%w: empty token", ErrInvalidIntent)
	case !i.AmountIn.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidIntent)
	case i.SlippageBps < 0 || i.SlippageBps >= 10_000:
		return fmt.Errorf("%w: slippage %d bps", ErrInvalidIntent, i.SlippageBps)
	case i.Deadline.IsZero():
		return fmt.Errorf("%w: missing deadline", ErrInvalidIntent)
	}
	return nil
}

// FailureReason classifies an unsuccessful execution.
type FailureReason string

const (
	FailureNone                FailureReason = ""
	FailureSlippageExceeded    FailureReason = "slippage_exceeded"
	FailureGasCeilingExceeded  FailureReason = "gas_ceiling_exceeded"
	FailureDeadlinePassed      FailureReason = "deadline_passed"
	FailureReverted            FailureReason = "reverted"
	FailureConfirmationTimeout FailureReason = "confirmation_timeout"
	FailureRPCUnavailable      FailureReason = "rpc_unavailable"
	FailureQuoteUnavailable    FailureReason = "quote_unavailable"
	FailureApprovalFailed      FailureReason = "approval_failed"
	FailureInvalidIntent       FailureReason = "invalid_intent"
	FailureSignerUnavailable   FailureReason = "signer_unavailable"
	FailureWalletBusy          FailureReason = "wallet_busy"
)

// ExecutionReceipt is the outcome of submitting a TradeIntent.
type ExecutionReceipt struct {
	IntentID string        `json:"intent_id"`
	Side     TradeSide     `json:"side"`
	Token    string        `json:"token"`
	Success  bool          `json:"success"`
	Failure  FailureReason `json:"failure,omitempty"`
	Detail   string        `json:"detail,omitempty"`

	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`

	// NativeAmount is whole native units spent (buy) or received (sell).
	NativeAmount decimal.Decimal `json:"native_amount"`
	// TokenAmount is raw token units received (buy) or sold (sell).
	TokenAmount   decimal.Decimal `json:"token_amount"`
	TokenDecimals uint8           `json:"token_decimals"`
	// RealizedPrice is derived from on-chain amounts, never from the quote.
	RealizedPrice decimal.Decimal `json:"realized_price"`

	GasUsed     uint64          `json:"gas_used"`
	GasPriceWei decimal.Decimal `json:"gas_price_wei"`
	Attempts    int             `json:"attempts"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}

// Failed builds a failure receipt for the intent.
func Failed(intent TradeIntent, reason FailureReason, detail string) ExecutionReceipt {
	return ExecutionReceipt{
		IntentID: intent.ID,
		Side:     intent.Side,
		Token:    intent.Token,
		Failure:  reason,
		Detail:   detail,
	}
}

// PricePerToken returns native units per whole token for the given amounts.
func PricePerToken(native, rawTokens decimal.Decimal, tokenDecimals uint8) decimal.Decimal {
	whole := rawTokens.Shift(-int32(tokenDecimals))
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return native.Div(whole)
}
