package executor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/memebot/internal/platform/evm"
)

// Chain is the RPC surface the engine needs. *evm.Client implements it.
type Chain interface {
	Address() common.Address
	BlockNumber(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context) (uint64, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)

	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	// Writes return the transaction hash even when the broadcast errors, since
	// the node may still have accepted it.
	SendApprove(ctx context.Context, p evm.TxParams, token common.Address) (common.Hash, error)
	SendSwapExactETHForTokens(ctx context.Context, p evm.TxParams, value, amountOutMin *big.Int, path []common.Address, deadline int64) (common.Hash, error)
	SendSwapExactTokensForETH(ctx context.Context, p evm.TxParams, amountIn, amountOutMin *big.Int, path []common.Address, deadline int64) (common.Hash, error)

	// Receipt returns nil without error while the transaction is pending.
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Router() common.Address
}

var _ Chain = (*evm.Client)(nil)
