// Package evm adapts a JSON-RPC endpoint to the operations the execution
// engine needs: UniswapV2 router quotes and swaps, ERC20 reads and approvals,
// gas and nonce lookups, and receipt polling.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/memebot/internal/crypto"
	"github.com/alanyoungcy/memebot/internal/domain"
)

// TxParams carries the sequencing and pricing fields the caller controls for
// a submitted transaction.
type TxParams struct {
	Nonce    uint64
	GasPrice *big.Int
}

// Client is a router-bound RPC client. The signer may be nil, in which case
// every write returns domain.ErrSignerUnavailable.
type Client struct {
	eth          *ethclient.Client
	router       common.Address
	signer       *crypto.TxSigner
	gasBufferPct int64
}

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string, router common.Address, signer *crypto.TxSigner, gasBufferPct int) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial: %w", err)
	}
	return &Client{
		eth:          eth,
		router:       router,
		signer:       signer,
		gasBufferPct: int64(gasBufferPct),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Address returns the signing wallet, or the zero address when read-only.
func (c *Client) Address() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// Router returns the router contract the client quotes and swaps against.
func (c *Client) Router() common.Address {
	return c.router
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("evm: block number: %w", err)
	}
	return n, nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	p, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: gas price: %w", err)
	}
	return p, nil
}

func (c *Client) PendingNonce(ctx context.Context) (uint64, error) {
	n, err := c.eth.PendingNonceAt(ctx, c.Address())
	if err != nil {
		return 0, fmt.Errorf("evm: pending nonce: %w", err)
	}
	return n, nil
}

func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	b, err := c.eth.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("evm: native balance: %w", err)
	}
	return b, nil
}

// AmountsOut quotes amountIn along path through the router.
func (c *Client) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	var amounts []*big.Int
	if err := c.call(ctx, routerABI, c.router, &amounts, "getAmountsOut", amountIn, path); err != nil {
		return nil, err
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("evm: getAmountsOut returned %d amounts for %d hops", len(amounts), len(path))
	}
	return amounts, nil
}

func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	var d uint8
	if err := c.call(ctx, erc20ABI, token, &d, "decimals"); err != nil {
		return 0, err
	}
	return d, nil
}

func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var b *big.Int
	if err := c.call(ctx, erc20ABI, token, &b, "balanceOf", owner); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var a *big.Int
	if err := c.call(ctx, erc20ABI, token, &a, "allowance", owner, spender); err != nil {
		return nil, err
	}
	return a, nil
}

// SendApprove grants the router an unlimited allowance over token.
func (c *Client) SendApprove(ctx context.Context, p TxParams, token common.Address) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", c.router, math.MaxBig256)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evm: pack approve: %w", err)
	}
	return c.send(ctx, p, token, nil, data)
}

// SendSwapExactETHForTokens spends value native along path.
func (c *Client) SendSwapExactETHForTokens(ctx context.Context, p TxParams, value, amountOutMin *big.Int, path []common.Address, deadline int64) (common.Hash, error) {
	data, err := routerABI.Pack("swapExactETHForTokensSupportingFeeOnTransferTokens",
		amountOutMin, path, c.Address(), big.NewInt(deadline))
	if err != nil {
		return common.Hash{}, fmt.Errorf("evm: pack buy: %w", err)
	}
	return c.send(ctx, p, c.router, value, data)
}

// SendSwapExactTokensForETH sells amountIn tokens along path.
func (c *Client) SendSwapExactTokensForETH(ctx context.Context, p TxParams, amountIn, amountOutMin *big.Int, path []common.Address, deadline int64) (common.Hash, error) {
	data, err := routerABI.Pack("swapExactTokensForETHSupportingFeeOnTransferTokens",
		amountIn, amountOutMin, path, c.Address(), big.NewInt(deadline))
	if err != nil {
		return common.Hash{}, fmt.Errorf("evm: pack sell: %w", err)
	}
	return c.send(ctx, p, c.router, nil, data)
}

// Receipt returns the receipt for hash, or nil while the transaction is
// still pending.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := c.eth.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("evm: receipt %s: %w", hash.Hex(), err)
	}
	return r, nil
}

func (c *Client) call(ctx context.Context, contract abi.ABI, to common.Address, out any, method string, args ...any) error {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("evm: pack %s: %w", method, err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("evm: call %s: %w", method, err)
	}
	if err := contract.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("evm: unpack %s: %w", method, err)
	}
	return nil
}

// send estimates gas with a safety buffer, signs a legacy transaction and
// broadcasts it. A failing estimate means the call would revert. A non-zero
// hash with an error means the outcome of the broadcast is unknown.
func (c *Client) send(ctx context.Context, p TxParams, to common.Address, value *big.Int, data []byte) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, domain.ErrSignerUnavailable
	}
	if value == nil {
		value = new(big.Int)
	}

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:     c.signer.Address(),
		To:       &to,
		GasPrice: p.GasPrice,
		Value:    value,
		Data:     data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("evm: estimate gas: %w", err)
	}
	gas = gas * uint64(100+c.gasBufferPct) / 100

	tx := types.NewTransaction(p.Nonce, to, value, gas, p.GasPrice, data)
	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evm: %w: %w", domain.ErrSignerUnavailable, err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		// The hash is returned with the error: the node may have accepted the
		// transaction before the call failed.
		return signed.Hash(), fmt.Errorf("evm: send transaction: %w", err)
	}
	return signed.Hash(), nil
}
