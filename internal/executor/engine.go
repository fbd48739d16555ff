// Package executor turns trade intents into confirmed on-chain swaps. All
// submissions from one wallet are serialized so nonces never race, and every
// failure comes back as a typed receipt rather than an error.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/memebot/internal/domain"
	"github.com/alanyoungcy/memebot/internal/platform/evm"
)

var (
	transferTopic   = ethcrypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	withdrawalTopic = ethcrypto.Keccak256Hash([]byte("Withdrawal(address,uint256)"))

	errConfirmTimeout = errors.New("confirmation timeout")
)

// Config bounds what the engine is willing to do on-chain.
type Config struct {
	WrappedNative common.Address
	// MaxGasPrice caps the gas price in wei. Nil disables the cap.
	MaxGasPrice    *big.Int
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	RPCTimeout     time.Duration
	Retry          RetryPolicy
	WalletLockTTL  time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLockManager guards the wallet with a lock shared across processes.
func WithLockManager(l domain.LockManager) Option {
	return func(e *Engine) { e.locks = l }
}

// WithClock replaces the time source and sleeper used by retries and
// confirmation polling.
func WithClock(now func() time.Time, sleep SleepFunc) Option {
	return func(e *Engine) {
		e.now = now
		e.sleep = sleep
	}
}

// Engine executes trade intents for a single wallet.
type Engine struct {
	chain Chain
	cfg   Config

	// mu serializes submissions; it is held for the whole of Execute.
	mu       sync.Mutex
	nonces   *nonceTracker
	approved map[common.Address]bool

	metaMu   sync.RWMutex
	decimals map[common.Address]uint8

	dedup  *Dedup
	locks  domain.LockManager
	now    func() time.Time
	sleep  SleepFunc
	logger *slog.Logger
}

// New creates an Engine over chain.
func New(chain Chain, cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 150 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.WalletLockTTL <= 0 {
		cfg.WalletLockTTL = 5 * time.Minute
	}

	e := &Engine{
		chain:    chain,
		cfg:      cfg,
		approved: make(map[common.Address]bool),
		decimals: make(map[common.Address]uint8),
		now:      time.Now,
		sleep:    realSleep,
		logger:   logger.With(slog.String("component", "executor")),
	}
	e.nonces = newNonceTracker(chain.PendingNonce)
	for _, o := range opts {
		o(e)
	}
	e.dedup = NewDedup(time.Hour, e.now)
	return e
}

// Execute runs intent to completion and reports the outcome. It never
// returns before a submitted transaction is confirmed, reverted or timed out.
func (e *Engine) Execute(ctx context.Context, intent domain.TradeIntent) domain.ExecutionReceipt {
	log := e.logger.With(
		slog.String("intent_id", intent.ID),
		slog.String("side", string(intent.Side)),
		slog.String("token", intent.Token),
	)

	now := e.now()
	if err := intent.Validate(now); err != nil {
		return e.fail(ctx, log, intent, domain.FailureInvalidIntent, err.Error())
	}
	if !common.IsHexAddress(intent.Token) {
		return e.fail(ctx, log, intent, domain.FailureInvalidIntent, "token is not an address")
	}
	if !now.Before(intent.Deadline) {
		return e.fail(ctx, log, intent, domain.FailureDeadlinePassed, "deadline passed before submission")
	}
	if intent.ID != "" && e.dedup.IsDuplicate(intent.ID) {
		return e.fail(ctx, log, intent, domain.FailureInvalidIntent, "intent already executed")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "wallet:"+e.chain.Address().Hex(), e.cfg.WalletLockTTL)
		if err != nil {
			return e.fail(ctx, log, intent, domain.FailureWalletBusy, err.Error())
		}
		defer unlock()
	}

	var rc domain.ExecutionReceipt
	if intent.Side == domain.SideBuy {
		rc = e.buy(ctx, log, intent)
	} else {
		rc = e.sell(ctx, log, intent)
	}
	if rc.Success {
		log.InfoContext(ctx, "swap confirmed",
			slog.String("tx", rc.TxHash),
			slog.String("native", rc.NativeAmount.String()),
			slog.String("tokens", rc.TokenAmount.String()),
			slog.String("price", rc.RealizedPrice.String()),
			slog.Uint64("gas_used", rc.GasUsed),
			slog.Int("attempts", rc.Attempts),
		)
	}
	return rc
}

func (e *Engine) buy(ctx context.Context, log *slog.Logger, intent domain.TradeIntent) domain.ExecutionReceipt {
	token := common.HexToAddress(intent.Token)
	wallet := e.chain.Address()
	path := []common.Address{e.cfg.WrappedNative, token}
	value := toBaseUnits(intent.AmountIn, domain.NativeDecimals)

	decimals, err := e.tokenDecimals(ctx, token)
	if err != nil {
		return e.fail(ctx, log, intent, domain.FailureQuoteUnavailable, err.Error())
	}
	quoted, err := e.quote(ctx, value, path)
	if err != nil {
		return e.fail(ctx, log, intent, domain.FailureQuoteUnavailable, err.Error())
	}

	// Expected raw tokens at the reference price.
	if intent.ReferencePrice.IsPositive() {
		expected := intent.AmountIn.Div(intent.ReferencePrice).Shift(int32(decimals))
		if detail, ok := withinSlippage(quoted, expected, intent.SlippageBps); !ok {
			return e.fail(ctx, log, intent, domain.FailureSlippageExceeded, detail)
		}
	}
	minOut := applySlippage(quoted, intent.SlippageBps)

	gasPrice, rc, ok := e.cappedGasPrice(ctx, log, intent)
	if !ok {
		return rc
	}
	before, err := rpcCall(ctx, e, func(ctx context.Context) (*big.Int, error) {
		return e.chain.BalanceOf(ctx, token, wallet)
	})
	if err != nil {
		return e.fail(ctx, log, intent, domain.FailureRPCUnavailable, err.Error())
	}
	if !e.now().Before(intent.Deadline) {
		return e.fail(ctx, log, intent, domain.FailureDeadlinePassed, "deadline passed before submission")
	}

	receipt, attempts, rc, ok := e.transact(ctx, log, intent, func(ctx context.Context, p evm.TxParams) (common.Hash, error) {
		return e.chain.SendSwapExactETHForTokens(ctx, p, value, minOut, path, intent.Deadline.Unix())
	}, gasPrice)
	if !ok {
		return rc
	}

	var received *big.Int
	after, err := rpcCall(ctx, e, func(ctx context.Context) (*big.Int, error) {
		return e.chain.BalanceOf(ctx, token, wallet)
	})
	if err == nil {
		received = new(big.Int).Sub(after, before)
	} else {
		received = sumTransfers(receipt, token, wallet)
	}
	if received.Sign() <= 0 {
		rc := e.fail(ctx, log, intent, domain.FailureReverted, "swap confirmed but no tokens received")
		rc.TxHash = receipt.TxHash.Hex()
		rc.Attempts = attempts
		return rc
	}

	tokens := decimal.NewFromBigInt(received, 0)
	return e.success(intent, receipt, attempts, gasPrice, intent.AmountIn, tokens, decimals)
}

func (e *Engine) sell(ctx context.Context, log *slog.Logger, intent domain.TradeIntent) domain.ExecutionReceipt {
	token := common.HexToAddress(intent.Token)
	wallet := e.chain.Address()
	path := []common.Address{token, e.cfg.WrappedNative}

	decimals, err := e.tokenDecimals(ctx, token)
	if err != nil {
		return e.fail(ctx, log, intent, domain.FailureQuoteUnavailable, err.Error())
	}
	balance, err := rpcCall(ctx, e, func(ctx context.Context) (*big.Int, error) {
		return e.chain.BalanceOf(ctx, token, wallet)
	})
	if err != nil {
		return e.fail(ctx, log, intent, domain.FailureRPCUnavailable, err.Error())
	}

	// Fee-on-transfer and rebasing tokens can leave less than was recorded.
	amountIn := intent.AmountIn.BigInt()
	if balance.Cmp(amountIn) < 0 {
		amountIn = balance
	}
	if amountIn.Sign() <= 0 {
		return e.fail(ctx, log, intent, domain.FailureInvalidIntent, "no token balance to sell")
	}

	quoted, err := e.quote(ctx, amountIn, path)
	if err != nil {
		return e.fail(ctx, log, intent, domain.FailureQuoteUnavailable, err.Error())
	}
	if intent.ReferencePrice.IsPositive() {
		expected := decimal.NewFromBigInt(amountIn, -int32(decimals)).
			Mul(intent.ReferencePrice).
			Shift(domain.NativeDecimals)
		if detail, ok := withinSlippage(quoted, expected, intent.SlippageBps); !ok {
			return e.fail(ctx, log, intent, domain.FailureSlippageExceeded, detail)
		}
	}
	minOut := applySlippage(quoted, intent.SlippageBps)

	gasPrice, rc, ok := e.cappedGasPrice(ctx, log, intent)
	if !ok {
		return rc
	}

	approvals, err := e.ensureAllowance(ctx, log, token, amountIn, gasPrice)
	if err != nil {
		rc := e.fail(ctx, log, intent, domain.FailureApprovalFailed, err.Error())
		rc.Attempts = approvals
		return rc
	}

	before, err := rpcCall(ctx, e, func(ctx context.Context) (*big.Int, error) {
		return e.chain.NativeBalance(ctx, wallet)
	})
	if err != nil {
		return e.fail(ctx, log, intent, domain.FailureRPCUnavailable, err.Error())
	}
	if !e.now().Before(intent.Deadline) {
		return e.fail(ctx, log, intent, domain.FailureDeadlinePassed, "deadline passed before submission")
	}

	receipt, attempts, rc, ok := e.transact(ctx, log, intent, func(ctx context.Context, p evm.TxParams) (common.Hash, error) {
		return e.chain.SendSwapExactTokensForETH(ctx, p, amountIn, minOut, path, intent.Deadline.Unix())
	}, gasPrice)
	if !ok {
		return rc
	}
	attempts += approvals

	effective := gasPrice
	if receipt.EffectiveGasPrice != nil && receipt.EffectiveGasPrice.Sign() > 0 {
		effective = receipt.EffectiveGasPrice
	}
	gasPaid := new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), effective)

	var received *big.Int
	after, err := rpcCall(ctx, e, func(ctx context.Context) (*big.Int, error) {
		return e.chain.NativeBalance(ctx, wallet)
	})
	if err == nil {
		received = new(big.Int).Sub(after, before)
		received.Add(received, gasPaid)
	} else {
		received = sumWithdrawals(receipt, e.cfg.WrappedNative)
	}

	native := decimal.NewFromBigInt(received, -domain.NativeDecimals)
	return e.success(intent, receipt, attempts, gasPrice, native, decimal.NewFromBigInt(amountIn, 0), decimals)
}

// QuotePrice returns the native price per whole token that selling the whole
// position would realize right now.
func (e *Engine) QuotePrice(ctx context.Context, pos domain.Position) (decimal.Decimal, error) {
	token := common.HexToAddress(pos.Token)
	amountIn := pos.TokenAmount.BigInt()
	if amountIn.Sign() <= 0 {
		amountIn = toBaseUnits(decimal.NewFromInt(1), pos.TokenDecimals)
	}
	out, err := e.quote(ctx, amountIn, []common.Address{token, e.cfg.WrappedNative})
	if err != nil {
		return decimal.Zero, fmt.Errorf("executor: quote %s: %w", pos.Token, err)
	}
	native := decimal.NewFromBigInt(out, -domain.NativeDecimals)
	return domain.PricePerToken(native, decimal.NewFromBigInt(amountIn, 0), pos.TokenDecimals), nil
}

// BlockNumber returns the node's latest block.
func (e *Engine) BlockNumber(ctx context.Context) (uint64, error) {
	return rpcCall(ctx, e, e.chain.BlockNumber)
}

// Wallet returns the address the engine signs for.
func (e *Engine) Wallet() common.Address {
	return e.chain.Address()
}

// --------------------------------------------------------------------------
// Submission
// --------------------------------------------------------------------------

type sendFunc func(ctx context.Context, p evm.TxParams) (common.Hash, error)

// transact submits and awaits one transaction. ok is false when rc holds the
// failure receipt.
func (e *Engine) transact(ctx context.Context, log *slog.Logger, intent domain.TradeIntent, send sendFunc, gasPrice *big.Int) (*types.Receipt, int, domain.ExecutionReceipt, bool) {
	// An in-flight transaction cannot be recalled, so submission and
	// confirmation outlive caller cancellation; both are bounded by timeouts.
	ctx = context.WithoutCancel(ctx)

	hashes, attempts, err := e.submit(ctx, send, gasPrice)
	if err != nil && len(hashes) == 0 {
		rc := e.fail(ctx, log, intent, submitFailure(err), err.Error())
		rc.Attempts = attempts
		return nil, attempts, rc, false
	}
	if err != nil {
		log.WarnContext(ctx, "broadcast outcome unknown, polling for receipt",
			slog.Int("hashes", len(hashes)),
			slog.String("error", err.Error()),
		)
	}

	receipt, werr := e.await(ctx, hashes)
	if werr != nil {
		reason := domain.FailureConfirmationTimeout
		if err != nil {
			// Nothing observed on-chain for a broadcast that also errored.
			reason = submitFailure(err)
		}
		rc := e.fail(ctx, log, intent, reason, werr.Error())
		rc.TxHash = hashes[len(hashes)-1].Hex()
		rc.Attempts = attempts
		return nil, attempts, rc, false
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		rc := e.fail(ctx, log, intent, domain.FailureReverted, "transaction reverted on-chain")
		rc.TxHash = receipt.TxHash.Hex()
		rc.GasUsed = receipt.GasUsed
		rc.Attempts = attempts
		if receipt.BlockNumber != nil {
			rc.BlockNumber = receipt.BlockNumber.Uint64()
		}
		return nil, attempts, rc, false
	}
	return receipt, attempts, domain.ExecutionReceipt{}, true
}

// submit broadcasts with bounded retries. Every retry reuses the same nonce,
// so at most one of the attempts can ever be mined. All hashes that may have
// reached the node are returned for polling.
func (e *Engine) submit(ctx context.Context, send sendFunc, gasPrice *big.Int) ([]common.Hash, int, error) {
	var hashes []common.Hash
	var nonce uint64

	attempts, err := e.cfg.Retry.Do(ctx, e.sleep, func(ctx context.Context, attempt int) error {
		n, err := rpcOnce(ctx, e, e.nonces.Peek)
		if err != nil {
			return err
		}
		nonce = n

		cctx, cancel := context.WithTimeout(ctx, e.cfg.RPCTimeout)
		defer cancel()
		hash, err := send(cctx, evm.TxParams{Nonce: nonce, GasPrice: gasPrice})
		if hash != (common.Hash{}) {
			hashes = append(hashes, hash)
		}
		switch {
		case err == nil:
			return nil
		case isAlreadySubmitted(err) && len(hashes) > 1:
			// An earlier attempt with this nonce reached the node.
			return nil
		case isAlreadySubmitted(err):
			e.nonces.Reset()
			hashes = hashes[:0]
			return fmt.Errorf("%w: %w", errStaleNonce, err)
		}
		return err
	})
	if err != nil {
		if len(hashes) == 0 {
			e.nonces.Reset()
		} else {
			e.nonces.Consume(nonce)
		}
		return hashes, attempts, err
	}
	e.nonces.Consume(nonce)
	return hashes, attempts, nil
}

// await polls every candidate hash until one has a receipt or the
// confirmation timeout passes.
func (e *Engine) await(ctx context.Context, hashes []common.Hash) (*types.Receipt, error) {
	deadline := e.now().Add(e.cfg.ConfirmTimeout)
	for {
		for _, h := range hashes {
			r, err := rpcOnce(ctx, e, func(ctx context.Context) (*types.Receipt, error) {
				return e.chain.Receipt(ctx, h)
			})
			if err == nil && r != nil {
				return r, nil
			}
		}
		if !e.now().Before(deadline) {
			return nil, fmt.Errorf("%w after %s", errConfirmTimeout, e.cfg.ConfirmTimeout)
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) ensureAllowance(ctx context.Context, log *slog.Logger, token common.Address, amount, gasPrice *big.Int) (int, error) {
	if e.approved[token] {
		return 0, nil
	}
	current, err := rpcCall(ctx, e, func(ctx context.Context) (*big.Int, error) {
		return e.chain.Allowance(ctx, token, e.chain.Address(), e.chain.Router())
	})
	if err != nil {
		return 0, fmt.Errorf("read allowance: %w", err)
	}
	if current.Cmp(amount) >= 0 {
		e.approved[token] = true
		return 0, nil
	}

	ctx = context.WithoutCancel(ctx)
	hashes, attempts, err := e.submit(ctx, func(ctx context.Context, p evm.TxParams) (common.Hash, error) {
		return e.chain.SendApprove(ctx, p, token)
	}, gasPrice)
	if len(hashes) == 0 {
		return attempts, fmt.Errorf("approve: %w", err)
	}
	receipt, werr := e.await(ctx, hashes)
	if werr != nil {
		return attempts, fmt.Errorf("approve: %w", werr)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return attempts, fmt.Errorf("approve reverted in %s", receipt.TxHash.Hex())
	}

	e.approved[token] = true
	log.InfoContext(ctx, "router approved", slog.String("tx", receipt.TxHash.Hex()))
	return attempts, nil
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// rpcCall runs fn with the per-call timeout and the retry policy.
func rpcCall[T any](ctx context.Context, e *Engine, fn func(context.Context) (T, error)) (T, error) {
	v, _, err := Value(ctx, e.cfg.Retry, e.sleep, func(ctx context.Context) (T, error) {
		return rpcOnce(ctx, e, fn)
	})
	return v, err
}

// rpcOnce runs fn once with the per-call timeout.
func rpcOnce[T any](ctx context.Context, e *Engine, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.RPCTimeout)
	defer cancel()
	return fn(cctx)
}

func (e *Engine) quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	amounts, err := rpcCall(ctx, e, func(ctx context.Context) ([]*big.Int, error) {
		return e.chain.AmountsOut(ctx, amountIn, path)
	})
	if err != nil {
		return nil, err
	}
	if len(amounts) == 0 || amounts[len(amounts)-1] == nil || amounts[len(amounts)-1].Sign() <= 0 {
		return nil, errors.New("router quoted zero output")
	}
	return amounts[len(amounts)-1], nil
}

func (e *Engine) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	e.metaMu.RLock()
	d, ok := e.decimals[token]
	e.metaMu.RUnlock()
	if ok {
		return d, nil
	}
	d, err := rpcCall(ctx, e, func(ctx context.Context) (uint8, error) {
		return e.chain.Decimals(ctx, token)
	})
	if err != nil {
		return 0, fmt.Errorf("read decimals: %w", err)
	}
	e.metaMu.Lock()
	e.decimals[token] = d
	e.metaMu.Unlock()
	return d, nil
}

func (e *Engine) cappedGasPrice(ctx context.Context, log *slog.Logger, intent domain.TradeIntent) (*big.Int, domain.ExecutionReceipt, bool) {
	price, err := rpcCall(ctx, e, e.chain.GasPrice)
	if err != nil {
		return nil, e.fail(ctx, log, intent, domain.FailureRPCUnavailable, err.Error()), false
	}
	if e.cfg.MaxGasPrice != nil && price.Cmp(e.cfg.MaxGasPrice) > 0 {
		detail := fmt.Sprintf("gas price %s wei above ceiling %s wei", price, e.cfg.MaxGasPrice)
		return nil, e.fail(ctx, log, intent, domain.FailureGasCeilingExceeded, detail), false
	}
	return price, domain.ExecutionReceipt{}, true
}

// --------------------------------------------------------------------------
// Receipts
// --------------------------------------------------------------------------

func (e *Engine) success(intent domain.TradeIntent, r *types.Receipt, attempts int, gasPrice *big.Int, native, tokens decimal.Decimal, decimals uint8) domain.ExecutionReceipt {
	effective := gasPrice
	if r.EffectiveGasPrice != nil && r.EffectiveGasPrice.Sign() > 0 {
		effective = r.EffectiveGasPrice
	}
	rc := domain.ExecutionReceipt{
		IntentID:      intent.ID,
		Side:          intent.Side,
		Token:         intent.Token,
		Success:       true,
		TxHash:        r.TxHash.Hex(),
		NativeAmount:  native,
		TokenAmount:   tokens,
		TokenDecimals: decimals,
		RealizedPrice: domain.PricePerToken(native, tokens, decimals),
		GasUsed:       r.GasUsed,
		GasPriceWei:   decimal.NewFromBigInt(effective, 0),
		Attempts:      attempts,
		ConfirmedAt:   e.now().UTC(),
	}
	if r.BlockNumber != nil {
		rc.BlockNumber = r.BlockNumber.Uint64()
	}
	return rc
}

func (e *Engine) fail(ctx context.Context, log *slog.Logger, intent domain.TradeIntent, reason domain.FailureReason, detail string) domain.ExecutionReceipt {
	log.WarnContext(ctx, "intent abandoned",
		slog.String("reason", string(reason)),
		slog.String("detail", detail),
	)
	return domain.Failed(intent, reason, detail)
}

func submitFailure(err error) domain.FailureReason {
	switch {
	case errors.Is(err, domain.ErrSignerUnavailable):
		return domain.FailureSignerUnavailable
	case IsRevert(err):
		return domain.FailureReverted
	default:
		return domain.FailureRPCUnavailable
	}
}

// --------------------------------------------------------------------------
// Amount helpers
// --------------------------------------------------------------------------

func toBaseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

// applySlippage returns amount * (10000 - bps) / 10000, rounded down.
func applySlippage(amount *big.Int, bps int) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(int64(10_000-bps)))
	return out.Quo(out, big.NewInt(10_000))
}

// withinSlippage reports whether quoted is at least expected less the
// tolerance.
func withinSlippage(quoted *big.Int, expected decimal.Decimal, bps int) (string, bool) {
	floor := expected.Mul(decimal.NewFromInt(int64(10_000 - bps))).Div(decimal.NewFromInt(10_000))
	q := decimal.NewFromBigInt(quoted, 0)
	if q.GreaterThanOrEqual(floor) {
		return "", true
	}
	realized := decimal.Zero
	if expected.IsPositive() {
		realized = q.Div(expected).Mul(decimal.NewFromInt(10_000)).Round(0)
	}
	return fmt.Sprintf("quote realizes %s bps of expected output, floor %d bps", realized, 10_000-bps), false
}

func sumTransfers(r *types.Receipt, token, to common.Address) *big.Int {
	total := new(big.Int)
	for _, l := range r.Logs {
		if l.Address != token || len(l.Topics) != 3 || l.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != to {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(l.Data))
	}
	return total
}

func sumWithdrawals(r *types.Receipt, wrapped common.Address) *big.Int {
	total := new(big.Int)
	for _, l := range r.Logs {
		if l.Address != wrapped || len(l.Topics) < 1 || l.Topics[0] != withdrawalTopic {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(l.Data))
	}
	return total
}
