package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/memebot/internal/platform/evm"
)

var (
	testWallet = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testRouter = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	testWETH   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testToken  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// milliEther returns n / 1000 ether.
func milliEther(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e15))
}

type sentTx struct {
	kind  string
	nonce uint64
	hash  common.Hash
}

// fakeChain is an in-memory router and token. Broadcasts are mined
// immediately unless noReceipt is set.
type fakeChain struct {
	mu sync.Mutex

	gasPrice  *big.Int
	nonce     uint64
	native    *big.Int
	tokens    *big.Int
	allowance *big.Int
	decimals  uint8

	// quote returns the router output for amountIn along path.
	quote func(amountIn *big.Int, path []common.Address) *big.Int

	buyFill  *big.Int // tokens credited per buy
	sellFill *big.Int // native credited per sell
	gasUsed  uint64

	sendErrs       []error // popped per broadcast
	broadcastOnErr bool    // the node accepted the tx despite the error
	revertOnChain  bool
	noReceipt      bool
	quoteErr       error

	sent     []sentTx
	accepted map[uint64]common.Hash
	receipts map[common.Hash]*types.Receipt
	block    uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		gasPrice:  big.NewInt(20_000_000_000),
		nonce:     7,
		native:    ether(10),
		tokens:    new(big.Int),
		allowance: new(big.Int),
		decimals:  18,
		quote: func(amountIn *big.Int, path []common.Address) *big.Int {
			// 1 token = 0.001 native.
			if path[0] == testWETH {
				return new(big.Int).Mul(amountIn, big.NewInt(1000))
			}
			return new(big.Int).Quo(amountIn, big.NewInt(1000))
		},
		buyFill:  ether(100),
		sellFill: milliEther(100),
		gasUsed:  150_000,
		accepted: make(map[uint64]common.Hash),
		receipts: make(map[common.Hash]*types.Receipt),
		block:    19_000_000,
	}
}

func (f *fakeChain) Address() common.Address { return testWallet }
func (f *fakeChain) Router() common.Address  { return testRouter }

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.block, nil
}

func (f *fakeChain) GasPrice(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) PendingNonce(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChain) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.native), nil
}

func (f *fakeChain) AmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return []*big.Int{amountIn, f.quote(amountIn, path)}, nil
}

func (f *fakeChain) Decimals(context.Context, common.Address) (uint8, error) {
	return f.decimals, nil
}

func (f *fakeChain) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.tokens), nil
}

func (f *fakeChain) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeChain) SendApprove(_ context.Context, p evm.TxParams, _ common.Address) (common.Hash, error) {
	return f.broadcast("approve", p, func() {
		f.allowance = new(big.Int).Lsh(big.NewInt(1), 255)
	})
}

func (f *fakeChain) SendSwapExactETHForTokens(_ context.Context, p evm.TxParams, _, _ *big.Int, _ []common.Address, _ int64) (common.Hash, error) {
	return f.broadcast("buy", p, func() {
		f.tokens.Add(f.tokens, f.buyFill)
	})
}

func (f *fakeChain) SendSwapExactTokensForETH(_ context.Context, p evm.TxParams, amountIn, _ *big.Int, _ []common.Address, _ int64) (common.Hash, error) {
	return f.broadcast("sell", p, func() {
		f.tokens.Sub(f.tokens, amountIn)
		f.native.Add(f.native, f.sellFill)
	})
}

func (f *fakeChain) broadcast(kind string, p evm.TxParams, effect func()) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	hash := ethcrypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%d", kind, p.Nonce)))
	f.sent = append(f.sent, sentTx{kind: kind, nonce: p.Nonce, hash: hash})

	if _, ok := f.accepted[p.Nonce]; ok {
		return hash, errors.New("already known")
	}
	if p.Nonce < f.nonce {
		return hash, errors.New("nonce too low")
	}
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			if !f.broadcastOnErr {
				return common.Hash{}, err
			}
			f.accept(hash, p, effect)
			return hash, err
		}
	}
	f.accept(hash, p, effect)
	return hash, nil
}

// accept mines the transaction. Callers hold f.mu.
func (f *fakeChain) accept(hash common.Hash, p evm.TxParams, effect func()) {
	f.accepted[p.Nonce] = hash
	f.nonce = p.Nonce + 1
	f.block++
	if f.noReceipt {
		return
	}
	status := types.ReceiptStatusSuccessful
	if f.revertOnChain {
		status = types.ReceiptStatusFailed
	} else {
		effect()
	}
	f.native.Sub(f.native, new(big.Int).Mul(new(big.Int).SetUint64(f.gasUsed), p.GasPrice))
	f.receipts[hash] = &types.Receipt{
		Status:            status,
		TxHash:            hash,
		GasUsed:           f.gasUsed,
		EffectiveGasPrice: new(big.Int).Set(p.GasPrice),
		BlockNumber:       new(big.Int).SetUint64(f.block),
	}
}

func (f *fakeChain) Receipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[hash], nil
}

func (f *fakeChain) sentKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.kind)
	}
	return out
}

// fakeClock advances only when something sleeps on it.
type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

type fakeLocks struct {
	err      error
	acquired []string
	released int
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() { l.released++ }, nil
}
