// Package portfolio owns the bot's durable state: open and closed positions,
// their valuations, and the exit decisions derived from them. Only the
// control loop mutates a Manager; readers take snapshots.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// PriceSource quotes the current native price per whole token of a position.
type PriceSource interface {
	QuotePrice(ctx context.Context, pos domain.Position) (decimal.Decimal, error)
}

// Config holds the position sizing and exit parameters.
type Config struct {
	Capacity      int
	TakeProfitBps int
	StopLossBps   int

	// Exit intents carry these bounds.
	SlippageBps  int
	ExitDeadline time.Duration

	RefreshConcurrency int
}

// Option configures a Manager.
type Option func(*Manager)

// WithPriceCache mirrors every refreshed price into cache.
func WithPriceCache(cache domain.PriceCache) Option {
	return func(m *Manager) { m.cache = cache }
}

// WithNativePricer enables USD valuation.
func WithNativePricer(p domain.NativePricer) Option {
	return func(m *Manager) { m.pricer = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// observation is the price range seen since exits were last evaluated.
type observation struct {
	last, low, high decimal.Decimal
}

// Manager is the in-memory portfolio aggregate.
type Manager struct {
	mu        sync.RWMutex
	doc       domain.PortfolioDocument
	obs       map[string]observation // position ID -> window
	nativeUSD decimal.Decimal

	store  Store
	prices PriceSource
	cache  domain.PriceCache
	pricer domain.NativePricer
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewManager creates an empty Manager. Call Load before use.
func NewManager(store Store, prices PriceSource, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if cfg.RefreshConcurrency <= 0 {
		cfg.RefreshConcurrency = 4
	}
	if cfg.ExitDeadline <= 0 {
		cfg.ExitDeadline = 5 * time.Minute
	}
	m := &Manager{
		doc:    domain.PortfolioDocument{Capacity: cfg.Capacity},
		obs:    make(map[string]observation),
		store:  store,
		prices: prices,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "portfolio")),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Load replaces the in-memory state with the stored document. A missing
// document yields an empty portfolio. Capacity always comes from config.
func (m *Manager) Load(ctx context.Context) error {
	doc, found, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("portfolio: load: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc.Capacity = m.cfg.Capacity
	m.doc = doc
	m.obs = make(map[string]observation, len(doc.Open))
	for _, p := range doc.Open {
		mark := p.MarkPrice()
		m.obs[p.ID] = observation{last: mark, low: mark, high: mark}
	}

	if !found {
		m.logger.InfoContext(ctx, "no prior portfolio, starting empty")
		return nil
	}
	if len(doc.Open) > doc.Capacity {
		m.logger.WarnContext(ctx, "open positions exceed configured capacity, admissions paused",
			slog.Int("open", len(doc.Open)),
			slog.Int("capacity", doc.Capacity),
		)
	}
	m.logger.InfoContext(ctx, "portfolio loaded",
		slog.Int("open", len(doc.Open)),
		slog.Int("closed", len(doc.Closed)),
		slog.Time("updated_at", doc.UpdatedAt),
	)
	return nil
}

// RefreshValuations quotes every open position concurrently and records the
// prices. A failed quote leaves that position's last price unchanged; all
// failures are returned joined.
func (m *Manager) RefreshValuations(ctx context.Context) error {
	open := m.Open()

	prices := make([]decimal.Decimal, len(open))
	errs := make([]error, len(open))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.RefreshConcurrency)
	for i, p := range open {
		g.Go(func() error {
			price, err := m.prices.QuotePrice(gctx, p)
			if err != nil {
				errs[i] = fmt.Errorf("portfolio: quote %s: %w", p.Token, err)
				return nil
			}
			prices[i] = price
			return nil
		})
	}
	if m.pricer != nil {
		g.Go(func() error {
			usd, err := m.pricer.NativeUSD(gctx)
			if err != nil {
				m.logger.WarnContext(gctx, "native usd price unavailable", slog.String("error", err.Error()))
				return nil
			}
			m.mu.Lock()
			m.nativeUSD = usd
			m.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	at := m.now().UTC()
	for i, p := range open {
		if errs[i] != nil || !prices[i].IsPositive() {
			continue
		}
		if err := m.Observe(p.ID, prices[i], at); err != nil {
			errs[i] = err
			continue
		}
		if m.cache != nil {
			f, _ := prices[i].Float64()
			if err := m.cache.SetPrice(ctx, p.Token, f, at); err != nil {
				m.logger.WarnContext(ctx, "price cache write failed",
					slog.String("token", p.Token),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return errors.Join(errs...)
}

// Observe records a price for an open position. Only the cached last price
// changes on the position itself.
func (m *Manager) Observe(positionID string, price decimal.Decimal, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.openIndex(positionID)
	if i < 0 {
		return fmt.Errorf("portfolio: observe %s: %w", positionID, domain.ErrPositionNotFound)
	}
	m.doc.Open[i].LastPrice = price
	m.doc.Open[i].LastPriceAt = at

	o, ok := m.obs[positionID]
	if !ok {
		o = observation{low: price, high: price}
	}
	o.last = price
	if price.LessThan(o.low) {
		o.low = price
	}
	if price.GreaterThan(o.high) {
		o.high = price
	}
	m.obs[positionID] = o
	return nil
}

// EvaluateExits returns a sell intent for every open position whose observed
// prices crossed a bound since the previous evaluation. When both bounds were
// crossed the stop-loss wins. The observation windows restart afterwards.
func (m *Manager) EvaluateExits() []domain.TradeIntent {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var intents []domain.TradeIntent
	for _, p := range m.doc.Open {
		o, ok := m.obs[p.ID]
		if !ok || !o.last.IsPositive() {
			continue
		}
		m.obs[p.ID] = observation{last: o.last, low: o.last, high: o.last}

		var reason domain.CloseReason
		switch {
		case p.StopLossPrice.IsPositive() && o.low.LessThanOrEqual(p.StopLossPrice):
			reason = domain.CloseStopLoss
		case p.TakeProfitPrice.IsPositive() && o.high.GreaterThanOrEqual(p.TakeProfitPrice):
			reason = domain.CloseTakeProfit
		default:
			continue
		}
		intents = append(intents, m.exitIntent(p, reason, o.last, now))
	}
	return intents
}

// ExitIntent builds a sell intent for the open position holding token.
func (m *Manager) ExitIntent(token string, reason domain.CloseReason) (domain.TradeIntent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.doc.Open {
		if p.Token == domain.NormalizeAddress(token) {
			return m.exitIntent(p, reason, p.MarkPrice(), m.now()), nil
		}
	}
	return domain.TradeIntent{}, fmt.Errorf("portfolio: exit %s: %w", token, domain.ErrPositionNotFound)
}

func (m *Manager) exitIntent(p domain.Position, reason domain.CloseReason, price decimal.Decimal, now time.Time) domain.TradeIntent {
	return domain.TradeIntent{
		ID:             uuid.NewString(),
		Side:           domain.SideSell,
		Token:          p.Token,
		BaseToken:      p.BaseToken,
		Symbol:         p.Symbol,
		AmountIn:       p.TokenAmount,
		ReferencePrice: price,
		SlippageBps:    m.cfg.SlippageBps,
		Deadline:       now.Add(m.cfg.ExitDeadline),
		PositionID:     p.ID,
		Reason:         reason,
	}
}

// CanAdmit reports why a new position in token would be refused, or nil.
func (m *Manager) CanAdmit(token string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.canAdmitLocked(domain.NormalizeAddress(token))
}

func (m *Manager) canAdmitLocked(token string) error {
	for _, p := range m.doc.Open {
		if p.Token == token {
			return fmt.Errorf("portfolio: %s: %w", token, domain.ErrDuplicatePosition)
		}
	}
	if len(m.doc.Open) >= m.doc.Capacity {
		return fmt.Errorf("portfolio: %d/%d open: %w", len(m.doc.Open), m.doc.Capacity, domain.ErrCapacityExceeded)
	}
	return nil
}

// Remaining is the number of positions that can still be opened.
func (m *Manager) Remaining() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return max(m.doc.Capacity-len(m.doc.Open), 0)
}

// IsHolding reports whether token has an open position.
func (m *Manager) IsHolding(token string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token = domain.NormalizeAddress(token)
	return slices.ContainsFunc(m.doc.Open, func(p domain.Position) bool { return p.Token == token })
}

// RecordEntry opens a position from a confirmed buy.
func (m *Manager) RecordEntry(c domain.Candidate, rc domain.ExecutionReceipt) (domain.Position, error) {
	if !rc.Success || rc.Side != domain.SideBuy {
		return domain.Position{}, fmt.Errorf("portfolio: record entry: %w", domain.ErrReceiptFailed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	token := domain.NormalizeAddress(c.Token)
	if err := m.canAdmitLocked(token); err != nil {
		return domain.Position{}, err
	}

	pos := m.entryLocked(c, rc)
	m.doc.Open = append(m.doc.Open, pos)
	m.obs[pos.ID] = observation{last: pos.EntryPrice, low: pos.EntryPrice, high: pos.EntryPrice}
	return pos, nil
}

func (m *Manager) entryLocked(c domain.Candidate, rc domain.ExecutionReceipt) domain.Position {
	tp, sl := domain.ExitTargets(rc.RealizedPrice, m.cfg.TakeProfitBps, m.cfg.StopLossBps)
	return domain.Position{
		ID:              uuid.NewString(),
		Token:           domain.NormalizeAddress(c.Token),
		BaseToken:       domain.NormalizeAddress(c.BaseToken),
		Pair:            c.Pair,
		Symbol:          c.Symbol,
		TokenDecimals:   rc.TokenDecimals,
		Status:          domain.PositionStatusOpen,
		EntryPrice:      rc.RealizedPrice,
		EntryNative:     rc.NativeAmount,
		TokenAmount:     rc.TokenAmount,
		EntryAt:         rc.ConfirmedAt,
		EntryTx:         rc.TxHash,
		EntryNativeUSD:  m.nativeUSD,
		TakeProfitPrice: tp,
		StopLossPrice:   sl,
		LastPrice:       rc.RealizedPrice,
		LastPriceAt:     rc.ConfirmedAt,
	}
}

// RecordExit closes the open position positionID from a confirmed sell.
func (m *Manager) RecordExit(positionID string, reason domain.CloseReason, rc domain.ExecutionReceipt) (domain.Position, error) {
	if !rc.Success || rc.Side != domain.SideSell {
		return domain.Position{}, fmt.Errorf("portfolio: record exit: %w", domain.ErrReceiptFailed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.openIndex(positionID)
	if i < 0 {
		return domain.Position{}, fmt.Errorf("portfolio: record exit %s: %w", positionID, domain.ErrPositionNotFound)
	}

	pos := closePosition(m.doc.Open[i], reason, rc)
	m.doc.Open = slices.Delete(m.doc.Open, i, i+1)
	m.doc.Closed = append(m.doc.Closed, pos)
	delete(m.obs, positionID)
	return pos, nil
}

// RecordUnwind records a buy that was sold straight back because it could
// not be admitted. The position goes directly to closed history.
func (m *Manager) RecordUnwind(c domain.Candidate, buy, sell domain.ExecutionReceipt) (domain.Position, error) {
	if !buy.Success || !sell.Success {
		return domain.Position{}, fmt.Errorf("portfolio: record unwind: %w", domain.ErrReceiptFailed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pos := closePosition(m.entryLocked(c, buy), domain.CloseErrorUnwind, sell)
	m.doc.Closed = append(m.doc.Closed, pos)
	return pos, nil
}

func closePosition(pos domain.Position, reason domain.CloseReason, rc domain.ExecutionReceipt) domain.Position {
	at := rc.ConfirmedAt
	pos.Status = domain.PositionStatusClosed
	pos.ExitPrice = rc.RealizedPrice
	pos.ExitNative = rc.NativeAmount
	pos.ExitAt = &at
	pos.ExitTx = rc.TxHash
	pos.RealizedPnL = rc.NativeAmount.Sub(pos.EntryNative)
	pos.CloseReason = reason
	pos.LastPrice = rc.RealizedPrice
	pos.LastPriceAt = at
	return pos
}

// Persist writes the full document. UpdatedAt strictly increases across
// successful writes. A failure is fatal to the cycle.
func (m *Manager) Persist(ctx context.Context) (domain.PortfolioDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := m.documentLocked()
	doc.UpdatedAt = m.now().UTC()
	if !doc.UpdatedAt.After(m.doc.UpdatedAt) {
		doc.UpdatedAt = m.doc.UpdatedAt.Add(time.Millisecond)
	}

	if err := m.store.Save(ctx, doc); err != nil {
		return domain.PortfolioDocument{}, fmt.Errorf("portfolio: persist: %w: %w", domain.ErrStorageWrite, err)
	}
	m.doc.UpdatedAt = doc.UpdatedAt
	return doc, nil
}

// Document returns a copy of the current document.
func (m *Manager) Document() domain.PortfolioDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.documentLocked()
}

func (m *Manager) documentLocked() domain.PortfolioDocument {
	return domain.PortfolioDocument{
		Open:      slices.Clone(m.doc.Open),
		Closed:    slices.Clone(m.doc.Closed),
		Capacity:  m.doc.Capacity,
		UpdatedAt: m.doc.UpdatedAt,
	}
}

// Open returns a copy of the open positions.
func (m *Manager) Open() []domain.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.doc.Open)
}

// NativeUSD returns the last fetched USD price of the native currency, or
// zero when unknown.
func (m *Manager) NativeUSD() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nativeUSD
}

// Snapshot returns a consistent, valued view of the portfolio.
func (m *Manager) Snapshot() domain.PortfolioView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	view := domain.PortfolioView{
		Open:          make([]domain.PositionView, 0, len(m.doc.Open)),
		Closed:        slices.Clone(m.doc.Closed),
		Capacity:      m.doc.Capacity,
		UpdatedAt:     m.doc.UpdatedAt,
		TotalOpen:     len(m.doc.Open),
		UnrealizedPnL: decimal.Zero,
		RealizedPnL:   decimal.Zero,
		NativeUSD:     m.nativeUSD,
	}
	if view.Closed == nil {
		view.Closed = []domain.Position{}
	}

	for _, p := range m.doc.Open {
		mark := p.MarkPrice()
		pv := domain.PositionView{
			Position:         p,
			UnrealizedPnL:    p.UnrealizedPnL(mark),
			UnrealizedPnLBps: p.PnLBps(mark).Round(0),
			CurrentValue:     mark.Mul(p.WholeTokens()),
		}
		if m.nativeUSD.IsPositive() {
			pv.CurrentValueUSD = pv.CurrentValue.Mul(m.nativeUSD)
		}
		view.Open = append(view.Open, pv)
		view.UnrealizedPnL = view.UnrealizedPnL.Add(pv.UnrealizedPnL)
	}
	for _, p := range m.doc.Closed {
		view.RealizedPnL = view.RealizedPnL.Add(p.RealizedPnL)
	}
	return view
}

func (m *Manager) openIndex(positionID string) int {
	return slices.IndexFunc(m.doc.Open, func(p domain.Position) bool { return p.ID == positionID })
}
