// Package loop drives the trading cycle: refresh open positions and exit
// those that crossed a bound, discover and screen new candidates, admit the
// accepted ones up to capacity, and persist the result.
package loop

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/memebot/internal/domain"
	"github.com/alanyoungcy/memebot/internal/portfolio"
)

// State is the orchestrator's position in a cycle.
type State string

const (
	StateRefreshing  State = "refreshing"
	StateDiscovering State = "discovering"
	StateScreening   State = "screening"
	StateAdmitting   State = "admitting"
	StatePersisting  State = "persisting"
	StateIdle        State = "idle"
)

// Notification event types.
const (
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventCycleFailed    = "cycle_failed"
	EventFatal          = "fatal"
)

// Scanner discovers candidates in descending momentum order.
type Scanner interface {
	Discover(ctx context.Context) (iter.Seq[domain.Candidate], error)
}

// Evaluator screens one candidate.
type Evaluator interface {
	Evaluate(ctx context.Context, c domain.Candidate) domain.RiskVerdict
}

// Executor runs trade intents and reports chain liveness.
type Executor interface {
	Execute(ctx context.Context, intent domain.TradeIntent) domain.ExecutionReceipt
	BlockNumber(ctx context.Context) (uint64, error)
}

// Alerter forwards operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Archiver stores a copy of each persisted portfolio document.
type Archiver interface {
	Archive(ctx context.Context, doc domain.PortfolioDocument) error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config tunes the cycle.
type Config struct {
	Interval          time.Duration
	PositionSize      decimal.Decimal // native units per entry
	SlippageBps       int
	IntentDeadline    time.Duration
	ScreenConcurrency int
	HealthTimeout     time.Duration
	SideEffectTimeout time.Duration // per journal, bus, archive or alert call
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal mirrors executions and positions to a journal store.
func WithJournal(j domain.JournalStore) Option { return func(o *Orchestrator) { o.journal = j } }

// WithBus publishes cycle and position events.
func WithBus(b domain.SignalBus) Option { return func(o *Orchestrator) { o.bus = b } }

// WithAlerter sends operator notifications.
func WithAlerter(a Alerter) Option { return func(o *Orchestrator) { o.alerter = a } }

// WithArchiver uploads every persisted document.
func WithArchiver(a Archiver) Option { return func(o *Orchestrator) { o.archiver = a } }

// WithClock replaces the time source and the idle sleeper.
func WithClock(now func() time.Time, sleep SleepFunc) Option {
	return func(o *Orchestrator) {
		o.now = now
		o.sleep = sleep
	}
}

// Orchestrator runs cycles one at a time. It is the only writer of the
// portfolio.
type Orchestrator struct {
	scanner   Scanner
	evaluator Evaluator
	executor  Executor
	portfolio *portfolio.Manager
	cfg       Config

	journal  domain.JournalStore
	bus      domain.SignalBus
	alerter  Alerter
	archiver Archiver

	// cycleMu keeps cycles and manual closes from overlapping.
	cycleMu sync.Mutex
	stateMu sync.RWMutex
	state   State
	last    CycleReport

	now    func() time.Time
	sleep  SleepFunc
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(scanner Scanner, evaluator Evaluator, executor Executor, pf *portfolio.Manager, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.IntentDeadline <= 0 {
		cfg.IntentDeadline = 5 * time.Minute
	}
	if cfg.ScreenConcurrency <= 0 {
		cfg.ScreenConcurrency = 4
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = 5 * time.Second
	}
	o := &Orchestrator{
		scanner:   scanner,
		evaluator: evaluator,
		executor:  executor,
		portfolio: pf,
		cfg:       cfg,
		state:     StateIdle,
		now:       time.Now,
		sleep:     sleepCtx,
		logger:    logger.With(slog.String("component", "loop")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes cycles until ctx is done. With continuous false it runs a
// single cycle. Only fatal errors are returned.
func (o *Orchestrator) Run(ctx context.Context, continuous bool) error {
	o.logger.InfoContext(ctx, "control loop starting",
		slog.Bool("continuous", continuous),
		slog.Duration("interval", o.cfg.Interval),
	)
	for {
		if _, err := o.RunCycle(ctx); err != nil {
			return err
		}
		if !continuous {
			return nil
		}
		if err := o.sleep(ctx, o.cfg.Interval); err != nil {
			o.logger.InfoContext(ctx, "control loop stopped")
			return nil
		}
	}
}

// RunCycle performs one traversal of the state machine. A non-fatal failure
// is recorded in the report and the cycle still persists; a fatal one aborts
// before persisting and is returned.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	report := CycleReport{ID: uuid.NewString(), StartedAt: o.now().UTC()}
	log := o.logger.With(slog.String("cycle_id", report.ID))

	err := o.guard(func() error { return o.phases(ctx, log, &report) })
	if err != nil {
		report.Err = err.Error()
		if domain.IsFatal(err) {
			log.ErrorContext(ctx, "cycle aborted", slog.String("error", err.Error()))
			o.alert(ctx, EventFatal, "memebot halted", err.Error())
			o.finish(report)
			return report, err
		}
		log.ErrorContext(ctx, "cycle failed, persisting partial state", slog.String("error", err.Error()))
		o.alert(ctx, EventCycleFailed, "cycle failed", err.Error())
	}

	o.enter(&report, StatePersisting)
	doc, perr := o.portfolio.Persist(ctx)
	if perr != nil {
		report.Err = perr.Error()
		log.ErrorContext(ctx, "persist failed", slog.String("error", perr.Error()))
		o.alert(ctx, EventFatal, "memebot halted", perr.Error())
		o.finish(report)
		return report, perr
	}
	report.Persisted = true
	if o.archiver != nil {
		actx, cancel := o.sideEffectCtx(ctx)
		aerr := o.archiver.Archive(actx, doc)
		cancel()
		if aerr != nil {
			log.WarnContext(ctx, "snapshot archive failed", slog.String("error", aerr.Error()))
		}
	}

	o.enter(&report, StateIdle)
	report.FinishedAt = o.now().UTC()
	o.finish(report)
	o.publish(ctx, domain.ChannelCycles, "cycle_completed", report)

	log.InfoContext(ctx, "cycle complete",
		slog.Int("exits", report.Exits),
		slog.Int("discovered", report.Discovered),
		slog.Int("accepted", report.Accepted),
		slog.Int("admitted", report.Admitted),
		slog.Int("open", o.portfolio.Snapshot().TotalOpen),
		slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (o *Orchestrator) phases(ctx context.Context, log *slog.Logger, report *CycleReport) error {
	// Refreshing: value open positions and exit those past a bound.
	o.enter(report, StateRefreshing)
	if err := o.portfolio.RefreshValuations(ctx); err != nil {
		log.WarnContext(ctx, "valuation refresh incomplete", slog.String("error", err.Error()))
	}
	report.Refreshed = len(o.portfolio.Open())
	for _, intent := range o.portfolio.EvaluateExits() {
		if _, err := o.exit(ctx, log, intent, report); err != nil && domain.IsFatal(err) {
			return err
		}
	}

	// Discovering.
	o.enter(report, StateDiscovering)
	remaining := o.portfolio.Remaining()
	if remaining == 0 {
		log.InfoContext(ctx, "at capacity, skipping discovery")
		o.enter(report, StateScreening)
		o.enter(report, StateAdmitting)
		return nil
	}
	seq, err := o.scanner.Discover(ctx)
	if err != nil {
		return fmt.Errorf("loop: discover: %w", err)
	}
	var candidates []domain.Candidate
	for c := range seq {
		if o.portfolio.IsHolding(c.Token) {
			continue
		}
		candidates = append(candidates, c)
	}
	report.Discovered = len(candidates)

	// Screening.
	o.enter(report, StateScreening)
	accepted, err := o.screen(ctx, log, candidates)
	if err != nil {
		return err
	}
	report.Screened = len(candidates)
	report.Accepted = len(accepted)

	// Admitting.
	o.enter(report, StateAdmitting)
	for _, c := range accepted {
		if o.portfolio.Remaining() == 0 {
			log.InfoContext(ctx, "capacity reached, admission stopped",
				slog.Int("skipped", len(accepted)-report.Admitted-report.EntryFailures),
			)
			break
		}
		if err := o.admit(ctx, log, c, report); err != nil {
			return err
		}
	}
	return nil
}

// screen evaluates candidates concurrently and returns the accepted ones in
// their original order.
func (o *Orchestrator) screen(ctx context.Context, log *slog.Logger, candidates []domain.Candidate) ([]domain.Candidate, error) {
	verdicts := make([]domain.RiskVerdict, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ScreenConcurrency)
	for i, c := range candidates {
		g.Go(func() error {
			return o.guard(func() error {
				verdicts[i] = o.evaluator.Evaluate(gctx, c)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loop: screening: %w", err)
	}

	var accepted []domain.Candidate
	for i, v := range verdicts {
		if v.Accepted {
			accepted = append(accepted, candidates[i])
			continue
		}
		codes := make([]string, 0, len(v.Reasons))
		for _, r := range v.Reasons {
			codes = append(codes, string(r.Code))
		}
		log.DebugContext(ctx, "candidate rejected",
			slog.String("token", candidates[i].Token),
			slog.String("symbol", candidates[i].Symbol),
			slog.Any("reasons", codes),
		)
	}
	return accepted, nil
}

func (o *Orchestrator) admit(ctx context.Context, log *slog.Logger, c domain.Candidate, report *CycleReport) error {
	if err := o.portfolio.CanAdmit(c.Token); err != nil {
		log.InfoContext(ctx, "candidate not admitted", slog.String("token", c.Token), slog.String("error", err.Error()))
		return nil
	}

	intent := domain.TradeIntent{
		ID:             uuid.NewString(),
		Side:           domain.SideBuy,
		Token:          c.Token,
		BaseToken:      c.BaseToken,
		Symbol:         c.Symbol,
		AmountIn:       o.cfg.PositionSize,
		ReferencePrice: c.PriceNative,
		SlippageBps:    o.cfg.SlippageBps,
		Deadline:       o.now().Add(o.cfg.IntentDeadline),
	}
	rc := o.execute(ctx, intent)
	if !rc.Success {
		report.EntryFailures++
		if rc.Failure == domain.FailureSignerUnavailable {
			return fmt.Errorf("loop: buy %s: %w: %s", c.Token, domain.ErrSignerUnavailable, rc.Detail)
		}
		log.WarnContext(ctx, "entry abandoned",
			slog.String("token", c.Token),
			slog.String("reason", string(rc.Failure)),
			slog.String("detail", rc.Detail),
		)
		return nil
	}

	pos, err := o.portfolio.RecordEntry(c, rc)
	if err != nil {
		return o.unwind(ctx, log, c, rc, err)
	}
	report.Admitted++
	o.recordPosition(ctx, pos)
	o.publish(ctx, domain.ChannelPositions, EventPositionOpened, pos)
	o.alert(ctx, EventPositionOpened, "position opened",
		fmt.Sprintf("%s %s: %s native for %s tokens at %s", pos.Symbol, pos.Token, pos.EntryNative, pos.WholeTokens(), pos.EntryPrice))
	return nil
}

// unwind sells tokens from a confirmed buy that could not be recorded.
func (o *Orchestrator) unwind(ctx context.Context, log *slog.Logger, c domain.Candidate, buy domain.ExecutionReceipt, cause error) error {
	log.ErrorContext(ctx, "confirmed buy could not be recorded, unwinding",
		slog.String("token", c.Token),
		slog.String("error", cause.Error()),
	)
	price := buy.RealizedPrice
	sell := o.execute(ctx, domain.TradeIntent{
		ID:             uuid.NewString(),
		Side:           domain.SideSell,
		Token:          c.Token,
		BaseToken:      c.BaseToken,
		Symbol:         c.Symbol,
		AmountIn:       buy.TokenAmount,
		ReferencePrice: price,
		SlippageBps:    o.cfg.SlippageBps,
		Deadline:       o.now().Add(o.cfg.IntentDeadline),
		Reason:         domain.CloseErrorUnwind,
	})
	if !sell.Success {
		msg := fmt.Sprintf("tokens of %s from %s are held but not tracked: %s", c.Token, buy.TxHash, sell.Detail)
		o.alert(ctx, EventFatal, "unwind failed", msg)
		return fmt.Errorf("loop: unwind %s: %w: %s", c.Token, cause, sell.Failure)
	}
	pos, err := o.portfolio.RecordUnwind(c, buy, sell)
	if err != nil {
		return fmt.Errorf("loop: record unwind: %w", err)
	}
	o.recordPosition(ctx, pos)
	o.publish(ctx, domain.ChannelPositions, EventPositionClosed, pos)
	return nil
}

func (o *Orchestrator) exit(ctx context.Context, log *slog.Logger, intent domain.TradeIntent, report *CycleReport) (domain.Position, error) {
	rc := o.execute(ctx, intent)
	if !rc.Success {
		if report != nil {
			report.ExitFailures++
		}
		if rc.Failure == domain.FailureSignerUnavailable {
			return domain.Position{}, fmt.Errorf("loop: sell %s: %w: %s", intent.Token, domain.ErrSignerUnavailable, rc.Detail)
		}
		log.WarnContext(ctx, "exit abandoned, will retry next cycle",
			slog.String("token", intent.Token),
			slog.String("close_reason", string(intent.Reason)),
			slog.String("reason", string(rc.Failure)),
			slog.String("detail", rc.Detail),
		)
		return domain.Position{}, fmt.Errorf("loop: sell %s: %s: %s", intent.Token, rc.Failure, rc.Detail)
	}

	pos, err := o.portfolio.RecordExit(intent.PositionID, intent.Reason, rc)
	if err != nil {
		log.ErrorContext(ctx, "confirmed sell could not be recorded",
			slog.String("token", intent.Token),
			slog.String("position_id", intent.PositionID),
			slog.String("tx_hash", rc.TxHash),
			slog.String("error", err.Error()),
		)
		o.alert(ctx, EventFatal, "exit not recorded",
			fmt.Sprintf("tokens of %s were sold in %s but position %s is still open: %v", intent.Token, rc.TxHash, intent.PositionID, err))
		return domain.Position{}, fmt.Errorf("loop: record exit: %w", err)
	}
	if report != nil {
		report.Exits++
	}
	o.recordPosition(ctx, pos)
	o.publish(ctx, domain.ChannelPositions, EventPositionClosed, pos)
	o.alert(ctx, EventPositionClosed, "position closed",
		fmt.Sprintf("%s %s (%s): pnl %s native", pos.Symbol, pos.Token, pos.CloseReason, pos.RealizedPnL))
	return pos, nil
}

// ClosePosition sells the open position in token at once and persists the
// result.
func (o *Orchestrator) ClosePosition(ctx context.Context, token string) (domain.Position, error) {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	if err := o.portfolio.RefreshValuations(ctx); err != nil {
		o.logger.WarnContext(ctx, "valuation refresh incomplete", slog.String("error", err.Error()))
	}
	intent, err := o.portfolio.ExitIntent(token, domain.CloseManual)
	if err != nil {
		return domain.Position{}, fmt.Errorf("loop: close: %w", err)
	}

	pos, err := o.exit(ctx, o.logger, intent, nil)
	if err != nil {
		return domain.Position{}, err
	}
	if _, err := o.portfolio.Persist(ctx); err != nil {
		return pos, err
	}
	return pos, nil
}

// Health reports whether the chain node answers with a block number.
func (o *Orchestrator) Health(ctx context.Context) domain.Health {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.HealthTimeout)
	defer cancel()

	n, err := o.executor.BlockNumber(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "health check failed", slog.String("error", err.Error()))
		return domain.Health{}
	}
	return domain.Health{SyncedBlock: n, OK: n > 0}
}

// State returns the current cycle state.
func (o *Orchestrator) State() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

// LastCycle returns the report of the most recent cycle.
func (o *Orchestrator) LastCycle() CycleReport {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.last
}

func (o *Orchestrator) execute(ctx context.Context, intent domain.TradeIntent) domain.ExecutionReceipt {
	rc := o.executor.Execute(ctx, intent)
	if o.journal != nil {
		jctx, cancel := o.sideEffectCtx(ctx)
		err := o.journal.RecordExecution(jctx, intent, rc)
		cancel()
		if err != nil {
			o.logger.WarnContext(ctx, "journal execution failed",
				slog.String("intent_id", intent.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	o.appendStream(ctx, domain.StreamExecutions, "execution", rc)
	return rc
}

func (o *Orchestrator) recordPosition(ctx context.Context, pos domain.Position) {
	if o.journal == nil {
		return
	}
	jctx, cancel := o.sideEffectCtx(ctx)
	defer cancel()
	if err := o.journal.UpsertPosition(jctx, pos); err != nil {
		o.logger.WarnContext(ctx, "journal position failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) alert(ctx context.Context, event, title, message string) {
	if o.alerter == nil {
		return
	}
	actx, cancel := o.sideEffectCtx(ctx)
	defer cancel()
	if err := o.alerter.Notify(actx, event, title, message); err != nil {
		o.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) enter(report *CycleReport, s State) {
	report.States = append(report.States, s)
	o.stateMu.Lock()
	o.state = s
	o.stateMu.Unlock()
}

func (o *Orchestrator) finish(report CycleReport) {
	o.stateMu.Lock()
	o.state = StateIdle
	o.last = report
	o.stateMu.Unlock()
}

// sideEffectCtx bounds a journal, bus, archive or alert call. It outlives
// cancellation of ctx so a shutdown still records what already happened.
func (o *Orchestrator) sideEffectCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.SideEffectTimeout)
}

// guard converts a panic in fn into an error.
func (o *Orchestrator) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loop: cycle panicked: %v", r)
		}
	}()
	return fn()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
