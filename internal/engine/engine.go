package engine

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"etf_momentum/internal/executor"
	"etf_momentum/internal/metrics"
	"etf_momentum/internal/models"
	"etf_momentum/internal/notify"
	"etf_momentum/internal/report"
	"etf_momentum/internal/schedule"

	"github.com/shopspring/decimal"
)

// Exit codes returned in Result.
const (
	ExitOK    = 0
	ExitFatal = 1 // startup failed: broker unreachable
	ExitFault = 2 // a checkpoint handler crashed
)

// Waiter blocks until checkpoints. *schedule.Scheduler implements it.
type Waiter interface {
	WaitUntil(ctx context.Context, cp schedule.Checkpoint) schedule.Outcome
	Now() time.Time
}

type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type Ledger interface {
	Positions(ctx context.Context, symbols []string) ([]models.Position, error)
	Account(ctx context.Context) (*models.Account, error)
}

type Executor interface {
	Submit(ctx context.Context, r executor.Request) (models.TradeRecord, error)
}

// Session is the part of the broker the engine talks to directly.
type Session interface {
	Clock(ctx context.Context) (*models.Clock, error)
	IsTradingDay(ctx context.Context, date time.Time) (bool, error)
}

type StateStore interface {
	Load(date string) (*models.DayState, error)
	Save(st models.DayState) error
}

// Config is the engine's slice of the bot configuration.
type Config struct {
	Reference string
	Long      string
	Inverse   string // empty: no inverse trade on a down signal
	Quantity  int64

	Open, Entry, Exit schedule.Checkpoint

	OpenSettleDelay   time.Duration
	ConnectRetries    int
	ConnectRetryDelay time.Duration
	MaxClockDrift     time.Duration
	RunOnWeekends     bool
	CheckHolidays     bool
	CallTimeout       time.Duration
}

// TrackedSymbols lists reference, long and inverse once each.
func (c Config) TrackedSymbols() []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range []string{c.Reference, c.Long, c.Inverse} {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Deps are the collaborators the engine drives.
type Deps struct {
	Waiter   Waiter
	Oracle   PriceOracle
	Ledger   Ledger
	Executor Executor
	Session  Session
	Store    StateStore
	Sink     report.Sink
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	RunID    string
}

// Result is how a run ended.
type Result struct {
	State    State
	ExitCode int
	Summary  *models.DaySummary
	Err      error
}

// Engine runs one trading day. It is not reusable across days.
type Engine struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	state   State
	outcome string
	day     *TradingDay
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.ConnectRetries < 1 {
		cfg.ConnectRetries = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Console{}
	}
	return &Engine{cfg: cfg, deps: deps}
}

type step struct {
	waiting State
	done    State
	cp      schedule.Checkpoint
	handler func(context.Context)
}

// Run drives the day from INIT to DONE or CANCELLED. Cancelling ctx moves
// the engine to CANCELLED within one scheduler tick; a summary is still
// written.
func (e *Engine) Run(ctx context.Context) Result {
	now := e.deps.Waiter.Now()
	e.mu.Lock()
	e.day = NewTradingDay(now)
	e.mu.Unlock()
	e.setState(Init)
	log.Printf("Starting trading day %s (run %s)", e.day.Date, e.deps.RunID)

	if err := e.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return e.cancel(ctx, "cancelled during startup", ExitOK)
		}
		log.Printf("CRITICAL: broker connectivity check failed: %v", err)
		notify.Send(ctx, e.deps.Notifier, notify.Event{
			Title:    "Bot failed to start",
			Body:     err.Error(),
			Severity: notify.Critical,
		})
		return Result{State: Init, ExitCode: ExitFatal, Err: err}
	}

	if done := e.restore(); done {
		log.Printf("Trading day %s already completed, nothing to do", e.day.Date)
		e.setState(Done)
		return Result{State: Done, ExitCode: ExitOK}
	}
	e.checkClockDrift(ctx)

	if skip, reason := e.shouldSkip(ctx, now); skip {
		log.Printf("Skipping trading day %s: %s", e.day.Date, reason)
		e.setOutcome(reason)
		notify.Send(ctx, e.deps.Notifier, notify.Event{Title: "No trading today", Body: reason})
		return e.finish(ctx)
	}

	steps := []step{
		{AwaitOpen, OpenCaptured, e.cfg.Open, e.captureOpen},
		{AwaitEntry, EntryDecided, e.cfg.Entry, e.decideEntry},
		{AwaitExit, PositionsClosed, e.cfg.Exit, e.closePositions},
	}
	for _, st := range steps {
		e.setState(st.waiting)
		e.persist()

		outcome := e.deps.Waiter.WaitUntil(ctx, st.cp)
		e.deps.Metrics.Checkpoint(string(st.cp.Role), outcome.String())
		switch outcome {
		case schedule.Cancelled:
			return e.cancel(ctx, "cancelled by operator", ExitOK)
		case schedule.Skipped:
			log.Printf("Warning: %s at %s skipped", st.cp.Role, st.cp)
			if st.cp.Role == schedule.ExitClose {
				e.warnOpenPositions(ctx)
			}
		case schedule.Reached:
			if err := e.runHandler(ctx, st); err != nil {
				notify.Send(context.WithoutCancel(ctx), e.deps.Notifier, notify.Event{
					Title:    "Bot fault",
					Body:     fmt.Sprintf("%v. Check open positions manually.", err),
					Severity: notify.Critical,
				})
				res := e.cancel(ctx, err.Error(), ExitFault)
				res.Err = err
				return res
			}
		}

		if ctx.Err() != nil {
			return e.cancel(ctx, "cancelled by operator", ExitOK)
		}
		e.setState(st.done)
		e.persist()
	}
	return e.finish(ctx)
}

// runHandler runs one checkpoint action and converts a panic into an error.
func (e *Engine) runHandler(ctx context.Context, st step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s handler: %v", st.cp.Role, r)
			log.Printf("CRITICAL: %v\n%s", err, debug.Stack())
		}
	}()
	st.handler(ctx)
	return nil
}

// connect verifies the broker session with bounded retries.
func (e *Engine) connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.ConnectRetries; attempt++ {
		acct, err := e.deps.Ledger.Account(ctx)
		if err == nil {
			if acct.IsAccountBlocked || acct.IsTradingBlocked {
				return fmt.Errorf("account %s is blocked from trading", acct.ID)
			}
			log.Printf("Connected to broker. Equity: $%s, buying power: $%s",
				acct.Equity.StringFixed(2), acct.BuyingPower.StringFixed(2))
			return nil
		}
		lastErr = err
		log.Printf("Warning: broker connection attempt %d/%d failed: %v", attempt, e.cfg.ConnectRetries, err)
		if attempt < e.cfg.ConnectRetries {
			if err := schedule.Sleep(ctx, e.cfg.ConnectRetryDelay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("broker unreachable after %d attempts: %w", e.cfg.ConnectRetries, lastErr)
}

// restore loads today's persisted progress. It returns true when the day
// already ran to completion.
func (e *Engine) restore() bool {
	if e.deps.Store == nil {
		return false
	}
	st, err := e.deps.Store.Load(e.day.Date)
	if err != nil {
		log.Printf("Warning: could not load day-state, starting fresh: %v", err)
		return false
	}
	if st == nil {
		return false
	}
	if State(st.State) == Done || State(st.State) == Summarized {
		return true
	}
	e.day.restore(st)
	log.Printf("Resumed day-state for %s from state %s (%d trades)", st.Date, st.State, len(st.Trades))
	return false
}

func (e *Engine) checkClockDrift(ctx context.Context) {
	if e.deps.Session == nil || e.cfg.MaxClockDrift <= 0 {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	clock, err := e.deps.Session.Clock(cctx)
	if err != nil {
		log.Printf("Warning: could not read broker clock: %v", err)
		return
	}
	drift := e.deps.Waiter.Now().Sub(clock.Timestamp)
	if drift < 0 {
		drift = -drift
	}
	if drift > e.cfg.MaxClockDrift {
		msg := fmt.Sprintf("local clock differs from broker by %s", drift.Round(time.Millisecond))
		log.Printf("Warning: %s", msg)
		notify.Send(ctx, e.deps.Notifier, notify.Event{Title: "Clock drift", Body: msg})
	}
}

func (e *Engine) shouldSkip(ctx context.Context, now time.Time) (bool, string) {
	if wd := now.Weekday(); !e.cfg.RunOnWeekends && (wd == time.Saturday || wd == time.Sunday) {
		return true, fmt.Sprintf("%s is a weekend", wd)
	}
	if !e.cfg.CheckHolidays || e.deps.Session == nil {
		return false, ""
	}
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	open, err := e.deps.Session.IsTradingDay(cctx, now)
	if err != nil {
		log.Printf("Warning: market calendar unavailable, assuming a trading day: %v", err)
		return false, ""
	}
	if !open {
		return true, "market is closed today (holiday)"
	}
	return false, ""
}

// cancel moves to CANCELLED and still attempts the summary.
func (e *Engine) cancel(ctx context.Context, reason string, code int) Result {
	from := e.State()
	log.Printf("Warning: run cancelled in state %s: %s", from, reason)
	e.setOutcome(reason)
	e.setState(Cancelled)
	e.day.MarkTerminal()
	e.persist()

	sev := notify.Normal
	if code != ExitOK {
		sev = notify.Critical
	}
	notify.Send(context.WithoutCancel(ctx), e.deps.Notifier, notify.Event{
		Title:    "Bot Shutdown",
		Body:     fmt.Sprintf("Stopped in %s on %s: %s", from, e.day.Date, reason),
		Severity: sev,
	})

	summary := e.summarize(ctx, Cancelled)
	return Result{State: Cancelled, ExitCode: code, Summary: &summary}
}

// finish writes the summary and walks SUMMARIZED -> DONE.
func (e *Engine) finish(ctx context.Context) Result {
	summary := e.summarize(ctx, Done)
	e.setState(Summarized)
	e.day.MarkTerminal()
	e.setState(Done)
	e.persist()
	return Result{State: Done, ExitCode: ExitOK, Summary: &summary}
}

// summarize builds the day summary and hands it to the sink and notifier.
// It runs on a context detached from cancellation so a stopped run still
// reports.
func (e *Engine) summarize(ctx context.Context, final State) models.DaySummary {
	ctx = context.WithoutCancel(ctx)

	symbol, signal := e.day.Chosen()
	summary := models.DaySummary{
		RunID:         e.deps.RunID,
		Date:          e.day.Date,
		CapturedOpen:  e.day.CapturedOpen(),
		DecisionPrice: e.day.DecisionPrice(),
		Reference:     e.cfg.Reference,
		Chosen:        symbol,
		Signal:        signal,
		Trades:        e.day.Trades(),
		FinalState:    string(final),
		Outcome:       e.Outcome(),
		GeneratedAt:   e.deps.Waiter.Now(),
	}

	actx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	acct, err := e.deps.Ledger.Account(actx)
	cancel()
	if err != nil {
		log.Printf("Warning: account snapshot unavailable for summary: %v", err)
	} else {
		summary.Account = acct
	}

	if e.deps.Sink != nil {
		if err := e.deps.Sink.Write(ctx, summary); err != nil {
			log.Printf("Warning: summary not fully written: %v", err)
		}
	}
	log.Printf("Daily summary:\n%s", report.Render(summary))
	notify.Send(ctx, e.deps.Notifier, notify.Event{Title: "Daily Summary", Body: report.Render(summary)})
	return summary
}

func (e *Engine) persist() {
	if e.deps.Store == nil {
		return
	}
	st := e.day.snapshot(e.deps.RunID, e.State())
	st.UpdatedAt = e.deps.Waiter.Now()
	if err := e.deps.Store.Save(st); err != nil {
		log.Printf("Warning: day-state not saved: %v", err)
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()
	if prev != s {
		log.Printf("State: %s -> %s", prev, s)
	}
	e.deps.Metrics.SetState(string(prev), string(s))
}

// State returns the current state. Safe for concurrent use.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setOutcome(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outcome = s
}

// Outcome is a one-line description of how the day went so far.
func (e *Engine) Outcome() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}
