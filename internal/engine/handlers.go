package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"etf_momentum/internal/executor"
	"etf_momentum/internal/models"
	"etf_momentum/internal/notify"
	"etf_momentum/internal/schedule"

	"github.com/shopspring/decimal"
)

// captureOpen records the reference price shortly after the open.
func (e *Engine) captureOpen(ctx context.Context) {
	if p := e.day.CapturedOpen(); p != nil {
		log.Printf("Open price already captured today: $%s", p.StringFixed(2))
		return
	}
	if e.cfg.OpenSettleDelay > 0 {
		log.Printf("Waiting %s for opening prices to settle...", e.cfg.OpenSettleDelay)
		if err := schedule.Sleep(ctx, e.cfg.OpenSettleDelay); err != nil {
			return
		}
	}

	price, err := e.deps.Oracle.GetPrice(ctx, e.cfg.Reference)
	if err != nil {
		log.Printf("ERROR: open price for %s not captured: %v", e.cfg.Reference, err)
		notify.Send(ctx, e.deps.Notifier, notify.Event{
			Title: "Open price not captured",
			Body:  fmt.Sprintf("%s: %v. No entry will be made today.", e.cfg.Reference, err),
		})
		return
	}
	if err := e.day.SetCapturedOpen(price); err != nil {
		log.Printf("Warning: open price: %v", err)
		return
	}
	e.persist()
	log.Printf("Open price captured for %s: $%s", e.cfg.Reference, price.StringFixed(2))
	notify.Send(ctx, e.deps.Notifier, notify.Event{
		Title: "Open price captured",
		Body:  fmt.Sprintf("%s @ $%s", e.cfg.Reference, price.StringFixed(2)),
	})
}

// decideEntry applies the momentum rule once per day and places at most one
// opening order.
func (e *Engine) decideEntry(ctx context.Context) {
	if !e.day.MarkEntryAttempted() {
		symbol, signal := e.day.Chosen()
		log.Printf("Entry already decided today (%s %s), not re-evaluating", signal, symbol)
		return
	}
	e.persist()

	if price, err := e.deps.Oracle.GetPrice(ctx, e.cfg.Reference); err != nil {
		log.Printf("ERROR: decision price for %s unavailable: %v", e.cfg.Reference, err)
	} else if err := e.day.SetDecisionPrice(price); err != nil {
		log.Printf("Warning: decision price: %v", err)
	}

	open, current := e.day.CapturedOpen(), e.day.DecisionPrice()
	if open == nil || current == nil {
		reason := "open price missing"
		if current == nil {
			reason = "decision price missing"
		}
		e.chose("", "NO SIGNAL")
		e.setOutcome("no entry: " + reason)
		notify.Send(ctx, e.deps.Notifier, notify.Event{
			Title: "StrategyError",
			Body:  fmt.Sprintf("Cannot evaluate entry for %s: %s. No order placed.", e.cfg.Reference, reason),
		})
		return
	}

	symbol, signal := Decide(*open, *current, e.cfg.Long, e.cfg.Inverse)
	change := current.Sub(*open)
	log.Printf("Entry decision: open $%s, now $%s (change $%s) -> %s",
		open.StringFixed(2), current.StringFixed(2), change.StringFixed(2), signal)
	e.chose(symbol, signal)

	if symbol == "" {
		e.setOutcome("no action: price did not rise and no inverse instrument configured")
		notify.Send(ctx, e.deps.Notifier, notify.Event{
			Title: "No action",
			Body: fmt.Sprintf("%s $%s <= open $%s and no inverse instrument is configured.",
				e.cfg.Reference, current.StringFixed(2), open.StringFixed(2)),
		})
		return
	}

	rec, err := e.deps.Executor.Submit(ctx, executor.Request{
		Date:   e.day.Start,
		Role:   "entry",
		Symbol: symbol,
		Side:   models.Buy,
		Qty:    e.cfg.Quantity,
	})
	if err != nil {
		log.Printf("ERROR: entry order failed: %v", err)
		e.setOutcome(fmt.Sprintf("entry order for %s failed", symbol))
		notify.Send(ctx, e.deps.Notifier, notify.Event{
			Title:    "Entry order failed",
			Body:     fmt.Sprintf("%v. No position opened today.", err),
			Severity: notify.Critical,
		})
		return
	}
	e.day.AddTrade(rec)
	e.setOutcome(fmt.Sprintf("entered %s", symbol))
	e.persist()
}

// Decide is the momentum rule: a rise since the open buys the long
// instrument, anything else buys the inverse. With no inverse configured a
// non-rise yields an empty symbol.
func Decide(open, current decimal.Decimal, long, inverse string) (symbol, signal string) {
	if current.GreaterThan(open) {
		return long, "BUY " + long
	}
	if inverse == "" {
		return "", "NO ACTION"
	}
	return inverse, "BUY " + inverse
}

func (e *Engine) chose(symbol, signal string) {
	if err := e.day.SetChosen(symbol, signal); err != nil {
		log.Printf("Warning: chosen instrument: %v", err)
	}
	e.persist()
}

// closePositions flattens every tracked symbol using the broker's quantity,
// which may differ from what this process bought.
func (e *Engine) closePositions(ctx context.Context) {
	e.day.MarkExitAttempted()
	e.persist()

	positions, err := e.deps.Ledger.Positions(ctx, e.cfg.TrackedSymbols())
	if err != nil {
		log.Printf("CRITICAL: cannot read positions at exit: %v", err)
		e.setOutcome("exit failed: positions unavailable")
		notify.Send(ctx, e.deps.Notifier, notify.Event{
			Title:    "Exit failed",
			Body:     fmt.Sprintf("Could not read positions for %s: %v. Positions may remain open overnight.", strings.Join(e.cfg.TrackedSymbols(), ", "), err),
			Severity: notify.Critical,
		})
		return
	}
	if len(positions) == 0 {
		log.Println("No open positions to close")
		switch prev := e.Outcome(); {
		case prev == "" || strings.HasPrefix(prev, "entered"):
			e.setOutcome("no position to close")
		default:
			e.setOutcome(prev + "; no position to close")
		}
		notify.Send(ctx, e.deps.Notifier, notify.Event{Title: "No position", Body: "No open positions at exit."})
		return
	}

	var closed, failed []string
	for _, p := range positions {
		side, qty := models.Sell, p.Qty
		if p.Qty < 0 {
			side, qty = models.Buy, -p.Qty
		}
		log.Printf("Closing %s: %s %d (broker quantity %d)", p.Symbol, side, qty, p.Qty)

		rec, err := e.deps.Executor.Submit(ctx, executor.Request{
			Date:   e.day.Start,
			Role:   "exit",
			Symbol: p.Symbol,
			Side:   side,
			Qty:    qty,
		})
		if err != nil {
			log.Printf("CRITICAL: exit order for %s failed: %v", p.Symbol, err)
			failed = append(failed, p.Symbol)
			notify.Send(ctx, e.deps.Notifier, notify.Event{
				Title:    "Exit failed",
				Body:     fmt.Sprintf("%v. %s position of %d remains open overnight.", err, p.Symbol, p.Qty),
				Severity: notify.Critical,
			})
			continue
		}
		e.day.AddTrade(rec)
		e.persist()
		closed = append(closed, p.Symbol)
		e.reportPnL(ctx, rec)
	}

	switch {
	case len(failed) > 0:
		e.setOutcome(fmt.Sprintf("exit failed for %s", strings.Join(failed, ", ")))
	default:
		e.setOutcome(fmt.Sprintf("closed %s", strings.Join(closed, ", ")))
	}
}

// reportPnL notifies the realized result of a closing SELL when today's
// entry price for the symbol is known.
func (e *Engine) reportPnL(ctx context.Context, sell models.TradeRecord) {
	if sell.Action != models.Sell || !sell.Price.IsPositive() {
		return
	}
	var entry *models.TradeRecord
	for _, tr := range e.day.Trades() {
		if tr.Action == models.Buy && tr.Symbol == sell.Symbol && tr.Price.IsPositive() {
			t := tr
			entry = &t
			break
		}
	}
	if entry == nil {
		return
	}
	qty := decimal.NewFromInt(min(entry.Quantity, sell.Quantity))
	pnl := sell.Price.Sub(entry.Price).Mul(qty)
	pct := sell.Price.Sub(entry.Price).Div(entry.Price).Mul(decimal.NewFromInt(100))

	status := "PROFIT"
	if pnl.IsNegative() {
		status = "LOSS"
	}
	body := fmt.Sprintf("%s: $%s (%s%%)\nSymbol: %s\nBuy: $%s | Sell: $%s",
		status, pnl.Abs().StringFixed(2), pct.StringFixed(2), sell.Symbol,
		entry.Price.StringFixed(2), sell.Price.StringFixed(2))
	log.Printf("P&L for %s: %s", sell.Symbol, strings.ReplaceAll(body, "\n", ", "))
	notify.Send(ctx, e.deps.Notifier, notify.Event{Title: "P&L Report", Body: body})
}

// warnOpenPositions raises an alert when the exit checkpoint was missed
// while tracked positions are still open. A close attempted by an earlier
// process for the same day is reported as incomplete rather than missed.
func (e *Engine) warnOpenPositions(ctx context.Context) {
	attempted := e.day.ExitAttempted()
	positions, err := e.deps.Ledger.Positions(ctx, e.cfg.TrackedSymbols())
	if err != nil {
		log.Printf("Warning: cannot check positions after skipped exit: %v", err)
		return
	}
	if len(positions) == 0 {
		if attempted {
			log.Println("Close already attempted before restart, no positions remain")
			e.setOutcome("positions closed before restart")
		}
		return
	}
	var held []string
	for _, p := range positions {
		held = append(held, fmt.Sprintf("%s %d", p.Symbol, p.Qty))
	}

	title, body := "Exit checkpoint missed",
		fmt.Sprintf("Positions still open: %s. Close them manually.", strings.Join(held, ", "))
	e.setOutcome("exit checkpoint missed")
	if attempted {
		title = "Exit incomplete"
		body = fmt.Sprintf("Close was attempted before a restart but positions are still open: %s. Close them manually.",
			strings.Join(held, ", "))
		e.setOutcome("exit attempted before restart, positions still open")
	}
	notify.Send(ctx, e.deps.Notifier, notify.Event{Title: title, Body: body, Severity: notify.Critical})
}
