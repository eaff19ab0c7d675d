package engine

import (
	"context"
	"fmt"
	"strings"

	"etf_momentum/internal/models"

	"github.com/shopspring/decimal"
)

// Status is a point-in-time view of the engine for operators.
type Status struct {
	RunID         string
	Date          string
	State         State
	CapturedOpen  *decimal.Decimal
	DecisionPrice *decimal.Decimal
	Chosen        string
	Signal        string
	Outcome       string
	Trades        []models.TradeRecord
}

// Status returns a snapshot. Safe to call from other goroutines.
func (e *Engine) Status() Status {
	e.mu.Lock()
	day := e.day
	s := Status{RunID: e.deps.RunID, State: e.state, Outcome: e.outcome}
	e.mu.Unlock()

	if day != nil {
		s.Date = day.Date
		s.CapturedOpen = day.CapturedOpen()
		s.DecisionPrice = day.DecisionPrice()
		s.Chosen, s.Signal = day.Chosen()
		s.Trades = day.Trades()
	}
	return s
}

// CommandHandler answers operator chat commands. stop cancels the run.
func (e *Engine) CommandHandler(configLines []string, stop context.CancelFunc) func(context.Context, string) string {
	return func(_ context.Context, text string) string {
		fields := strings.Fields(text)
		if len(fields) == 0 {
			return ""
		}
		// "/status@MyBot" addresses the bot in group chats
		cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])

		switch cmd {
		case "/ping":
			return fmt.Sprintf("🏓 Pong! State: %s", e.State())
		case "/status":
			return formatStatus(e.Status())
		case "/config":
			return "⚙️ *Configuration*\n```\n" + strings.Join(configLines, "\n") + "\n```"
		case "/stop":
			if e.State().Terminal() {
				return fmt.Sprintf("Run already finished (%s).", e.State())
			}
			stop()
			return "🛑 Stop requested. Remaining checkpoints will be skipped and the summary written."
		case "/help", "/start":
			return "Commands: /ping, /status, /config, /stop"
		}
		return fmt.Sprintf("Unknown command %s. Try /help.", cmd)
	}
}

func formatStatus(s Status) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *Status* %s\n", s.Date)
	fmt.Fprintf(&sb, "State: %s\n", s.State)
	fmt.Fprintf(&sb, "Open: %s\n", priceOrDash(s.CapturedOpen))
	fmt.Fprintf(&sb, "Decision: %s\n", priceOrDash(s.DecisionPrice))
	if s.Signal != "" {
		fmt.Fprintf(&sb, "Signal: %s\n", s.Signal)
	}
	if s.Outcome != "" {
		fmt.Fprintf(&sb, "Outcome: %s\n", s.Outcome)
	}
	fmt.Fprintf(&sb, "Trades: %d", len(s.Trades))
	for _, tr := range s.Trades {
		fmt.Fprintf(&sb, "\n- %s %s %d %s @ $%s", tr.Time.Format("15:04:05"), tr.Action, tr.Quantity, tr.Symbol, tr.Price.StringFixed(2))
	}
	return sb.String()
}

func priceOrDash(p *decimal.Decimal) string {
	if p == nil {
		return "-"
	}
	return "$" + p.StringFixed(2)
}
