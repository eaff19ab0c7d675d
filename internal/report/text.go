package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"etf_momentum/internal/models"
)

// TextSink writes trade_summary_YYYYMMDD.txt.
type TextSink struct {
	Dir string
}

func NewTextSink(dir string) *TextSink { return &TextSink{Dir: dir} }

func (t *TextSink) Name() string { return "text" }

func (t *TextSink) Write(_ context.Context, s models.DaySummary) error {
	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(t.Dir, fmt.Sprintf("trade_summary_%s.txt", fileDate(s.Date)))
	return os.WriteFile(path, []byte(Render(s)), 0o644)
}

// Render formats the summary for humans. It is also the body of the
// end-of-day notification.
func Render(s models.DaySummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Momentum Bot - Daily Summary\n", s.Reference)
	fmt.Fprintf(&sb, "Date: %s\n", s.Date)
	sb.WriteString(strings.Repeat("=", 40) + "\n\n")

	sb.WriteString("Market Data:\n")
	if s.CapturedOpen != nil {
		fmt.Fprintf(&sb, "  Open Price: $%s\n", s.CapturedOpen.StringFixed(2))
	} else {
		sb.WriteString("  Open Price: Not captured\n")
	}
	if s.DecisionPrice != nil {
		fmt.Fprintf(&sb, "  Decision Price: $%s\n", s.DecisionPrice.StringFixed(2))
	} else {
		sb.WriteString("  Decision Price: Not captured\n")
	}
	if change, pct, ok := s.PriceChange(); ok {
		sign := ""
		if pct.IsPositive() {
			sign = "+"
		}
		fmt.Fprintf(&sb, "  Price Change: $%s (%s%s%%)\n", change.StringFixed(2), sign, pct.StringFixed(2))
	}
	if s.Signal != "" {
		fmt.Fprintf(&sb, "  Signal: %s\n", s.Signal)
	}

	fmt.Fprintf(&sb, "\nTrades Executed: %d\n", len(s.Trades))
	for i, tr := range s.Trades {
		fmt.Fprintf(&sb, "\nTrade %d:\n", i+1)
		fmt.Fprintf(&sb, "  Time: %s\n", tr.Time.Format("15:04:05 MST"))
		fmt.Fprintf(&sb, "  Action: %s\n", tr.Action)
		fmt.Fprintf(&sb, "  Symbol: %s\n", tr.Symbol)
		fmt.Fprintf(&sb, "  Quantity: %d\n", tr.Quantity)
		if tr.PriceSource == models.PriceUnknown || tr.Price.IsZero() {
			sb.WriteString("  Price: N/A\n")
		} else {
			fmt.Fprintf(&sb, "  Price: $%s (%s)\n", tr.Price.StringFixed(2), tr.PriceSource)
		}
		if tr.OrderID != "" {
			fmt.Fprintf(&sb, "  Order: %s\n", tr.OrderID)
		}
	}

	if s.Account != nil {
		sb.WriteString("\nAccount Status:\n")
		fmt.Fprintf(&sb, "  Buying Power: $%s\n", s.Account.BuyingPower.StringFixed(2))
		fmt.Fprintf(&sb, "  Portfolio Value: $%s\n", s.Account.PortfolioValue.StringFixed(2))
	}

	fmt.Fprintf(&sb, "\nFinal State: %s\n", s.FinalState)
	if s.Outcome != "" {
		fmt.Fprintf(&sb, "Outcome: %s\n", s.Outcome)
	}
	return sb.String()
}
