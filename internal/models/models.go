package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price sources recorded on a TradeRecord.
const (
	PriceFromFill  = "fill"  // broker filled_avg_price
	PriceFromQuote = "quote" // best-effort re-quote after submission
	PriceUnknown   = "none"
)

// TradeRecord is one confirmed order submission.
//
// Records are created by the executor and appended to the day's trade list.
// They are never mutated afterwards; the list is the day's audit trail.
type TradeRecord struct {
	ID            string          `json:"id"`
	Time          time.Time       `json:"time"`
	Action        Side            `json:"action"`
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	PriceSource   string          `json:"price_source"`
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
}

// DaySummary is the structured end-of-day record handed to the reporting sinks.
type DaySummary struct {
	RunID         string           `json:"run_id"`
	Date          string           `json:"date"` // YYYY-MM-DD in the trading time zone
	CapturedOpen  *decimal.Decimal `json:"captured_open"`
	DecisionPrice *decimal.Decimal `json:"decision_price"`
	Reference     string           `json:"reference_symbol"`
	Chosen        string           `json:"chosen_symbol,omitempty"`
	Signal        string           `json:"signal,omitempty"`
	Trades        []TradeRecord    `json:"trades"`
	Account       *Account         `json:"account,omitempty"`
	FinalState    string           `json:"final_state"`
	Outcome       string           `json:"outcome"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// PriceChange returns decision - open and the percentage move, if both prices exist.
func (s DaySummary) PriceChange() (decimal.Decimal, decimal.Decimal, bool) {
	if s.CapturedOpen == nil || s.DecisionPrice == nil || s.CapturedOpen.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}
	change := s.DecisionPrice.Sub(*s.CapturedOpen)
	pct := change.Div(*s.CapturedOpen).Mul(decimal.NewFromInt(100))
	return change, pct, true
}

// DayStateVersion is the current on-disk schema of DayState.
const DayStateVersion = "1.1"

// DayState is the persisted progress of one trading day. It lets a restarted
// process resume without repeating the open capture or the entry decision.
type DayState struct {
	Version        string           `json:"version"`
	Date           string           `json:"date"`
	RunID          string           `json:"run_id"`
	State          string           `json:"state"`
	CapturedOpen   *decimal.Decimal `json:"captured_open,omitempty"`
	DecisionPrice  *decimal.Decimal `json:"decision_price,omitempty"`
	Chosen         string           `json:"chosen_symbol,omitempty"`
	Signal         string           `json:"signal,omitempty"`
	EntryAttempted bool             `json:"entry_attempted"`
	ExitAttempted  bool             `json:"exit_attempted"`
	Trades         []TradeRecord    `json:"trades"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
