package engine

import (
	"errors"
	"sync"
	"time"

	"etf_momentum/internal/models"

	"github.com/shopspring/decimal"
)

// ErrAlreadySet is returned when a set-once field of the trading day is written twice.
var ErrAlreadySet = errors.New("already set for this trading day")

// State is a step of the daily state machine.
type State string

const (
	Init            State = "INIT"
	AwaitOpen       State = "AWAIT_OPEN"
	OpenCaptured    State = "OPEN_CAPTURED"
	AwaitEntry      State = "AWAIT_ENTRY"
	EntryDecided    State = "ENTRY_DECIDED"
	AwaitExit       State = "AWAIT_EXIT"
	PositionsClosed State = "POSITIONS_CLOSED"
	Summarized      State = "SUMMARIZED"
	Done            State = "DONE"
	Cancelled       State = "CANCELLED"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == Done || s == Cancelled
}

// TradingDay is the mutable record of one calendar day. Prices and the
// chosen instrument are written at most once; trades are append-only.
type TradingDay struct {
	mu sync.Mutex

	Date  string // YYYY-MM-DD in the trading zone
	Start time.Time

	capturedOpen   *decimal.Decimal
	decisionPrice  *decimal.Decimal
	chosen         string
	signal         string
	chosenSet      bool
	entryAttempted bool
	exitAttempted  bool
	trades         []models.TradeRecord
	terminal       bool
}

// NewTradingDay starts an empty day for the calendar date of now.
func NewTradingDay(now time.Time) *TradingDay {
	y, m, d := now.Date()
	return &TradingDay{
		Date:  now.Format("2006-01-02"),
		Start: time.Date(y, m, d, 0, 0, 0, 0, now.Location()),
	}
}

func (d *TradingDay) SetCapturedOpen(p decimal.Decimal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.capturedOpen != nil {
		return ErrAlreadySet
	}
	d.capturedOpen = &p
	return nil
}

func (d *TradingDay) CapturedOpen() *decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyDecimal(d.capturedOpen)
}

func (d *TradingDay) SetDecisionPrice(p decimal.Decimal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.decisionPrice != nil {
		return ErrAlreadySet
	}
	d.decisionPrice = &p
	return nil
}

func (d *TradingDay) DecisionPrice() *decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyDecimal(d.decisionPrice)
}

// SetChosen records the instrument picked at entry. An empty symbol means
// the rule picked nothing; signal describes why.
func (d *TradingDay) SetChosen(symbol, signal string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chosenSet {
		return ErrAlreadySet
	}
	d.chosen, d.signal, d.chosenSet = symbol, signal, true
	return nil
}

func (d *TradingDay) Chosen() (symbol, signal string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chosen, d.signal
}

// MarkEntryAttempted returns false if the entry decision already ran today.
func (d *TradingDay) MarkEntryAttempted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.entryAttempted {
		return false
	}
	d.entryAttempted = true
	return true
}

func (d *TradingDay) MarkExitAttempted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exitAttempted = true
}

// ExitAttempted reports whether a close ran for this day, possibly in an
// earlier process.
func (d *TradingDay) ExitAttempted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exitAttempted
}

func (d *TradingDay) AddTrade(tr models.TradeRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trades = append(d.trades, tr)
}

// Trades returns a copy of the day's trade list.
func (d *TradingDay) Trades() []models.TradeRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.TradeRecord(nil), d.trades...)
}

func (d *TradingDay) MarkTerminal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminal = true
}

func (d *TradingDay) Terminal() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terminal
}

// snapshot converts the day to its persisted form.
func (d *TradingDay) snapshot(runID string, state State) models.DayState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.DayState{
		Version:        models.DayStateVersion,
		Date:           d.Date,
		RunID:          runID,
		State:          string(state),
		CapturedOpen:   copyDecimal(d.capturedOpen),
		DecisionPrice:  copyDecimal(d.decisionPrice),
		Chosen:         d.chosen,
		Signal:         d.signal,
		EntryAttempted: d.entryAttempted,
		ExitAttempted:  d.exitAttempted,
		Trades:         append([]models.TradeRecord{}, d.trades...),
	}
}

// restore loads persisted progress into an empty day of the same date.
func (d *TradingDay) restore(st *models.DayState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.capturedOpen = copyDecimal(st.CapturedOpen)
	d.decisionPrice = copyDecimal(st.DecisionPrice)
	d.chosen, d.signal = st.Chosen, st.Signal
	d.chosenSet = st.EntryAttempted && (st.Chosen != "" || st.Signal != "")
	d.entryAttempted = st.EntryAttempted
	d.exitAttempted = st.ExitAttempted
	d.trades = append([]models.TradeRecord(nil), st.Trades...)
}

func copyDecimal(p *decimal.Decimal) *decimal.Decimal {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
