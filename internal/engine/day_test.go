package engine

import (
	"context"
	"testing"
	"time"

	"etf_momentum/internal/models"
	"etf_momentum/internal/schedule"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name       string
		open, now  string
		inverse    string
		wantSymbol string
		wantSignal string
	}{
		{"rise buys long", "45", "46", "SQQQ", "TQQQ", "BUY TQQQ"},
		{"fall buys inverse", "45", "44", "SQQQ", "SQQQ", "BUY SQQQ"},
		{"tie buys inverse", "45.00", "45", "SQQQ", "SQQQ", "BUY SQQQ"},
		{"fall without inverse", "45", "44", "", "", "NO ACTION"},
		{"tie without inverse", "45", "45", "", "", "NO ACTION"},
		{"one cent rise", "45.00", "45.01", "", "TQQQ", "BUY TQQQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			symbol, signal := Decide(d(tt.open), d(tt.now), "TQQQ", tt.inverse)
			assert.Equal(t, tt.wantSymbol, symbol)
			assert.Equal(t, tt.wantSignal, signal)
		})
	}
}

func TestTradingDaySetOnce(t *testing.T) {
	day := NewTradingDay(time.Date(2024, 7, 1, 6, 30, 0, 0, time.UTC))
	assert.Equal(t, "2024-07-01", day.Date)

	require.NoError(t, day.SetCapturedOpen(decimal.NewFromInt(45)))
	assert.ErrorIs(t, day.SetCapturedOpen(decimal.NewFromInt(50)), ErrAlreadySet)
	assert.True(t, day.CapturedOpen().Equal(decimal.NewFromInt(45)))

	require.NoError(t, day.SetDecisionPrice(decimal.NewFromInt(46)))
	assert.ErrorIs(t, day.SetDecisionPrice(decimal.NewFromInt(47)), ErrAlreadySet)

	require.NoError(t, day.SetChosen("", "NO ACTION"))
	assert.ErrorIs(t, day.SetChosen("TQQQ", "BUY TQQQ"), ErrAlreadySet)

	assert.True(t, day.MarkEntryAttempted())
	assert.False(t, day.MarkEntryAttempted())
}

func TestTradingDayTradesAreCopied(t *testing.T) {
	day := NewTradingDay(time.Now())
	day.AddTrade(models.TradeRecord{ID: "a", Symbol: "TQQQ"})

	trades := day.Trades()
	trades[0].Symbol = "changed"
	assert.Equal(t, "TQQQ", day.Trades()[0].Symbol)

	p := day.CapturedOpen()
	assert.Nil(t, p)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	day := NewTradingDay(time.Date(2024, 7, 1, 6, 30, 0, 0, time.UTC))
	require.NoError(t, day.SetCapturedOpen(decimal.NewFromInt(45)))
	require.NoError(t, day.SetChosen("TQQQ", "BUY TQQQ"))
	day.MarkEntryAttempted()
	day.AddTrade(models.TradeRecord{ID: "a"})

	st := day.snapshot("run", AwaitExit)
	restored := NewTradingDay(time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC))
	restored.restore(&st)

	assert.ErrorIs(t, restored.SetCapturedOpen(decimal.NewFromInt(1)), ErrAlreadySet)
	assert.ErrorIs(t, restored.SetChosen("SQQQ", "x"), ErrAlreadySet)
	assert.False(t, restored.MarkEntryAttempted())
	assert.Len(t, restored.Trades(), 1)
}

func TestCommandHandler(t *testing.T) {
	h := newHarness(t)
	e := h.engine()
	stopped := false
	handle := e.CommandHandler([]string{"quantity=1"}, func() { stopped = true })
	ctx := context.Background()

	assert.Contains(t, handle(ctx, "/ping"), "Pong")
	assert.Contains(t, handle(ctx, "/config"), "quantity=1")
	assert.Contains(t, handle(ctx, "/status@MomentumBot"), "Trades: 0")
	assert.Contains(t, handle(ctx, "/nope"), "Unknown command")

	assert.Contains(t, handle(ctx, "/stop"), "Stop requested")
	assert.True(t, stopped)
}

func TestStatusDuringRun(t *testing.T) {
	h := newHarness(t)
	h.broker.SetPrices("TQQQ", 45, 46)
	e := h.engine()

	var seen Status
	h.waiter.before[schedule.ExitClose] = func() { seen = e.Status() }
	e.Run(context.Background())

	assert.Equal(t, AwaitExit, seen.State)
	assert.Equal(t, "BUY TQQQ", seen.Signal)
	assert.Len(t, seen.Trades, 1)
	assert.Contains(t, formatStatus(seen), "BUY 1 TQQQ @ $46.02")
}
