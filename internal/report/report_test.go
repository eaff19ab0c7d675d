package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"etf_momentum/internal/metrics"
	"etf_momentum/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSummary() models.DaySummary {
	open := decimal.RequireFromString("45.00")
	decision := decimal.RequireFromString("46.00")
	at := time.Date(2024, 7, 1, 7, 0, 5, 0, time.UTC)
	return models.DaySummary{
		RunID:         "01J1RUN",
		Date:          "2024-07-01",
		CapturedOpen:  &open,
		DecisionPrice: &decision,
		Reference:     "TQQQ",
		Chosen:        "TQQQ",
		Signal:        "BUY TQQQ",
		Trades: []models.TradeRecord{
			{ID: "T1", Time: at, Action: models.Buy, Symbol: "TQQQ", Quantity: 1, Price: decimal.RequireFromString("46.02"), PriceSource: models.PriceFromFill, OrderID: "o1", ClientOrderID: "mom-20240701-entry-TQQQ"},
			{ID: "T2", Time: at.Add(6 * time.Hour), Action: models.Sell, Symbol: "TQQQ", Quantity: 1, Price: decimal.Zero, PriceSource: models.PriceUnknown, OrderID: "o2"},
		},
		Account:     &models.Account{Equity: decimal.NewFromInt(10000), BuyingPower: decimal.NewFromInt(20000), PortfolioValue: decimal.NewFromInt(10000)},
		FinalState:  "DONE",
		Outcome:     "closed 1 position",
		GeneratedAt: at.Add(7 * time.Hour),
	}
}

func TestRender(t *testing.T) {
	out := Render(sampleSummary())
	assert.Contains(t, out, "Open Price: $45.00")
	assert.Contains(t, out, "Decision Price: $46.00")
	assert.Contains(t, out, "Price Change: $1.00 (+2.22%)")
	assert.Contains(t, out, "Trades Executed: 2")
	assert.Contains(t, out, "Price: $46.02 (fill)")
	assert.Contains(t, out, "Price: N/A")
	assert.Contains(t, out, "Portfolio Value: $10000.00")
}

func TestRenderMissingPrices(t *testing.T) {
	out := Render(models.DaySummary{Date: "2024-07-01", Reference: "TQQQ", FinalState: "CANCELLED"})
	assert.Contains(t, out, "Open Price: Not captured")
	assert.Contains(t, out, "Decision Price: Not captured")
	assert.NotContains(t, out, "Price Change")
	assert.Contains(t, out, "Final State: CANCELLED")
}

func TestBuildAllWritesFiles(t *testing.T) {
	dir := t.TempDir()
	sinks, err := Build("all", dir, filepath.Join(dir, "journal.db"), nil)
	require.NoError(t, err)
	defer sinks.Close()

	require.NoError(t, sinks.Write(context.Background(), sampleSummary()))

	_, err = os.Stat(filepath.Join(dir, "trade_summary_20240701.txt"))
	assert.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "trade_data_20240701.json"))
	require.NoError(t, err)
	var decoded models.DaySummary
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "TQQQ", decoded.Chosen)
	assert.Len(t, decoded.Trades, 2)
	assert.True(t, decoded.CapturedOpen.Equal(decimal.NewFromInt(45)))
}

func TestBuildUnknownFormat(t *testing.T) {
	_, err := Build("xml", t.TempDir(), "", nil)
	assert.Error(t, err)
	assert.False(t, ValidFormat("xml"))
	assert.True(t, ValidFormat("BOTH"))
}

func TestCSVAppendsWithSingleHeader(t *testing.T) {
	dir := t.TempDir()
	sink := NewCSVSink(dir)
	s := sampleSummary()

	require.NoError(t, sink.Write(context.Background(), s))
	s.Date = "2024-07-02"
	require.NoError(t, sink.Write(context.Background(), s))

	f, err := os.Open(filepath.Join(dir, HistoryFile))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 5)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "2024-07-02", rows[4][0])
	assert.Equal(t, "46.0200", rows[1][7])
}

func TestSQLiteJournalIsIdempotent(t *testing.T) {
	j, err := NewSQLiteJournal(filepath.Join(t.TempDir(), "db", "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	s := sampleSummary()
	require.NoError(t, j.Write(context.Background(), s))
	require.NoError(t, j.Write(context.Background(), s))

	trades, err := j.TradesOn(context.Background(), "2024-07-01")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "T1", trades[0].ID)
	assert.Equal(t, models.Buy, trades[0].Action)
	assert.True(t, trades[0].Price.Equal(decimal.RequireFromString("46.02")))

	var days int
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM days`).Scan(&days))
	assert.Equal(t, 1, days)
}

type brokenSink struct{}

func (brokenSink) Name() string { return "broken" }
func (brokenSink) Write(context.Context, models.DaySummary) error {
	return errors.New("disk full")
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	m := metrics.New()
	multi := NewMulti(m, brokenSink{}, NewJSONSink(dir))

	err := multi.Write(context.Background(), sampleSummary())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, statErr := os.Stat(filepath.Join(dir, "trade_data_20240701.json"))
	assert.NoError(t, statErr)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Summaries.WithLabelValues("broken", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Summaries.WithLabelValues("json", "ok")))
}
