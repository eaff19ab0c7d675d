package report

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"etf_momentum/internal/models"
)

// HistoryFile is the CSV trade history appended to every day.
const HistoryFile = "trade_history.csv"

var csvHeader = []string{"date", "run_id", "trade_id", "time", "action", "symbol", "quantity", "price", "price_source", "order_id", "client_order_id"}

// CSVSink appends one row per trade to trade_history.csv.
type CSVSink struct {
	Dir string
}

func NewCSVSink(dir string) *CSVSink { return &CSVSink{Dir: dir} }

func (c *CSVSink) Name() string { return "csv" }

func (c *CSVSink) Write(_ context.Context, s models.DaySummary) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(c.Dir, HistoryFile)

	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, tr := range s.Trades {
		if err := w.Write([]string{
			s.Date,
			s.RunID,
			tr.ID,
			tr.Time.Format(time.RFC3339),
			string(tr.Action),
			tr.Symbol,
			strconv.FormatInt(tr.Quantity, 10),
			tr.Price.StringFixed(4),
			tr.PriceSource,
			tr.OrderID,
			tr.ClientOrderID,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
