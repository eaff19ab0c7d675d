package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"etf_momentum/internal/models"
)

// JSONSink writes trade_data_YYYYMMDD.json.
type JSONSink struct {
	Dir string
}

func NewJSONSink(dir string) *JSONSink { return &JSONSink{Dir: dir} }

func (j *JSONSink) Name() string { return "json" }

func (j *JSONSink) Write(_ context.Context, s models.DaySummary) error {
	if err := os.MkdirAll(j.Dir, 0o755); err != nil {
		return err
	}
	if s.Trades == nil {
		s.Trades = []models.TradeRecord{}
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(j.Dir, fmt.Sprintf("trade_data_%s.json", fileDate(s.Date)))
	return os.WriteFile(path, b, 0o644)
}
