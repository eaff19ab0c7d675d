package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"etf_momentum/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLiteJournal records every day and trade in a SQLite database.
// Decimals are stored as text to keep exact values.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Name() string { return "sqlite" }

// Write upserts the day row and its trades in one transaction, so writing
// the same summary twice leaves one copy.
func (j *SQLiteJournal) Write(ctx context.Context, s models.DaySummary) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var equity sql.NullString
	if s.Account != nil {
		equity = sql.NullString{String: s.Account.Equity.String(), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO days
		(run_id, date, reference_symbol, captured_open, decision_price, chosen_symbol, signal, final_state, outcome, equity, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Date, s.Reference, nullDecimal(s.CapturedOpen), nullDecimal(s.DecisionPrice),
		s.Chosen, s.Signal, s.FinalState, s.Outcome, equity, s.GeneratedAt,
	); err != nil {
		return fmt.Errorf("insert day: %w", err)
	}

	for _, tr := range s.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO trades
			(trade_id, run_id, date, time, action, symbol, quantity, price, price_source, order_id, client_order_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tr.ID, s.RunID, s.Date, tr.Time, string(tr.Action), tr.Symbol, tr.Quantity,
			tr.Price.String(), tr.PriceSource, tr.OrderID, tr.ClientOrderID,
		); err != nil {
			return fmt.Errorf("insert trade %s: %w", tr.ID, err)
		}
	}
	return tx.Commit()
}

// TradesOn returns the journaled trades for date, oldest first.
func (j *SQLiteJournal) TradesOn(ctx context.Context, date string) ([]models.TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT trade_id, time, action, symbol, quantity, price, price_source, order_id, client_order_id
		FROM trades WHERE date = ? ORDER BY time, trade_id`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var (
			tr     models.TradeRecord
			action string
			price  string
		)
		if err := rows.Scan(&tr.ID, &tr.Time, &action, &tr.Symbol, &tr.Quantity, &price, &tr.PriceSource, &tr.OrderID, &tr.ClientOrderID); err != nil {
			return nil, err
		}
		tr.Action = models.Side(action)
		if tr.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", tr.ID, err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}
