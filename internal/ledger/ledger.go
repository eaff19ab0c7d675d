package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"etf_momentum/internal/market"
	"etf_momentum/internal/models"
)

// Ledger answers position questions from the broker. It keeps no cache:
// every query reflects the broker's current view, including fills and
// manual trades made outside this process.
type Ledger struct {
	broker      market.Broker
	callTimeout time.Duration
}

func New(broker market.Broker, callTimeout time.Duration) *Ledger {
	if callTimeout <= 0 || callTimeout > market.MaxCallTimeout {
		callTimeout = market.MaxCallTimeout
	}
	return &Ledger{broker: broker, callTimeout: callTimeout}
}

// GetPosition returns the broker's position in symbol, or nil when there
// is none or its quantity is zero.
func (l *Ledger) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	positions, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if strings.EqualFold(p.Symbol, symbol) && p.Qty != 0 {
			pos := p
			return &pos, nil
		}
	}
	return nil, nil
}

// Positions returns the nonzero positions among symbols, in the order given,
// from a single broker query. Duplicate symbols are reported once.
func (l *Ledger) Positions(ctx context.Context, symbols []string) ([]models.Position, error) {
	positions, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	bySymbol := make(map[string]int64, len(positions))
	for _, p := range positions {
		bySymbol[strings.ToUpper(p.Symbol)] += p.Qty
	}

	seen := make(map[string]bool, len(symbols))
	var out []models.Position
	for _, s := range symbols {
		key := strings.ToUpper(s)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if qty := bySymbol[key]; qty != 0 {
			out = append(out, models.Position{Symbol: s, Qty: qty})
		}
	}
	return out, nil
}

// Account returns the current account snapshot.
func (l *Ledger) Account(ctx context.Context) (*models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()
	acct, err := l.broker.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

func (l *Ledger) fetch(ctx context.Context) ([]models.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()
	positions, err := l.broker.Positions(ctx)
	if errors.Is(err, market.ErrNoPosition) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return positions, nil
}
