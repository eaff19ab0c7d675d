package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"etf_momentum/internal/id"
	"etf_momentum/internal/market"
	"etf_momentum/internal/metrics"
	"etf_momentum/internal/models"
	"etf_momentum/internal/notify"

	"github.com/shopspring/decimal"
)

// ErrPositionLimit is returned when a BUY would take the broker position
// above the configured maximum.
var ErrPositionLimit = errors.New("position limit exceeded")

// OrderError reports a submission the broker did not accept or that ended
// without a fill.
type OrderError struct {
	Symbol string
	Side   models.Side
	Qty    int64
	Cause  error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("%s %d %s: %v", e.Side, e.Qty, e.Symbol, e.Cause)
}

func (e *OrderError) Unwrap() error { return e.Cause }

// PriceSource supplies a fallback price when the broker has not reported a fill.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// PositionReader reports the broker's current position in a symbol.
type PositionReader interface {
	GetPosition(ctx context.Context, symbol string) (*models.Position, error)
}

// Options configures an Executor.
type Options struct {
	ClientOrderPrefix string
	// FillWait bounds how long a new order is observed for a fill.
	FillWait     time.Duration
	PollInterval time.Duration
	CallTimeout  time.Duration
	// MaxPositionSize caps the absolute quantity a BUY may reach. 0 disables the check.
	MaxPositionSize int64
}

// Request is one order the engine wants placed.
type Request struct {
	Date   time.Time // trading day, used in the client order ID
	Role   string    // "entry" or "exit"
	Symbol string
	Side   models.Side
	Qty    int64
}

// ClientOrderID is deterministic per day, role and symbol so a restarted
// process finds the order it already sent.
func (o Options) ClientOrderID(r Request) string {
	prefix := o.ClientOrderPrefix
	if prefix == "" {
		prefix = "mom"
	}
	return fmt.Sprintf("%s-%s-%s-%s", prefix, r.Date.Format("20060102"), strings.ToLower(r.Role), strings.ToUpper(r.Symbol))
}

// Executor submits market orders and turns them into trade records.
// It never retries a submission.
type Executor struct {
	broker    market.Broker
	prices    PriceSource
	positions PositionReader
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time
}

func New(broker market.Broker, prices PriceSource, positions PositionReader, notifier notify.Notifier, m *metrics.Metrics, opts Options) *Executor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.CallTimeout <= 0 || opts.CallTimeout > market.MaxCallTimeout {
		opts.CallTimeout = market.MaxCallTimeout
	}
	return &Executor{
		broker:    broker,
		prices:    prices,
		positions: positions,
		notifier:  notifier,
		metrics:   m,
		opts:      opts,
		now:       time.Now,
	}
}

// Submit places a DAY market order for r and returns its trade record.
//
// If an order with the same client order ID already exists at the broker it
// is adopted instead of submitting a duplicate. The record's price is the
// broker's average fill price when the order fills within FillWait, and a
// fresh quote otherwise.
func (e *Executor) Submit(ctx context.Context, r Request) (models.TradeRecord, error) {
	side := string(r.Side)
	if r.Qty <= 0 {
		return models.TradeRecord{}, &OrderError{Symbol: r.Symbol, Side: r.Side, Qty: r.Qty, Cause: fmt.Errorf("quantity must be positive")}
	}
	clientID := e.opts.ClientOrderID(r)

	order, adopted := e.existing(ctx, clientID)
	if order == nil {
		if err := e.checkLimit(ctx, r); err != nil {
			e.metrics.Order(side, "refused")
			return models.TradeRecord{}, &OrderError{Symbol: r.Symbol, Side: r.Side, Qty: r.Qty, Cause: err}
		}

		log.Printf("Submitting %s %d %s (client id %s)", r.Side, r.Qty, r.Symbol, clientID)
		var err error
		order, err = e.place(ctx, models.OrderRequest{
			Symbol:        r.Symbol,
			Qty:           r.Qty,
			Side:          r.Side,
			ClientOrderID: clientID,
		})
		if err != nil {
			e.metrics.Order(side, "rejected")
			log.Printf("ERROR: order %s %d %s rejected: %v", r.Side, r.Qty, r.Symbol, err)
			return models.TradeRecord{}, &OrderError{Symbol: r.Symbol, Side: r.Side, Qty: r.Qty, Cause: err}
		}
		e.metrics.Order(side, "submitted")
	} else {
		e.metrics.Order(side, "adopted")
	}

	order, err := e.observe(ctx, order)
	if err != nil {
		e.metrics.Order(side, "failed")
		return models.TradeRecord{}, &OrderError{Symbol: r.Symbol, Side: r.Side, Qty: r.Qty, Cause: err}
	}

	rec := models.TradeRecord{
		ID:            id.New(),
		Time:          e.now(),
		Action:        r.Side,
		Symbol:        r.Symbol,
		Quantity:      r.Qty,
		OrderID:       order.ID,
		ClientOrderID: clientID,
	}
	rec.Price, rec.PriceSource = e.fillPrice(ctx, order)

	verb := "Order placed"
	if adopted {
		verb = "Order recovered"
	}
	body := fmt.Sprintf("%s %d %s @ $%s (%s, status %s)", r.Side, r.Qty, r.Symbol, rec.Price.StringFixed(2), rec.PriceSource, order.Status)
	log.Printf("%s: %s", verb, body)
	notify.Send(ctx, e.notifier, notify.Event{Title: verb, Body: body})
	return rec, nil
}

// existing looks up an order already sent under clientID. Lookup failures
// are logged; the broker rejects duplicate client IDs anyway.
func (e *Executor) existing(ctx context.Context, clientID string) (*models.Order, bool) {
	cctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	order, err := e.broker.OrderByClientID(cctx, clientID)
	if err != nil {
		log.Printf("Warning: lookup of client order %s failed: %v", clientID, err)
		return nil, false
	}
	if order == nil {
		return nil, false
	}
	log.Printf("Found existing order %s for %s (status %s), not resubmitting", order.ID, clientID, order.Status)
	return order, true
}

func (e *Executor) checkLimit(ctx context.Context, r Request) error {
	if r.Side != models.Buy || e.opts.MaxPositionSize <= 0 || e.positions == nil {
		return nil
	}
	pos, err := e.positions.GetPosition(ctx, r.Symbol)
	if err != nil {
		return fmt.Errorf("position check: %w", err)
	}
	var current int64
	if pos != nil {
		current = pos.Qty
	}
	if current+r.Qty > e.opts.MaxPositionSize {
		return fmt.Errorf("%w: holding %d, buying %d, max %d", ErrPositionLimit, current, r.Qty, e.opts.MaxPositionSize)
	}
	return nil
}

func (e *Executor) place(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	cctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return e.broker.PlaceMarketOrder(cctx, req)
}

// observe polls the order until it fills, fails, or FillWait elapses.
// A still-working order is not an error.
func (e *Executor) observe(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.IsTerminalFailure() {
		return order, fmt.Errorf("order %s terminated with status %s", order.ID, order.Status)
	}
	deadline := e.now().Add(e.opts.FillWait)
	for !order.IsFilled() && e.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return order, nil
		case <-time.After(e.opts.PollInterval):
		}

		cctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		latest, err := e.broker.Order(cctx, order.ID)
		cancel()
		if err != nil {
			log.Printf("Verification poll failed: %v", err)
			continue
		}
		order = latest
		if order.IsTerminalFailure() {
			return order, fmt.Errorf("order %s terminated with status %s", order.ID, order.Status)
		}
	}
	if !order.IsFilled() {
		log.Printf("Warning: order %s not filled after %s (status %s)", order.ID, e.opts.FillWait, order.Status)
	}
	return order, nil
}

func (e *Executor) fillPrice(ctx context.Context, order *models.Order) (decimal.Decimal, string) {
	if order.IsFilled() && order.FilledAvgPrice.IsPositive() {
		return order.FilledAvgPrice, models.PriceFromFill
	}
	if e.prices == nil {
		return decimal.Zero, models.PriceUnknown
	}
	p, err := e.prices.GetPrice(ctx, order.Symbol)
	if err != nil {
		log.Printf("Warning: no price for %s after order %s: %v", order.Symbol, order.ID, err)
		return decimal.Zero, models.PriceUnknown
	}
	return p, models.PriceFromQuote
}
