// Package markettest provides an in-memory market.Broker for tests.
package markettest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"etf_momentum/internal/market"
	"etf_momentum/internal/models"

	"github.com/shopspring/decimal"
)

var _ market.Broker = (*FakeBroker)(nil)

// ErrUnavailable is returned by FakeBroker for scripted failures.
var ErrUnavailable = errors.New("fake broker unavailable")

// FakeBroker simulates a broker account. Market orders fill immediately at
// FillPrice (when set) and move the position book, unless RejectOrders is set.
type FakeBroker struct {
	mu sync.Mutex

	// Quotes are consumed front to back per symbol; the last one repeats.
	Quotes map[string][]*models.Quote
	// QuoteErrs forces n consecutive quote failures for a symbol.
	QuoteErrs map[string]int

	Book         map[string]int64
	FillPrice    map[string]decimal.Decimal
	RejectOrders map[string]error
	// LeaveOpen keeps orders in "accepted" status instead of filling them.
	LeaveOpen bool

	AccountErr   error
	PositionsErr error
	Closed       bool // IsTradingDay result is inverted when set
	Now          time.Time

	Placed      []models.OrderRequest
	QuoteCalls  map[string]int
	orders      map[string]*models.Order
	byClientID  map[string]*models.Order
	accountHits int
	seq         int
}

// New returns a FakeBroker with empty books.
func New() *FakeBroker {
	return &FakeBroker{
		Quotes:       map[string][]*models.Quote{},
		QuoteErrs:    map[string]int{},
		Book:         map[string]int64{},
		FillPrice:    map[string]decimal.Decimal{},
		RejectOrders: map[string]error{},
		QuoteCalls:   map[string]int{},
		orders:       map[string]*models.Order{},
		byClientID:   map[string]*models.Order{},
	}
}

// SetPrices scripts ask-only quotes for symbol, returned in order.
func (f *FakeBroker) SetPrices(symbol string, prices ...float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Quotes[symbol] = nil
	for _, p := range prices {
		f.Quotes[symbol] = append(f.Quotes[symbol], &models.Quote{
			Symbol:   symbol,
			AskPrice: decimal.NewFromFloat(p),
			BidPrice: decimal.NewFromFloat(p),
		})
	}
}

// SetQuote scripts a single bid/ask quote for symbol.
func (f *FakeBroker) SetQuote(symbol string, bid, ask float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Quotes[symbol] = []*models.Quote{{
		Symbol:   symbol,
		BidPrice: decimal.NewFromFloat(bid),
		AskPrice: decimal.NewFromFloat(ask),
	}}
}

func (f *FakeBroker) Account(ctx context.Context) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accountHits++
	if f.AccountErr != nil {
		return nil, f.AccountErr
	}
	return &models.Account{
		ID:             "fake",
		Currency:       "USD",
		Equity:         decimal.NewFromInt(10000),
		BuyingPower:    decimal.NewFromInt(20000),
		Cash:           decimal.NewFromInt(10000),
		PortfolioValue: decimal.NewFromInt(10000),
	}, nil
}

// AccountCalls returns how many times Account was called.
func (f *FakeBroker) AccountCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accountHits
}

func (f *FakeBroker) LatestQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.QuoteCalls[symbol]++
	if n := f.QuoteErrs[symbol]; n > 0 {
		f.QuoteErrs[symbol] = n - 1
		return nil, ErrUnavailable
	}
	qs := f.Quotes[symbol]
	if len(qs) == 0 {
		return nil, fmt.Errorf("no quote found for %s", symbol)
	}
	q := qs[0]
	if len(qs) > 1 {
		f.Quotes[symbol] = qs[1:]
	}
	cp := *q
	return &cp, nil
}

func (f *FakeBroker) Positions(ctx context.Context) ([]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PositionsErr != nil {
		return nil, f.PositionsErr
	}
	var out []models.Position
	for sym, qty := range f.Book {
		if qty != 0 {
			out = append(out, models.Position{Symbol: sym, Qty: qty})
		}
	}
	return out, nil
}

func (f *FakeBroker) PlaceMarketOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.RejectOrders[req.Symbol]; err != nil {
		return nil, err
	}
	if req.ClientOrderID != "" {
		if _, dup := f.byClientID[req.ClientOrderID]; dup {
			return nil, fmt.Errorf("client_order_id must be unique")
		}
	}
	f.Placed = append(f.Placed, req)
	f.seq++

	o := &models.Order{
		ID:            fmt.Sprintf("order-%d", f.seq),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Qty:           decimal.NewFromInt(req.Qty),
		Side:          req.Side,
		Status:        "accepted",
		CreatedAt:     f.Now,
	}
	if !f.LeaveOpen {
		o.Status = "filled"
		o.FilledQty = o.Qty
		if p, ok := f.FillPrice[req.Symbol]; ok {
			o.FilledAvgPrice = p
		}
		if req.Side == models.Buy {
			f.Book[req.Symbol] += req.Qty
		} else {
			f.Book[req.Symbol] -= req.Qty
		}
	}
	f.orders[o.ID] = o
	if req.ClientOrderID != "" {
		f.byClientID[req.ClientOrderID] = o
	}
	cp := *o
	return &cp, nil
}

func (f *FakeBroker) Order(ctx context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}
	cp := *o
	return &cp, nil
}

func (f *FakeBroker) OrderByClientID(ctx context.Context, clientOrderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byClientID[clientOrderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

// SetOrderStatus changes the status of a previously placed order.
func (f *FakeBroker) SetOrderStatus(orderID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok {
		o.Status = status
	}
}

func (f *FakeBroker) Clock(ctx context.Context) (*models.Clock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &models.Clock{Timestamp: now, IsOpen: true}, nil
}

func (f *FakeBroker) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Closed, nil
}

// PlacedOrders returns a copy of the submitted order requests.
func (f *FakeBroker) PlacedOrders() []models.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderRequest(nil), f.Placed...)
}
