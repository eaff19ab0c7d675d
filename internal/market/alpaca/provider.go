package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"etf_momentum/internal/market"
	"etf_momentum/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

const (
	PaperBaseURL = "https://paper-api.alpaca.markets"
	LiveBaseURL  = "https://api.alpaca.markets"
)

// Options carries the session credentials and per-call bounds.
type Options struct {
	APIKey      string
	APISecret   string
	BaseURL     string
	Feed        string // "iex" or "sip"
	CallTimeout time.Duration
}

// Provider implements market.Broker on top of the Alpaca trading and market data APIs.
// It is built once at startup and passed to every component that needs it.
type Provider struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
	timeout     time.Duration
}

// Ensure Provider implements the interface
var _ market.Broker = (*Provider)(nil)

// NewProvider returns a new Alpaca session.
func NewProvider(opts Options) *Provider {
	timeout := opts.CallTimeout
	if timeout <= 0 || timeout > market.MaxCallTimeout {
		timeout = market.MaxCallTimeout
	}
	// Keep the SDK's own retries short so a call never outlives the ceiling.
	httpClient := &http.Client{Timeout: timeout}
	feed := opts.Feed
	if feed == "" {
		feed = "iex"
	}

	return &Provider{
		mdClient: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     opts.APIKey,
			APISecret:  opts.APISecret,
			Feed:       marketdata.Feed(feed),
			RetryLimit: 1,
			RetryDelay: time.Second,
			HTTPClient: httpClient,
		}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     opts.APIKey,
			APISecret:  opts.APISecret,
			BaseURL:    opts.BaseURL,
			RetryLimit: 1,
			RetryDelay: time.Second,
			HTTPClient: httpClient,
		}),
		timeout: timeout,
	}
}

// --- Market Data ---

func (p *Provider) LatestQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return market.Call(ctx, p.timeout, "latest quote "+symbol, func() (*models.Quote, error) {
		q, err := p.mdClient.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
		if err != nil {
			return nil, err
		}
		if q == nil {
			return nil, fmt.Errorf("no quote found for %s", symbol)
		}
		return &models.Quote{
			Symbol:    symbol,
			BidPrice:  decimal.NewFromFloat(q.BidPrice),
			AskPrice:  decimal.NewFromFloat(q.AskPrice),
			Timestamp: q.Timestamp,
		}, nil
	})
}

// --- Account ---

func (p *Provider) Account(ctx context.Context) (*models.Account, error) {
	return market.Call(ctx, p.timeout, "get account", func() (*models.Account, error) {
		a, err := p.tradeClient.GetAccount()
		if err != nil {
			return nil, err
		}
		return &models.Account{
			ID:               a.ID,
			Currency:         a.Currency,
			Equity:           a.Equity,
			BuyingPower:      a.BuyingPower,
			Cash:             a.Cash,
			PortfolioValue:   a.PortfolioValue,
			IsAccountBlocked: a.AccountBlocked,
			IsTradingBlocked: a.TradingBlocked,
		}, nil
	})
}

func (p *Provider) Clock(ctx context.Context) (*models.Clock, error) {
	return market.Call(ctx, p.timeout, "get clock", func() (*models.Clock, error) {
		c, err := p.tradeClient.GetClock()
		if err != nil {
			return nil, err
		}
		return &models.Clock{
			Timestamp: c.Timestamp,
			IsOpen:    c.IsOpen,
			NextOpen:  c.NextOpen,
			NextClose: c.NextClose,
		}, nil
	})
}

// IsTradingDay asks the broker calendar whether the exchange opens on date.
func (p *Provider) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	return market.Call(ctx, p.timeout, "get calendar", func() (bool, error) {
		day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		days, err := p.tradeClient.GetCalendar(alpaca.GetCalendarRequest{
			Start: day,
			End:   day,
		})
		if err != nil {
			return false, err
		}
		want := day.Format("2006-01-02")
		for _, d := range days {
			if d.Date == want {
				return true, nil
			}
		}
		return false, nil
	})
}

// --- Positions ---

func (p *Provider) Positions(ctx context.Context) ([]models.Position, error) {
	return market.Call(ctx, p.timeout, "list positions", func() ([]models.Position, error) {
		alpacaPositions, err := p.tradeClient.GetPositions()
		if err != nil {
			return nil, err
		}

		result := make([]models.Position, 0, len(alpacaPositions))
		for _, x := range alpacaPositions {
			qty := x.Qty.IntPart()
			// Alpaca reports short quantities as negative, but older payloads only set side.
			if strings.EqualFold(string(x.Side), "short") && qty > 0 {
				qty = -qty
			}
			result = append(result, models.Position{Symbol: x.Symbol, Qty: qty})
		}
		return result, nil
	})
}

// --- Execution ---

func (p *Provider) PlaceMarketOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	return market.Call(ctx, p.timeout, "place order "+req.Symbol, func() (*models.Order, error) {
		qty := decimal.NewFromInt(req.Qty)
		side := alpaca.Buy
		if req.Side == models.Sell {
			side = alpaca.Sell
		}
		o, err := p.tradeClient.PlaceOrder(alpaca.PlaceOrderRequest{
			Symbol:        req.Symbol,
			Qty:           &qty,
			Side:          side,
			Type:          alpaca.Market,
			TimeInForce:   alpaca.Day,
			ClientOrderID: req.ClientOrderID,
		})
		if err != nil {
			return nil, err
		}
		return mapOrder(o), nil
	})
}

func (p *Provider) Order(ctx context.Context, orderID string) (*models.Order, error) {
	return market.Call(ctx, p.timeout, "get order "+orderID, func() (*models.Order, error) {
		o, err := p.tradeClient.GetOrder(orderID)
		if err != nil {
			return nil, err
		}
		return mapOrder(o), nil
	})
}

func (p *Provider) OrderByClientID(ctx context.Context, clientOrderID string) (*models.Order, error) {
	return market.Call(ctx, p.timeout, "get order by client id "+clientOrderID, func() (*models.Order, error) {
		o, err := p.tradeClient.GetOrderByClientOrderID(clientOrderID)
		if err != nil {
			if isNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		return mapOrder(o), nil
	})
}

// Helpers

func isNotFound(err error) bool {
	var apiErr *alpaca.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func mapOrder(o *alpaca.Order) *models.Order {
	if o == nil {
		return nil
	}

	res := &models.Order{
		ID:            o.ID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		FilledQty:     o.FilledQty,
		Side:          models.Buy,
		Status:        strings.ToLower(string(o.Status)),
		CreatedAt:     o.CreatedAt,
		FilledAt:      o.FilledAt,
	}
	if o.Side == alpaca.Sell {
		res.Side = models.Sell
	}
	if o.Qty != nil {
		res.Qty = *o.Qty
	}
	if o.FilledAvgPrice != nil {
		res.FilledAvgPrice = *o.FilledAvgPrice
	}
	return res
}
