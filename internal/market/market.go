package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"etf_momentum/internal/models"
)

// MaxCallTimeout is the hard ceiling for any single broker round trip.
const MaxCallTimeout = 30 * time.Second

// ErrNoPosition is returned by brokers that report a missing position as an error.
var ErrNoPosition = errors.New("no position")

// Broker is the broker session consumed by the trading core.
//
// Any broker offering these operations can be substituted; the Alpaca
// implementation lives in internal/market/alpaca and tests use markettest.FakeBroker.
// Every method is a blocking network call bounded by its own timeout.
type Broker interface {
	Account(ctx context.Context) (*models.Account, error)
	LatestQuote(ctx context.Context, symbol string) (*models.Quote, error)
	Positions(ctx context.Context) ([]models.Position, error)
	PlaceMarketOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error)

	Order(ctx context.Context, orderID string) (*models.Order, error)
	// OrderByClientID returns (nil, nil) when no order carries the client ID.
	OrderByClientID(ctx context.Context, clientOrderID string) (*models.Order, error)
	Clock(ctx context.Context) (*models.Clock, error)
	IsTradingDay(ctx context.Context, date time.Time) (bool, error)
}

// Call runs fn under a deadline of at most timeout (capped at MaxCallTimeout).
//
// The SDK calls do not take a context, so fn runs on its own goroutine and
// Call returns as soon as either fn finishes or the deadline expires. The HTTP
// client timeout bounds how long an abandoned goroutine can live.
func Call[T any](ctx context.Context, timeout time.Duration, op string, fn func() (T, error)) (T, error) {
	if timeout <= 0 || timeout > MaxCallTimeout {
		timeout = MaxCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}
