package oracle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"etf_momentum/internal/market"
	"etf_momentum/internal/metrics"
	"etf_momentum/internal/schedule"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ErrPriceUnavailable is returned when no usable price was obtained.
var ErrPriceUnavailable = errors.New("price unavailable")

// Options tunes retry and rate behaviour.
type Options struct {
	Retries     int           // total attempts, default 3
	Backoff     time.Duration // attempt n waits n*Backoff before the next, default 1s
	CallTimeout time.Duration // per attempt, capped at market.MaxCallTimeout
	RatePerSec  float64       // 0 disables the limiter
}

// Oracle fetches the latest tradable price for a symbol.
type Oracle struct {
	broker  market.Broker
	opts    Options
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

func New(broker market.Broker, opts Options, m *metrics.Metrics) *Oracle {
	if opts.Retries < 1 {
		opts.Retries = 3
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.CallTimeout <= 0 || opts.CallTimeout > market.MaxCallTimeout {
		opts.CallTimeout = market.MaxCallTimeout
	}
	o := &Oracle{broker: broker, opts: opts, metrics: m}
	if opts.RatePerSec > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return o
}

// GetPrice returns the ask price, or the bid when the ask is zero.
// It makes up to Retries attempts with linear backoff and returns
// ErrPriceUnavailable once they are exhausted.
func (o *Oracle) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var lastErr error
	for attempt := 1; attempt <= o.opts.Retries; attempt++ {
		price, err := o.attempt(ctx, symbol)
		if err == nil {
			o.metrics.PriceRequest(symbol, "ok")
			if attempt > 1 {
				log.Printf("Price for %s obtained on attempt %d: $%s", symbol, attempt, price.StringFixed(2))
			}
			return price, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		o.metrics.PriceRequest(symbol, "retry")
		log.Printf("Warning: price attempt %d/%d for %s failed: %v", attempt, o.opts.Retries, symbol, err)

		if attempt < o.opts.Retries {
			if err := schedule.Sleep(ctx, time.Duration(attempt)*o.opts.Backoff); err != nil {
				lastErr = err
				break
			}
		}
	}
	o.metrics.PriceRequest(symbol, "unavailable")
	log.Printf("ERROR: no price for %s after %d attempts: %v", symbol, o.opts.Retries, lastErr)
	return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, symbol, lastErr)
}

func (o *Oracle) attempt(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return decimal.Zero, err
		}
	}

	actx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	q, err := o.broker.LatestQuote(actx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if q == nil {
		return decimal.Zero, fmt.Errorf("empty quote")
	}
	if q.AskPrice.IsPositive() {
		return q.AskPrice, nil
	}
	if q.BidPrice.IsPositive() {
		log.Printf("Ask for %s is zero, using bid $%s", symbol, q.BidPrice.StringFixed(2))
		return q.BidPrice, nil
	}
	return decimal.Zero, fmt.Errorf("quote for %s has zero bid and ask", symbol)
}
