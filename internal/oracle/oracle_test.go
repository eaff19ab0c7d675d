package oracle

import (
	"context"
	"testing"
	"time"

	"etf_momentum/internal/market/markettest"
	"etf_momentum/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOpts() Options {
	return Options{Retries: 3, Backoff: time.Millisecond, CallTimeout: time.Second}
}

func TestGetPricePrefersAsk(t *testing.T) {
	b := markettest.New()
	b.SetQuote("TQQQ", 44.90, 45.10)

	p, err := New(b, fastOpts(), nil).GetPrice(context.Background(), "TQQQ")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("45.1")), "got %s", p)
}

func TestGetPriceFallsBackToBid(t *testing.T) {
	b := markettest.New()
	b.SetQuote("TQQQ", 44.90, 0)

	p, err := New(b, fastOpts(), nil).GetPrice(context.Background(), "TQQQ")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("44.9")), "got %s", p)
}

func TestGetPriceZeroQuoteIsFailure(t *testing.T) {
	b := markettest.New()
	b.SetQuote("TQQQ", 0, 0)

	_, err := New(b, fastOpts(), nil).GetPrice(context.Background(), "TQQQ")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Equal(t, 3, b.QuoteCalls["TQQQ"])
}

func TestGetPriceRetriesTransientFailures(t *testing.T) {
	b := markettest.New()
	b.SetPrices("SQQQ", 12.5)
	b.QuoteErrs["SQQQ"] = 2
	m := metrics.New()

	p, err := New(b, fastOpts(), m).GetPrice(context.Background(), "SQQQ")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromFloat(12.5)))
	assert.Equal(t, 3, b.QuoteCalls["SQQQ"])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PriceRequests.WithLabelValues("SQQQ", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceRequests.WithLabelValues("SQQQ", "ok")))
}

func TestGetPriceGivesUpAfterThreeAttempts(t *testing.T) {
	b := markettest.New()
	b.SetPrices("TQQQ", 45)
	b.QuoteErrs["TQQQ"] = 5

	_, err := New(b, fastOpts(), nil).GetPrice(context.Background(), "TQQQ")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Equal(t, 3, b.QuoteCalls["TQQQ"])
}

func TestGetPriceStopsOnCancel(t *testing.T) {
	b := markettest.New()
	b.QuoteErrs["TQQQ"] = 5
	opts := fastOpts()
	opts.Backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := New(b, opts, nil).GetPrice(ctx, "TQQQ")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, b.QuoteCalls["TQQQ"])
}
