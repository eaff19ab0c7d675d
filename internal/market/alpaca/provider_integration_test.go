//go:build integration

package alpaca

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"etf_momentum/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProvider(t *testing.T) *Provider {
	key := os.Getenv("TEST_APCA_API_KEY_ID")
	secret := os.Getenv("TEST_APCA_API_SECRET_KEY")
	url := os.Getenv("TEST_APCA_API_BASE_URL")

	if key == "" || secret == "" {
		t.Skip("Skipping integration test: TEST_APCA credentials not set")
	}
	if url == "" {
		url = PaperBaseURL
	}
	if url == LiveBaseURL {
		t.Skip("Skipping integration test: refusing to trade against the live API")
	}
	return NewProvider(Options{APIKey: key, APISecret: secret, BaseURL: url, CallTimeout: 10 * time.Second})
}

func TestIntegration_Session(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()

	acct, err := p.Account(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, acct.ID)

	clock, err := p.Clock(ctx)
	require.NoError(t, err)
	assert.False(t, clock.Timestamp.IsZero())

	// A Saturday never trades.
	sat := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	open, err := p.IsTradingDay(ctx, sat)
	require.NoError(t, err)
	assert.False(t, open)

	q, err := p.LatestQuote(ctx, "SPY")
	require.NoError(t, err)
	assert.True(t, q.AskPrice.IsPositive() || q.BidPrice.IsPositive())

	_, err = p.Positions(ctx)
	require.NoError(t, err)
}

func TestIntegration_OrderByClientID(t *testing.T) {
	p := setupProvider(t)
	ctx := context.Background()

	missing, err := p.OrderByClientID(ctx, fmt.Sprintf("itest-missing-%d", time.Now().UnixNano()))
	require.NoError(t, err)
	assert.Nil(t, missing)

	clock, err := p.Clock(ctx)
	require.NoError(t, err)
	if !clock.IsOpen {
		t.Skip("Skipping order round trip: market closed")
	}

	clientID := fmt.Sprintf("itest-%d-entry-SPY", time.Now().UnixNano())
	order, err := p.PlaceMarketOrder(ctx, models.OrderRequest{
		Symbol: "SPY", Qty: 1, Side: models.Buy, ClientOrderID: clientID,
	})
	require.NoError(t, err)
	t.Logf("Placed Order %s", order.ID)

	fetched, err := p.OrderByClientID(ctx, clientID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, order.ID, fetched.ID)
	assert.Equal(t, models.Buy, fetched.Side)

	if err := waitForFill(ctx, p, order.ID); err != nil {
		t.Fatalf("Buy not filled: %v", err)
	}

	// Cleanup
	_, err = p.PlaceMarketOrder(ctx, models.OrderRequest{
		Symbol: "SPY", Qty: 1, Side: models.Sell, ClientOrderID: clientID + "-close",
	})
	assert.NoError(t, err)
}

func waitForFill(ctx context.Context, p *Provider, orderID string) error {
	timeout := time.After(30 * time.Second)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("timeout waiting for fill of %s", orderID)
		case <-ticker.C:
			o, err := p.Order(ctx, orderID)
			if err != nil {
				continue
			}
			if o.IsFilled() {
				return nil
			}
			if o.IsTerminalFailure() {
				return fmt.Errorf("order %s ended %s", orderID, o.Status)
			}
		}
	}
}
