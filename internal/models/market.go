package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order or trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Order represents a generic order found in any broker.
type Order struct {
	ID             string          `json:"id"`
	ClientOrderID  string          `json:"client_order_id"`
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	Side           Side            `json:"side"`
	Status         string          `json:"status"` // new, accepted, filled, canceled, expired, rejected
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
	CreatedAt      time.Time       `json:"created_at"`
	FilledAt       *time.Time      `json:"filled_at,omitempty"`
}

// IsFilled reports whether the broker has fully filled the order.
func (o *Order) IsFilled() bool {
	return o != nil && o.Status == "filled"
}

// IsTerminalFailure reports whether the order ended without a fill.
func (o *Order) IsTerminalFailure() bool {
	if o == nil {
		return false
	}
	switch o.Status {
	case "canceled", "rejected", "expired":
		return true
	}
	return false
}

// OrderRequest is a market order submission. Time in force is always DAY.
type OrderRequest struct {
	Symbol        string
	Qty           int64
	Side          Side
	ClientOrderID string
}

// Quote represents a generic bid/ask quote.
type Quote struct {
	Symbol    string
	BidPrice  decimal.Decimal
	AskPrice  decimal.Decimal
	Timestamp time.Time
}

// Account represents the generic account state.
type Account struct {
	ID               string          `json:"id"`
	Currency         string          `json:"currency"`
	Equity           decimal.Decimal `json:"equity"`
	BuyingPower      decimal.Decimal `json:"buying_power"`
	Cash             decimal.Decimal `json:"cash"`
	PortfolioValue   decimal.Decimal `json:"portfolio_value"`
	IsAccountBlocked bool            `json:"account_blocked"`
	IsTradingBlocked bool            `json:"trading_blocked"`
}

// Clock represents the market status.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

// Position is a broker-side holding. Qty is signed: negative means short.
type Position struct {
	Symbol string `json:"symbol"`
	Qty    int64  `json:"qty"`
}
