// Package broker defines the order-placement surface the executor
// drives, and an Alpaca-style REST implementation of it.
package broker

import (
	"context"
	"time"
)

// TimeInForce is the brokerage time-in-force a request is placed under.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFOPG TimeInForce = "opg"
)

// Side is buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderRequest places a plain market order.
type OrderRequest struct {
	ClientOrderID string
	Ticker        string
	Side          Side
	Quantity      int
	TimeInForce   TimeInForce
}

// BracketRequest places an entry order with an attached protective stop
// leg, placed and canceled together by the brokerage.
type BracketRequest struct {
	ClientOrderID     string
	Ticker            string
	Side              Side
	Quantity          int
	TimeInForce       TimeInForce
	StopPrice         float64
	StopClientOrderID string
}

// StopRequest places a standalone GTC stop-sell order.
type StopRequest struct {
	ClientOrderID string
	Ticker        string
	Side          Side
	Quantity      int
	StopPrice     float64
}

// BrokerOrder is the brokerage's view of a placed order, normalized
// across market/bracket/stop placement calls.
type BrokerOrder struct {
	ClientOrderID    string
	BrokerageOrderID string
	Status           string
	FilledQuantity   int
	FillPrice        *float64
	StopLegOrderID   string
	SubmittedAt      time.Time
}

// BrokerPosition is one open position as reported by the brokerage.
type BrokerPosition struct {
	Ticker     string
	Quantity   int
	EntryPrice float64
}

// Broker is the order-placement and account surface the executor
// drives. Implementations must treat client order IDs as the
// idempotency key: placing an order whose client ID the brokerage has
// already accepted must not create a duplicate.
type Broker interface {
	PlaceMarketOrder(ctx context.Context, o OrderRequest) (*BrokerOrder, error)
	PlaceBracketOrder(ctx context.Context, o BracketRequest) (*BrokerOrder, error)
	PlaceStopOrder(ctx context.Context, o StopRequest) (*BrokerOrder, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	GetOrder(ctx context.Context, clientOrderID string) (*BrokerOrder, bool, error)
	ListPositions(ctx context.Context) ([]BrokerPosition, error)
	BuyingPower(ctx context.Context) (float64, error)
}
