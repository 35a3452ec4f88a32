package broker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tradermonty/earningsgap/internal/apperrors"
	"github.com/tradermonty/earningsgap/internal/logger"
)

// AlpacaBroker implements Broker against an Alpaca-style paper/live
// trading REST API, generalized from the header/auth/base-URL-per-mode
// shape of a single-asset-class stock trader to the order/bracket/stop
// surface an entry-and-protective-stop strategy needs.
type AlpacaBroker struct {
	client  *resty.Client
	baseURL string
}

// NewAlpacaBroker builds a broker client against baseURL. Construction
// refuses a base URL that doesn't look like a paper endpoint unless
// allowLive is true, the same opt-in guard config.Validate applies to
// brokerage_base_url.
func NewAlpacaBroker(baseURL, apiKey, secretKey string, allowLive bool) (*AlpacaBroker, error) {
	if !strings.Contains(strings.ToLower(baseURL), "paper") && !allowLive {
		return nil, apperrors.ErrConfig("broker base URL does not look like a paper endpoint; pass AllowLive to opt in")
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("APCA-API-KEY-ID", apiKey).
		SetHeader("APCA-API-SECRET-KEY", secretKey).
		SetHeader("Content-Type", "application/json")

	return &AlpacaBroker{client: client, baseURL: baseURL}, nil
}

type alpacaOrderResponse struct {
	ID             string  `json:"id"`
	ClientOrderID  string  `json:"client_order_id"`
	Status         string  `json:"status"`
	FilledQty      string  `json:"filled_qty"`
	FilledAvgPrice *string `json:"filled_avg_price"`
	Legs           []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"legs"`
}

func toBrokerOrder(r alpacaOrderResponse) *BrokerOrder {
	out := &BrokerOrder{
		ClientOrderID:    r.ClientOrderID,
		BrokerageOrderID: r.ID,
		Status:           r.Status,
	}
	if qty, err := strconv.Atoi(r.FilledQty); err == nil {
		out.FilledQuantity = qty
	} else if qty, err := strconv.ParseFloat(r.FilledQty, 64); err == nil {
		out.FilledQuantity = int(qty)
	}
	if r.FilledAvgPrice != nil && *r.FilledAvgPrice != "" {
		if v, err := strconv.ParseFloat(*r.FilledAvgPrice, 64); err == nil {
			out.FillPrice = &v
		}
	}
	for _, leg := range r.Legs {
		if leg.Type == "stop" {
			out.StopLegOrderID = leg.ID
		}
	}
	return out
}

// PlaceMarketOrder places a plain market order under tif.
func (b *AlpacaBroker) PlaceMarketOrder(ctx context.Context, o OrderRequest) (*BrokerOrder, error) {
	body := map[string]any{
		"symbol":          o.Ticker,
		"qty":             strconv.Itoa(o.Quantity),
		"side":            string(o.Side),
		"type":            "market",
		"time_in_force":   string(o.TimeInForce),
		"client_order_id": o.ClientOrderID,
	}
	return b.placeOrder(ctx, body)
}

// PlaceBracketOrder places an entry order with an attached GTC stop
// leg as a single atomic bracket order.
func (b *AlpacaBroker) PlaceBracketOrder(ctx context.Context, o BracketRequest) (*BrokerOrder, error) {
	body := map[string]any{
		"symbol":          o.Ticker,
		"qty":             strconv.Itoa(o.Quantity),
		"side":            string(o.Side),
		"type":            "market",
		"time_in_force":   string(o.TimeInForce),
		"client_order_id": o.ClientOrderID,
		"order_class":     "bracket",
		"stop_loss": map[string]any{
			"stop_price": strconv.FormatFloat(o.StopPrice, 'f', 2, 64),
		},
	}
	return b.placeOrder(ctx, body)
}

// PlaceStopOrder places a standalone GTC stop order.
func (b *AlpacaBroker) PlaceStopOrder(ctx context.Context, o StopRequest) (*BrokerOrder, error) {
	body := map[string]any{
		"symbol":          o.Ticker,
		"qty":             strconv.Itoa(o.Quantity),
		"side":            string(o.Side),
		"type":            "stop",
		"stop_price":      strconv.FormatFloat(o.StopPrice, 'f', 2, 64),
		"time_in_force":   string(TIFGTC),
		"client_order_id": o.ClientOrderID,
	}
	return b.placeOrder(ctx, body)
}

func (b *AlpacaBroker) placeOrder(ctx context.Context, body map[string]any) (*BrokerOrder, error) {
	var result alpacaOrderResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("broker: place order: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("broker: place order: status %d: %s", resp.StatusCode(), resp.String())
	}
	logger.Infof("broker: placed order %s (%s) status=%s", result.ClientOrderID, result.ID, result.Status)
	return toBrokerOrder(result), nil
}

// CancelOrder cancels an order by its brokerage-assigned id.
func (b *AlpacaBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	resp, err := b.client.R().SetContext(ctx).Delete("/v2/orders/" + brokerOrderID)
	if err != nil {
		return fmt.Errorf("broker: cancel order %s: %w", brokerOrderID, err)
	}
	if resp.IsError() && resp.StatusCode() != 404 {
		return fmt.Errorf("broker: cancel order %s: status %d: %s", brokerOrderID, resp.StatusCode(), resp.String())
	}
	return nil
}

// GetOrder looks up an order by the client-assigned id used at
// placement time.
func (b *AlpacaBroker) GetOrder(ctx context.Context, clientOrderID string) (*BrokerOrder, bool, error) {
	var result alpacaOrderResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v2/orders:by_client_order_id?client_order_id=" + clientOrderID)
	if err != nil {
		return nil, false, fmt.Errorf("broker: get order %s: %w", clientOrderID, err)
	}
	if resp.StatusCode() == 404 {
		return nil, false, nil
	}
	if resp.IsError() {
		return nil, false, fmt.Errorf("broker: get order %s: status %d: %s", clientOrderID, resp.StatusCode(), resp.String())
	}
	return toBrokerOrder(result), true, nil
}

type alpacaPositionResponse struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
}

// ListPositions lists every open position the brokerage reports.
func (b *AlpacaBroker) ListPositions(ctx context.Context) ([]BrokerPosition, error) {
	var results []alpacaPositionResponse
	resp, err := b.client.R().SetContext(ctx).SetResult(&results).Get("/v2/positions")
	if err != nil {
		return nil, fmt.Errorf("broker: list positions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("broker: list positions: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]BrokerPosition, 0, len(results))
	for _, r := range results {
		qty, _ := strconv.ParseFloat(r.Qty, 64)
		entry, _ := strconv.ParseFloat(r.AvgEntryPrice, 64)
		out = append(out, BrokerPosition{Ticker: r.Symbol, Quantity: int(qty), EntryPrice: entry})
	}
	return out, nil
}

type alpacaAccountResponse struct {
	BuyingPower string `json:"buying_power"`
}

// BuyingPower returns the account's current buying power.
func (b *AlpacaBroker) BuyingPower(ctx context.Context) (float64, error) {
	var result alpacaAccountResponse
	resp, err := b.client.R().SetContext(ctx).SetResult(&result).Get("/v2/account")
	if err != nil {
		return 0, fmt.Errorf("broker: buying power: %w", err)
	}
	if resp.IsError() {
		return 0, fmt.Errorf("broker: buying power: status %d: %s", resp.StatusCode(), resp.String())
	}
	v, err := strconv.ParseFloat(result.BuyingPower, 64)
	if err != nil {
		return 0, fmt.Errorf("broker: parse buying power %q: %w", result.BuyingPower, err)
	}
	return v, nil
}
