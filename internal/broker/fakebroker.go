package broker

import (
	"context"
	"fmt"
)

// FakeBroker is an in-memory Broker for tests and dry runs, mirroring
// pricebar's FakeFetcher: canned responses, no network calls.
type FakeBroker struct {
	Orders        map[string]*BrokerOrder
	Positions     []BrokerPosition
	BuyingPowerUS float64
	NextFailure   error
}

// NewFakeBroker builds an empty FakeBroker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{Orders: make(map[string]*BrokerOrder)}
}

func (f *FakeBroker) place(clientID string) (*BrokerOrder, error) {
	if f.NextFailure != nil {
		err := f.NextFailure
		f.NextFailure = nil
		return nil, err
	}
	o := &BrokerOrder{ClientOrderID: clientID, BrokerageOrderID: "b-" + clientID, Status: "accepted"}
	f.Orders[clientID] = o
	return o, nil
}

func (f *FakeBroker) PlaceMarketOrder(ctx context.Context, o OrderRequest) (*BrokerOrder, error) {
	return f.place(o.ClientOrderID)
}

func (f *FakeBroker) PlaceBracketOrder(ctx context.Context, o BracketRequest) (*BrokerOrder, error) {
	order, err := f.place(o.ClientOrderID)
	if err != nil {
		return nil, err
	}
	order.StopLegOrderID = "b-" + o.StopClientOrderID
	return order, nil
}

func (f *FakeBroker) PlaceStopOrder(ctx context.Context, o StopRequest) (*BrokerOrder, error) {
	return f.place(o.ClientOrderID)
}

func (f *FakeBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	for id, o := range f.Orders {
		if o.BrokerageOrderID == brokerOrderID {
			o.Status = "canceled"
			f.Orders[id] = o
			return nil
		}
	}
	return nil
}

func (f *FakeBroker) GetOrder(ctx context.Context, clientOrderID string) (*BrokerOrder, bool, error) {
	o, ok := f.Orders[clientOrderID]
	return o, ok, nil
}

func (f *FakeBroker) ListPositions(ctx context.Context) ([]BrokerPosition, error) {
	return f.Positions, nil
}

func (f *FakeBroker) BuyingPower(ctx context.Context) (float64, error) {
	return f.BuyingPowerUS, nil
}

// Fill marks an order filled with the given price and quantity, for
// tests driving the executor's poll phases.
func (f *FakeBroker) Fill(clientID string, price float64, qty int) error {
	o, ok := f.Orders[clientID]
	if !ok {
		return fmt.Errorf("fakebroker: unknown order %s", clientID)
	}
	o.Status = "filled"
	o.FillPrice = &price
	o.FilledQuantity = qty
	return nil
}
