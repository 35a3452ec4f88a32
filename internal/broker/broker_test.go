package broker

import (
	"context"
	"testing"
)

func TestFakeBrokerPlaceAndFill(t *testing.T) {
	b := NewFakeBroker()
	ctx := context.Background()

	order, err := b.PlaceBracketOrder(ctx, BracketRequest{
		ClientOrderID: "2025-10-01_AAPL_entry_buy", Ticker: "AAPL", Side: SideBuy,
		Quantity: 10, TimeInForce: TIFDay, StopPrice: 90, StopClientOrderID: "2025-10-01_AAPL_stop_sell",
	})
	if err != nil {
		t.Fatalf("place bracket: %v", err)
	}
	if order.StopLegOrderID == "" {
		t.Fatalf("expected bracket order to carry a stop leg id")
	}

	if err := b.Fill("2025-10-01_AAPL_entry_buy", 101.5, 10); err != nil {
		t.Fatalf("fill: %v", err)
	}

	got, ok, err := b.GetOrder(ctx, "2025-10-01_AAPL_entry_buy")
	if err != nil || !ok || got.Status != "filled" || got.FilledQuantity != 10 {
		t.Fatalf("unexpected order after fill: %+v ok=%v err=%v", got, ok, err)
	}
}

func TestFakeBrokerUnknownClientIDNotFound(t *testing.T) {
	b := NewFakeBroker()
	_, ok, err := b.GetOrder(context.Background(), "missing")
	if err != nil || ok {
		t.Fatalf("expected not-found for unknown client id, got ok=%v err=%v", ok, err)
	}
}

func TestNewAlpacaBrokerRejectsNonPaperURLWithoutOptIn(t *testing.T) {
	if _, err := NewAlpacaBroker("https://api.alpaca.markets", "k", "s", false); err == nil {
		t.Fatalf("expected error constructing broker against a non-paper URL without opt-in")
	}
	if _, err := NewAlpacaBroker("https://api.alpaca.markets", "k", "s", true); err != nil {
		t.Fatalf("expected opt-in to allow non-paper URL, got %v", err)
	}
	if _, err := NewAlpacaBroker("https://paper-api.alpaca.markets", "k", "s", false); err != nil {
		t.Fatalf("expected paper URL to be accepted without opt-in, got %v", err)
	}
}
