package impact

import (
	"errors"
	"math"
	"testing"

	"quoteflow/internal/model"
	"quoteflow/internal/venue"
)

func testBook() model.OrderBook {
	return model.OrderBook{
		Venue: "mock",
		Pair:  model.Pair{Base: "BTC", Quote: "USDT"},
		Bids:  []model.Level{{Price: 99, Quantity: 1}},
		Asks: []model.Level{
			{Price: 100, Quantity: 1},
			{Price: 101, Quantity: 2},
			{Price: 102, Quantity: 5},
		},
		TimestampMs: 1700000000000,
	}
}

func approx(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestPriceImpactFractionalFill(t *testing.T) {
	res, err := PriceImpact(testBook(), model.SideBuy, 300)
	if err != nil {
		t.Fatalf("PriceImpact: %v", err)
	}
	if !res.FullyFilled {
		t.Error("expected full fill")
	}
	if !approx(res.FilledNotional, 300, 1e-9) {
		t.Errorf("FilledNotional = %v, want 300", res.FilledNotional)
	}
	// 1 unit at 100 plus 200/101 units at 101.
	wantBase := 1 + 200.0/101.0
	if !approx(res.FilledBaseQty, wantBase, 1e-9) {
		t.Errorf("FilledBaseQty = %v, want %v", res.FilledBaseQty, wantBase)
	}
	if !approx(res.AvgExecutionPrice, 100.67, 0.01) {
		t.Errorf("AvgExecutionPrice = %v, want ~100.67", res.AvgExecutionPrice)
	}
	// mid = (99+100)/2 = 99.5
	wantImpact := (res.AvgExecutionPrice - 99.5) / 99.5 * 100
	if !approx(res.ImpactPct, wantImpact, 1e-9) {
		t.Errorf("ImpactPct = %v, want %v", res.ImpactPct, wantImpact)
	}
	if res.ImpactPct <= 0 {
		t.Errorf("buy through the book should have positive impact, got %v", res.ImpactPct)
	}
}

func TestPriceImpactInsufficientDepth(t *testing.T) {
	res, err := PriceImpact(testBook(), model.SideBuy, 10000)
	if err != nil {
		t.Fatalf("PriceImpact: %v", err)
	}
	if res.FullyFilled {
		t.Error("expected partial fill")
	}
	if !approx(res.FilledNotional, 812, 1e-9) {
		t.Errorf("FilledNotional = %v, want 812", res.FilledNotional)
	}
	if !approx(res.FilledBaseQty, 8, 1e-9) {
		t.Errorf("FilledBaseQty = %v, want 8", res.FilledBaseQty)
	}
	if !approx(res.AvgExecutionPrice, 101.5, 1e-9) {
		t.Errorf("AvgExecutionPrice = %v, want 101.5", res.AvgExecutionPrice)
	}
}

func TestPriceImpactSell(t *testing.T) {
	book := model.OrderBook{
		Bids: []model.Level{
			{Price: 100, Quantity: 1},
			{Price: 99, Quantity: 2},
		},
		Asks: []model.Level{{Price: 101, Quantity: 1}},
	}

	res, err := PriceImpact(book, model.SideSell, 150)
	if err != nil {
		t.Fatalf("PriceImpact: %v", err)
	}
	if !res.FullyFilled {
		t.Error("expected full fill")
	}
	// 1 unit at 100 plus 50/99 units at 99; avg below mid.
	if res.ImpactPct >= 0 {
		t.Errorf("sell through the book should have negative impact, got %v", res.ImpactPct)
	}
}

func TestPriceImpactEmptySide(t *testing.T) {
	book := model.OrderBook{
		Bids: []model.Level{{Price: 99, Quantity: 1}},
	}

	res, err := PriceImpact(book, model.SideBuy, 100)
	if err != nil {
		t.Fatalf("PriceImpact: %v", err)
	}
	if res.FullyFilled {
		t.Error("empty side cannot fill")
	}
	if res.FilledNotional != 0 || res.FilledBaseQty != 0 {
		t.Errorf("empty side should fill nothing, got %v / %v", res.FilledNotional, res.FilledBaseQty)
	}
	if res.AvgExecutionPrice != 0 || res.ImpactPct != 0 {
		t.Errorf("empty fill should report zero prices, got %v / %v", res.AvgExecutionPrice, res.ImpactPct)
	}
}

func TestPriceImpactInvalidArguments(t *testing.T) {
	book := testBook()

	for _, notional := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := PriceImpact(book, model.SideBuy, notional)
		if err == nil {
			t.Errorf("notional %v should be rejected", notional)
			continue
		}
		if !errors.Is(err, venue.ErrInvalidArgument) {
			t.Errorf("notional %v error kind = %v", notional, err)
		}
	}

	if _, err := PriceImpact(book, model.Side("hold"), 100); !errors.Is(err, venue.ErrInvalidArgument) {
		t.Errorf("bad side error = %v", err)
	}

	_, err := PriceImpact(book, model.SideBuy, -5)
	if venue.Reason(err) != "invalid_argument" {
		t.Errorf("Reason() = %s, want invalid_argument", venue.Reason(err))
	}
}
