package venue

import (
	"context"
	"errors"
	"testing"

	"quoteflow/internal/model"
)

func TestCapabilityLookup(t *testing.T) {
	caps := DefaultCapabilities()

	c, ok := caps.Lookup("binance")
	if !ok {
		t.Fatal("binance capability missing")
	}
	if c.Separator != "" || !c.QuoteSuffixed {
		t.Errorf("binance convention: separator=%q suffixed=%v", c.Separator, c.QuoteSuffixed)
	}
	if c.FundingIntervalHours != 8 {
		t.Errorf("binance funding interval = %v", c.FundingIntervalHours)
	}

	if _, ok := caps.Lookup("nope"); ok {
		t.Error("unexpected capability for unknown venue")
	}
}

func TestCapabilityRequire(t *testing.T) {
	caps := DefaultCapabilities()

	if err := caps.Require("kucoin", OpFunding); err != nil {
		t.Errorf("kucoin funding should be supported: %v", err)
	}

	err := caps.Require("mock", OpFunding)
	if err == nil {
		t.Fatal("mock funding should be unsupported")
	}
	if !errors.Is(err, ErrUnsupportedCapability) {
		t.Errorf("error kind = %v", err)
	}
	if Reason(err) != "unsupported_capability" {
		t.Errorf("Reason() = %s", Reason(err))
	}

	if err := caps.Require("unknown", OpSpotQuotes); err == nil {
		t.Error("unknown venue should be unsupported")
	}
}

func TestReasonKinds(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NetworkError("binance", errors.New("dial tcp")), "network_error"},
		{MalformedResponseError("okx", errors.New("bad json")), "malformed_response"},
		{UnsupportedCapabilityError("mock", OpFunding), "unsupported_capability"},
		{context.DeadlineExceeded, "network_error"},
		{errors.New("anything else"), "network_error"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

type fakeAdapter struct{ name string }

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) GetBestBidAsk(ctx context.Context, pair model.Pair) (model.Quote, error) {
	return model.Quote{}, nil
}
func (f *fakeAdapter) GetOrderBook(ctx context.Context, pair model.Pair, depth int) (model.OrderBook, error) {
	return model.OrderBook{}, nil
}
func (f *fakeAdapter) GetFundingSnapshot(ctx context.Context, pair model.Pair) (model.FundingSnapshot, error) {
	return model.FundingSnapshot{}, nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(DefaultCapabilities())

	if err := reg.Register(&fakeAdapter{name: "binance"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(&fakeAdapter{name: "binance"}); err == nil {
		t.Error("duplicate registration accepted")
	}
	if err := reg.Register(&fakeAdapter{name: "not-a-venue"}); err == nil {
		t.Error("registration without capability record accepted")
	}

	if _, err := reg.Get("BINANCE"); err != nil {
		t.Errorf("case-insensitive get failed: %v", err)
	}
	if _, err := reg.Get("kraken"); err == nil {
		t.Error("unknown venue lookup should fail")
	}

	venues := reg.Venues()
	if len(venues) != 1 || venues[0] != "binance" {
		t.Errorf("Venues() = %v", venues)
	}
}
