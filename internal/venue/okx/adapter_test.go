package okx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quoteflow/config"
	"quoteflow/internal/model"
	"quoteflow/internal/symbols"
	"quoteflow/internal/venue"
)

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.VenueConfig{
		Enabled: true,
		SpotURL: server.URL,
		ConnectionPool: config.ConnectionPoolConfig{
			MaxIdleConns:    2,
			MaxConnsPerHost: 2,
			IdleConnTimeout: time.Second,
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10},
		Timeout:   2 * time.Second,
	}
	return New(cfg, symbols.NewMapper(venue.DefaultCapabilities()))
}

func TestGetBestBidAsk(t *testing.T) {
	var gotInstID string
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotInstID = r.URL.Query().Get("instId")
		w.Write([]byte(`{"code":"0","data":[{"bidPx":"3000.1","bidSz":"5","askPx":"3000.9","askSz":"4","ts":"1700000000000"}]}`))
	})

	pair, _ := model.ParsePair("ETH/USDT")
	quote, err := adapter.GetBestBidAsk(context.Background(), pair)
	if err != nil {
		t.Fatalf("GetBestBidAsk: %v", err)
	}
	if gotInstID != "ETH-USDT" {
		t.Errorf("instId = %s, want ETH-USDT", gotInstID)
	}
	if quote.Bid != 3000.1 || quote.Ask != 3000.9 {
		t.Errorf("quote = %+v", quote)
	}
	if quote.TimestampMs != 1700000000000 {
		t.Errorf("timestamp = %d", quote.TimestampMs)
	}
}

func TestGetOrderBookCanonicalOrder(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","data":[{"bids":[["2999","1","0","1"],["3000","2","0","1"]],"asks":[["3002","1","0","1"],["3001","2","0","1"]],"ts":"1700000000000"}]}`))
	})

	pair, _ := model.ParsePair("ETH/USDT")
	book, err := adapter.GetOrderBook(context.Background(), pair, 20)
	if err != nil {
		t.Fatalf("GetOrderBook: %v", err)
	}
	if book.Bids[0].Price != 3000 {
		t.Errorf("best bid = %v, want 3000 after sorting", book.Bids[0].Price)
	}
	if book.Asks[0].Price != 3001 {
		t.Errorf("best ask = %v, want 3001 after sorting", book.Asks[0].Price)
	}
}

func TestGetFundingSnapshotSwapInstrument(t *testing.T) {
	var gotInstID string
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotInstID = r.URL.Query().Get("instId")
		w.Write([]byte(`{"code":"0","data":[{"fundingRate":"0.0001","nextFundingRate":"0.00015","ts":"1700000000000"}]}`))
	})

	pair, _ := model.ParsePair("ETH/USDT")
	snap, err := adapter.GetFundingSnapshot(context.Background(), pair)
	if err != nil {
		t.Fatalf("GetFundingSnapshot: %v", err)
	}
	if gotInstID != "ETH-USDT-SWAP" {
		t.Errorf("instId = %s, want ETH-USDT-SWAP", gotInstID)
	}
	if snap.CurrentRate != 0.0001 {
		t.Errorf("rate = %v", snap.CurrentRate)
	}
	if snap.PredictedNextRate == nil || *snap.PredictedNextRate != 0.00015 {
		t.Errorf("predicted = %v", snap.PredictedNextRate)
	}
	if snap.IntervalHours != 8 {
		t.Errorf("interval = %v", snap.IntervalHours)
	}
}

func TestErrorEnvelope(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"51001","msg":"Instrument ID does not exist","data":[]}`))
	})

	pair, _ := model.ParsePair("ETH/USDT")
	_, err := adapter.GetBestBidAsk(context.Background(), pair)
	if !errors.Is(err, venue.ErrMalformedResponse) {
		t.Fatalf("err = %v, want malformed response", err)
	}
}

func TestEmptyDataArray(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","data":[]}`))
	})

	pair, _ := model.ParsePair("ETH/USDT")
	_, err := adapter.GetBestBidAsk(context.Background(), pair)
	if venue.Reason(err) != "malformed_response" {
		t.Fatalf("reason = %s, want malformed_response", venue.Reason(err))
	}
}

func TestHTTPErrorIsNetwork(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	pair, _ := model.ParsePair("ETH/USDT")
	_, err := adapter.GetBestBidAsk(context.Background(), pair)
	if !errors.Is(err, venue.ErrNetwork) {
		t.Fatalf("err = %v, want network error", err)
	}
}
