package stream

import (
	"testing"
	"time"

	"quoteflow/config"
	"quoteflow/internal/model"
)

var btcUsdt = model.Pair{Base: "BTC", Quote: "USDT"}

func TestCacheLookup(t *testing.T) {
	c := NewCache(30000)
	nowMs := int64(1700000000000)
	c.now = func() time.Time { return time.UnixMilli(nowMs) }

	if _, ok := c.Lookup(btcUsdt); ok {
		t.Error("empty cache should miss")
	}

	c.put(model.Quote{Venue: "binance", Pair: btcUsdt, Bid: 100, Ask: 101, TimestampMs: nowMs - 1000})
	quote, ok := c.Lookup(btcUsdt)
	if !ok {
		t.Fatal("fresh quote should hit")
	}
	if quote.Bid != 100 || quote.Ask != 101 {
		t.Errorf("quote = %+v", quote)
	}

	// Past the freshness cutoff the entry stops serving.
	c.now = func() time.Time { return time.UnixMilli(nowMs + 31000) }
	if _, ok := c.Lookup(btcUsdt); ok {
		t.Error("stale quote should miss")
	}

	if c.Len() != 1 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestHandleMessage(t *testing.T) {
	c := NewCache(30000)
	s := NewBookTicker(config.StreamConfig{Symbols: []string{"BTCUSDT"}}, c)

	payload := []byte(`{"stream":"btcusdt@bookTicker","data":{"u":1,"s":"BTCUSDT","b":"50000.10","B":"2.5","a":"50000.90","A":"1.2"}}`)
	if err := s.handleMessage(payload); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}

	quote, ok := c.Lookup(btcUsdt)
	if !ok {
		t.Fatal("cache miss after message")
	}
	if quote.Bid != 50000.10 || quote.Ask != 50000.90 {
		t.Errorf("prices = %v/%v", quote.Bid, quote.Ask)
	}
	if quote.BidQty != 2.5 || quote.AskQty != 1.2 {
		t.Errorf("sizes = %v/%v", quote.BidQty, quote.AskQty)
	}
	if quote.Venue != "binance" {
		t.Errorf("venue = %s", quote.Venue)
	}
}

func TestHandleMessageMalformed(t *testing.T) {
	c := NewCache(30000)
	s := NewBookTicker(config.StreamConfig{}, c)

	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{"stream":"x","data":{}}`),
		[]byte(`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"oops","B":"1","a":"2","A":"1"}}`),
		// crossed quotes are rejected, not cached
		[]byte(`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"101","B":"1","a":"100","A":"1"}}`),
	}
	for _, payload := range bad {
		if err := s.handleMessage(payload); err == nil {
			t.Errorf("payload %s should fail", payload)
		}
	}
	if c.Len() != 0 {
		t.Errorf("malformed messages must not populate the cache, Len = %d", c.Len())
	}
}

func TestStreamURL(t *testing.T) {
	s := NewBookTicker(config.StreamConfig{Symbols: []string{"BTCUSDT", "ETHUSDT"}}, NewCache(0))

	want := "wss://stream.binance.com:9443/stream?streams=btcusdt@bookTicker/ethusdt@bookTicker"
	if got := s.streamURL(); got != want {
		t.Errorf("streamURL = %s, want %s", got, want)
	}

	s = NewBookTicker(config.StreamConfig{URL: "ws://localhost:9999/stream", Symbols: []string{"BTCUSDT"}}, NewCache(0))
	if got := s.streamURL(); got != "ws://localhost:9999/stream?streams=btcusdt@bookTicker" {
		t.Errorf("streamURL = %s", got)
	}
}
