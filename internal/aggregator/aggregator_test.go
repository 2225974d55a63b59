package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"quoteflow/internal/model"
	"quoteflow/internal/venue"
)

type stubAdapter struct {
	name  string
	quote model.Quote
	err   error
	block bool
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) GetBestBidAsk(ctx context.Context, pair model.Pair) (model.Quote, error) {
	if s.block {
		<-ctx.Done()
		return model.Quote{}, venue.NetworkError(s.name, ctx.Err())
	}
	if s.err != nil {
		return model.Quote{}, s.err
	}
	q := s.quote
	q.Venue = s.name
	q.Pair = pair
	return q, nil
}

func (s *stubAdapter) GetOrderBook(ctx context.Context, pair model.Pair, depth int) (model.OrderBook, error) {
	return model.OrderBook{}, venue.UnsupportedCapabilityError(s.name, venue.OpOrderBook)
}

func (s *stubAdapter) GetFundingSnapshot(ctx context.Context, pair model.Pair) (model.FundingSnapshot, error) {
	return model.FundingSnapshot{}, venue.UnsupportedCapabilityError(s.name, venue.OpFunding)
}

func spotOnly(name string) venue.Capability {
	return venue.Capability{Venue: name, SupportsSpot: true, Separator: "-", QuoteSuffixed: true}
}

// testAggregator registers the given adapters under spot-only capabilities
// and pins the clock to a fixed instant.
func testAggregator(t *testing.T, nowMs int64, adapters ...*stubAdapter) *Aggregator {
	t.Helper()
	caps := venue.CapabilitySet{}
	for _, a := range adapters {
		caps[a.name] = spotOnly(a.name)
	}
	reg := venue.NewRegistry(caps)
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			t.Fatalf("register %s: %v", a.name, err)
		}
	}
	agg := New(reg, Options{})
	agg.now = func() time.Time { return time.UnixMilli(nowMs) }
	return agg
}

func TestBestAcrossVenues(t *testing.T) {
	const nowMs = 1700000000000
	a := testAggregator(t, nowMs,
		&stubAdapter{name: "venuea", quote: model.Quote{Bid: 100, Ask: 101, BidQty: 1, AskQty: 1, TimestampMs: nowMs - 100}},
		&stubAdapter{name: "venueb", quote: model.Quote{Bid: 100.5, Ask: 101.5, BidQty: 1, AskQty: 1, TimestampMs: nowMs - 100}},
		&stubAdapter{name: "venuec", quote: model.Quote{Bid: 99, Ask: 100.8, BidQty: 1, AskQty: 1, TimestampMs: nowMs - 100}},
	)

	res, err := a.BestAcrossVenues(context.Background(), "BTC-USDT", []string{"venuea", "venueb", "venuec"}, 0)
	if err != nil {
		t.Fatalf("BestAcrossVenues: %v", err)
	}
	if res.Pair != "BTC/USDT" {
		t.Errorf("Pair = %s", res.Pair)
	}
	if res.VenuesQueried != 3 || res.VenuesWithData != 3 {
		t.Errorf("queried/with data = %d/%d", res.VenuesQueried, res.VenuesWithData)
	}
	if res.BestBid == nil || res.BestBid.Venue != "venueb" || res.BestBid.Bid != 100.5 {
		t.Errorf("BestBid = %+v", res.BestBid)
	}
	if res.BestAsk == nil || res.BestAsk.Venue != "venuec" || res.BestAsk.Ask != 100.8 {
		t.Errorf("BestAsk = %+v", res.BestAsk)
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v", res.Errors)
	}
}

func TestFreshnessCutoff(t *testing.T) {
	const nowMs = 1700000000000
	a := testAggregator(t, nowMs,
		&stubAdapter{name: "stale", quote: model.Quote{Bid: 200, Ask: 201, TimestampMs: nowMs - 30001}},
		&stubAdapter{name: "fresh", quote: model.Quote{Bid: 100, Ask: 101, TimestampMs: nowMs - 29999}},
	)

	res, err := a.BestAcrossVenues(context.Background(), "BTC-USDT", []string{"stale", "fresh"}, 0)
	if err != nil {
		t.Fatalf("BestAcrossVenues: %v", err)
	}
	if res.VenuesWithData != 1 {
		t.Errorf("VenuesWithData = %d, want 1", res.VenuesWithData)
	}
	if res.BestBid == nil || res.BestBid.Venue != "fresh" {
		t.Errorf("stale quote won: %+v", res.BestBid)
	}
	// Staleness is not an error.
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v", res.Errors)
	}
}

func TestErrorReasons(t *testing.T) {
	const nowMs = 1700000000000
	a := testAggregator(t, nowMs,
		&stubAdapter{name: "ok", quote: model.Quote{Bid: 100, Ask: 101, TimestampMs: nowMs}},
		&stubAdapter{name: "down", err: venue.NetworkError("down", errors.New("dial tcp"))},
		&stubAdapter{name: "crossed", quote: model.Quote{Bid: 102, Ask: 101, TimestampMs: nowMs}},
	)

	res, err := a.BestAcrossVenues(context.Background(), "BTC-USDT",
		[]string{"ok", "down", "crossed", "missing"}, 0)
	if err != nil {
		t.Fatalf("BestAcrossVenues: %v", err)
	}
	if res.VenuesQueried != 4 || res.VenuesWithData != 1 {
		t.Errorf("queried/with data = %d/%d", res.VenuesQueried, res.VenuesWithData)
	}
	want := map[string]string{
		"down":    "network_error",
		"crossed": "malformed_response",
		"missing": "unsupported_capability",
	}
	for venueID, reason := range want {
		if res.Errors[venueID] != reason {
			t.Errorf("Errors[%s] = %s, want %s", venueID, res.Errors[venueID], reason)
		}
	}
}

func TestEmptyResultIsValid(t *testing.T) {
	const nowMs = 1700000000000
	a := testAggregator(t, nowMs,
		&stubAdapter{name: "venuea", err: venue.NetworkError("venuea", errors.New("refused"))},
		&stubAdapter{name: "venueb", quote: model.Quote{Bid: 1, Ask: 2, TimestampMs: nowMs - 60000}},
	)

	res, err := a.BestAcrossVenues(context.Background(), "BTC-USDT", []string{"venuea", "venueb"}, 0)
	if err != nil {
		t.Fatalf("empty result should not be an error: %v", err)
	}
	if res.BestBid != nil || res.BestAsk != nil {
		t.Errorf("expected absent best quotes: %+v / %+v", res.BestBid, res.BestAsk)
	}
	if res.VenuesQueried != 2 || res.VenuesWithData != 0 {
		t.Errorf("queried/with data = %d/%d", res.VenuesQueried, res.VenuesWithData)
	}
}

func TestTieBreaks(t *testing.T) {
	const nowMs = 1700000000000
	a := testAggregator(t, nowMs,
		&stubAdapter{name: "older", quote: model.Quote{Bid: 100, Ask: 101, TimestampMs: nowMs - 5000}},
		&stubAdapter{name: "fresher", quote: model.Quote{Bid: 100, Ask: 101, TimestampMs: nowMs - 1000}},
		&stubAdapter{name: "same", quote: model.Quote{Bid: 100, Ask: 101, TimestampMs: nowMs - 1000}},
	)

	res, err := a.BestAcrossVenues(context.Background(), "BTC-USDT", []string{"older", "fresher", "same"}, 0)
	if err != nil {
		t.Fatalf("BestAcrossVenues: %v", err)
	}
	// Freshest wins the price tie; the exact timestamp tie keeps the venue
	// listed first.
	if res.BestBid == nil || res.BestBid.Venue != "fresher" {
		t.Errorf("BestBid venue = %+v, want fresher", res.BestBid)
	}
	if res.BestAsk == nil || res.BestAsk.Venue != "fresher" {
		t.Errorf("BestAsk venue = %+v, want fresher", res.BestAsk)
	}
}

func TestCancellation(t *testing.T) {
	const nowMs = 1700000000000
	a := testAggregator(t, nowMs,
		&stubAdapter{name: "slow", block: true},
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := a.BestAcrossVenues(ctx, "BTC-USDT", []string{"slow"}, 0)
	if err == nil {
		t.Fatal("cancelled aggregation should fail")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v", err)
	}
}

func TestInvalidInput(t *testing.T) {
	a := testAggregator(t, 1700000000000,
		&stubAdapter{name: "venuea", quote: model.Quote{Bid: 1, Ask: 2, TimestampMs: 1700000000000}},
	)

	if _, err := a.BestAcrossVenues(context.Background(), "???", []string{"venuea"}, 0); err == nil {
		t.Error("bad pair should fail")
	}
	if _, err := a.BestAcrossVenues(context.Background(), "BTC-USDT", nil, 0); err == nil {
		t.Error("empty venue list should fail")
	}
	if _, err := a.BestAcrossVenues(context.Background(), "BTC-USDT", []string{"venuea"}, -1); err == nil {
		t.Error("negative max age should fail")
	}
}

func TestPerRequestMaxAge(t *testing.T) {
	const nowMs = 1700000000000
	a := testAggregator(t, nowMs,
		&stubAdapter{name: "recent", quote: model.Quote{Bid: 100, Ask: 101, TimestampMs: nowMs - 2000}},
		&stubAdapter{name: "older", quote: model.Quote{Bid: 105, Ask: 106, TimestampMs: nowMs - 8000}},
	)

	// A tight per-request cutoff drops the older quote even though it is
	// well within the configured default.
	res, err := a.BestAcrossVenues(context.Background(), "BTC-USDT", []string{"recent", "older"}, 5000)
	if err != nil {
		t.Fatalf("BestAcrossVenues: %v", err)
	}
	if res.VenuesWithData != 1 {
		t.Errorf("VenuesWithData = %d, want 1", res.VenuesWithData)
	}
	if res.BestBid == nil || res.BestBid.Venue != "recent" {
		t.Errorf("BestBid = %+v, want recent", res.BestBid)
	}

	// Zero falls back to the configured cutoff, which admits both.
	res, err = a.BestAcrossVenues(context.Background(), "BTC-USDT", []string{"recent", "older"}, 0)
	if err != nil {
		t.Fatalf("BestAcrossVenues: %v", err)
	}
	if res.VenuesWithData != 2 {
		t.Errorf("VenuesWithData = %d, want 2", res.VenuesWithData)
	}
	if res.BestBid == nil || res.BestBid.Venue != "older" {
		t.Errorf("BestBid = %+v, want older", res.BestBid)
	}
}

func TestOneSidedQuoteNeverBest(t *testing.T) {
	const nowMs = 1700000000000
	a := testAggregator(t, nowMs,
		&stubAdapter{name: "asksonly", quote: model.Quote{Bid: 0, Ask: 101, AskQty: 1, TimestampMs: nowMs}},
		&stubAdapter{name: "bidsonly", quote: model.Quote{Bid: 100, Ask: 0, BidQty: 1, TimestampMs: nowMs}},
	)

	res, err := a.BestAcrossVenues(context.Background(), "BTC-USDT", []string{"asksonly", "bidsonly"}, 0)
	if err != nil {
		t.Fatalf("BestAcrossVenues: %v", err)
	}
	if res.VenuesWithData != 2 {
		t.Errorf("VenuesWithData = %d, want 2", res.VenuesWithData)
	}
	if res.BestBid == nil || res.BestBid.Venue != "bidsonly" || res.BestBid.Bid != 100 {
		t.Errorf("BestBid = %+v, want bidsonly at 100", res.BestBid)
	}
	if res.BestAsk == nil || res.BestAsk.Venue != "asksonly" || res.BestAsk.Ask != 101 {
		t.Errorf("BestAsk = %+v, want asksonly at 101", res.BestAsk)
	}

	// A venue quoting only one side never supplies the other.
	res, err = a.BestAcrossVenues(context.Background(), "BTC-USDT", []string{"asksonly"}, 0)
	if err != nil {
		t.Fatalf("BestAcrossVenues: %v", err)
	}
	if res.BestBid != nil {
		t.Errorf("BestBid = %+v, want absent", res.BestBid)
	}
	if res.BestAsk == nil {
		t.Error("BestAsk absent")
	}
}
