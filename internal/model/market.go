package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Side of a simulated market order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide validates a side string from CLI or API input.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

// Pair is a canonical base/quote asset combination, e.g. BTC/USDT.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// fallback quote suffixes for concatenated pair strings, longest first
var pairQuoteSuffixes = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH", "EUR"}

// ParsePair accepts 'BTC-USDT', 'btc_usdt', 'BTC/USDT' or concatenated
// 'BTCUSDT' strings and normalizes to upper-case. Base and quote must
// differ.
func ParsePair(s string) (Pair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "_", "-")

	var base, quote string
	if i := strings.Index(s, "-"); i >= 0 {
		base, quote = s[:i], s[i+1:]
	} else {
		for _, q := range pairQuoteSuffixes {
			if strings.HasSuffix(s, q) && len(s) > len(q) {
				base, quote = s[:len(s)-len(q)], q
				break
			}
		}
	}

	if base == "" || quote == "" {
		return Pair{}, fmt.Errorf("cannot parse trading pair from %q", s)
	}
	if base == quote {
		return Pair{}, fmt.Errorf("trading pair %q has identical base and quote", s)
	}
	return Pair{Base: base, Quote: quote}, nil
}

// Human returns the 'BTC-USDT' form.
func (p Pair) Human() string {
	return p.Base + "-" + p.Quote
}

// Universal returns the 'BTC/USDT' form.
func (p Pair) Universal() string {
	return p.Base + "/" + p.Quote
}

// Concat returns the 'BTCUSDT' form.
func (p Pair) Concat() string {
	return p.Base + p.Quote
}

// Quote is a best bid/ask snapshot for a pair on one venue.
type Quote struct {
	Venue       string  `json:"venue"`
	Pair        Pair    `json:"pair"`
	Bid         float64 `json:"bid"`
	BidQty      float64 `json:"bid_qty"`
	Ask         float64 `json:"ask"`
	AskQty      float64 `json:"ask_qty"`
	TimestampMs int64   `json:"ts_ms"`
}

// Mid returns the midpoint between bid and ask.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Validate checks the quote invariants: bid <= ask when both are present
// and quantities are non-negative.
func (q Quote) Validate() error {
	if q.Bid > 0 && q.Ask > 0 && q.Bid > q.Ask {
		return fmt.Errorf("crossed quote on %s: bid %.8f > ask %.8f", q.Venue, q.Bid, q.Ask)
	}
	if q.BidQty < 0 || q.AskQty < 0 {
		return fmt.Errorf("negative quantity on %s", q.Venue)
	}
	return nil
}

// Level is a single price level in an order book. Quantity is in the base
// asset.
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is an L2 book for a pair on one venue. Bids are sorted
// descending by price, asks ascending; prices are strictly monotonic within
// each side.
type OrderBook struct {
	Venue       string  `json:"venue"`
	Pair        Pair    `json:"pair"`
	Bids        []Level `json:"bids"`
	Asks        []Level `json:"asks"`
	TimestampMs int64   `json:"ts_ms"`
}

// BestBid returns the highest bid price or NaN for an empty side.
func (b OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return math.NaN()
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask price or NaN for an empty side.
func (b OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return math.NaN()
	}
	return b.Asks[0].Price
}

// Mid returns the book midpoint.
func (b OrderBook) Mid() float64 {
	return (b.BestBid() + b.BestAsk()) / 2
}

// SortLevels returns a copy of the book with canonical ordering applied:
// bids descending, asks ascending, zero or negative levels dropped and
// duplicate prices merged. Some venue APIs do not guarantee ordering.
func SortLevels(b OrderBook) OrderBook {
	b.Bids = canonicalSide(b.Bids, true)
	b.Asks = canonicalSide(b.Asks, false)
	return b
}

func canonicalSide(levels []Level, descending bool) []Level {
	out := make([]Level, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Price > 0 && lvl.Quantity > 0 {
			out = append(out, lvl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	// merge duplicate price levels
	merged := out[:0]
	for _, lvl := range out {
		if n := len(merged); n > 0 && merged[n-1].Price == lvl.Price {
			merged[n-1].Quantity += lvl.Quantity
			continue
		}
		merged = append(merged, lvl)
	}
	return merged
}

// FundingSnapshot holds current funding info for a perpetual on one venue.
type FundingSnapshot struct {
	Venue             string   `json:"venue"`
	Pair              Pair     `json:"pair"`
	CurrentRate       float64  `json:"current_rate"`
	IntervalHours     float64  `json:"interval_hours"`
	PredictedNextRate *float64 `json:"predicted_next_rate,omitempty"`
	TimestampMs       int64    `json:"ts_ms"`
}

// FundingPoint is one historical funding settlement.
type FundingPoint struct {
	TimestampMs int64   `json:"ts_ms"`
	Rate        float64 `json:"rate"`
}
