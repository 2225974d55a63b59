// Package mock provides a synthetic venue generating realistic quotes and
// order books without any network access. Useful for demos and tests.
package mock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quoteflow/internal/model"
	"quoteflow/internal/venue"
)

const venueID = "mock"

// Adapter synthesizes market data around per-pair reference prices that
// random walk on every call. Safe for concurrent use.
type Adapter struct {
	mu         sync.Mutex
	rng        *rand.Rand
	basePrices map[string]float64
	volatility float64
	now        func() time.Time
}

// New seeds the generator from the clock. Use NewWithSeed in tests for
// reproducible data.
func New() *Adapter {
	return NewWithSeed(time.Now().UnixNano())
}

func NewWithSeed(seed int64) *Adapter {
	return &Adapter{
		rng: rand.New(rand.NewSource(seed)),
		basePrices: map[string]float64{
			"BTC-USDT":  50000.0,
			"ETH-USDT":  3000.0,
			"SOL-USDT":  100.0,
			"DOGE-USDT": 0.08,
		},
		volatility: 0.001,
		now:        time.Now,
	}
}

func (a *Adapter) Name() string { return venueID }

// walk advances the pair's reference price one volatility step, floored at
// 90% of the previous value.
func (a *Adapter) walk(pair model.Pair) float64 {
	key := pair.Human()
	base, ok := a.basePrices[key]
	if !ok {
		base = 100.0
	}
	next := base * (1 + a.rng.NormFloat64()*a.volatility)
	if floor := base * 0.9; next < floor {
		next = floor
	}
	a.basePrices[key] = next
	return next
}

func (a *Adapter) GetBestBidAsk(ctx context.Context, pair model.Pair) (model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return model.Quote{}, venue.NetworkError(venueID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	price := a.walk(pair)
	spread := price * (0.0001 + a.rng.Float64()*0.0009)

	return model.Quote{
		Venue:       venueID,
		Pair:        pair,
		Bid:         price - spread/2,
		BidQty:      0.1 + a.rng.Float64()*9.9,
		Ask:         price + spread/2,
		AskQty:      0.1 + a.rng.Float64()*9.9,
		TimestampMs: a.now().UnixMilli(),
	}, nil
}

func (a *Adapter) GetOrderBook(ctx context.Context, pair model.Pair, depth int) (model.OrderBook, error) {
	if err := ctx.Err(); err != nil {
		return model.OrderBook{}, venue.NetworkError(venueID, err)
	}
	if depth <= 0 {
		depth = 100
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	price := a.walk(pair)
	book := model.OrderBook{
		Venue:       venueID,
		Pair:        pair,
		TimestampMs: a.now().UnixMilli(),
	}

	step := price * 0.0001
	for i := 0; i < depth; i++ {
		qty := 0.1 + a.rng.Float64()*9.9
		// Deeper bids carry more size, deeper asks less.
		book.Bids = append(book.Bids, model.Level{
			Price:    price - float64(i+1)*step,
			Quantity: qty * (1 + float64(i)*0.1),
		})
		askQty := qty * (1 - float64(i)*0.05)
		if askQty < 0.01 {
			askQty = 0.01
		}
		book.Asks = append(book.Asks, model.Level{
			Price:    price + float64(i+1)*step,
			Quantity: askQty,
		})
	}
	return model.SortLevels(book), nil
}

// GetFundingSnapshot always fails: the mock venue has no perpetuals.
func (a *Adapter) GetFundingSnapshot(ctx context.Context, pair model.Pair) (model.FundingSnapshot, error) {
	return model.FundingSnapshot{}, venue.UnsupportedCapabilityError(venueID, venue.OpFunding)
}
