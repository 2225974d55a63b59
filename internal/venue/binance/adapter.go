// Package binance adapts the Binance spot and futures REST APIs to the
// venue contract.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"quoteflow/config"
	"quoteflow/internal/model"
	"quoteflow/internal/symbols"
	"quoteflow/internal/venue"
	"quoteflow/logger"
)

const venueID = "binance"

// QuoteCache serves quotes kept warm by a streaming feed. A cache hit
// avoids a REST round trip.
type QuoteCache interface {
	Lookup(pair model.Pair) (model.Quote, bool)
}

// Adapter wraps the go-binance clients behind the venue contract.
type Adapter struct {
	spot    *gobinance.Client
	futures *futures.Client
	mapper  *symbols.Mapper
	limiter *rate.Limiter
	cache   QuoteCache
	log     *logger.Log
}

// New builds an adapter from venue configuration. The shared transport and
// limiter apply across spot and futures calls.
func New(cfg config.VenueConfig, mapper *symbols.Mapper) *Adapter {
	transport := &http.Transport{
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}

	spot := gobinance.NewClient("", "")
	spot.HTTPClient = httpClient
	if cfg.SpotURL != "" {
		spot.BaseURL = cfg.SpotURL
	}

	fut := futures.NewClient("", "")
	fut.HTTPClient = httpClient
	if cfg.FuturesURL != "" {
		fut.SetApiEndpoint(cfg.FuturesURL)
	}

	return &Adapter{
		spot:    spot,
		futures: fut,
		mapper:  mapper,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize),
		log:     logger.GetLogger(),
	}
}

// WithCache attaches a streaming quote cache consulted before REST calls.
func (a *Adapter) WithCache(cache QuoteCache) *Adapter {
	a.cache = cache
	return a
}

func (a *Adapter) Name() string { return venueID }

func (a *Adapter) symbol(pair model.Pair) (string, error) {
	sym, err := a.mapper.Denormalize(pair.Universal(), venueID)
	if err != nil {
		return "", fmt.Errorf("format symbol for %s: %w", pair.Universal(), err)
	}
	return sym, nil
}

// GetBestBidAsk returns the spot book ticker for the pair, preferring a
// fresh streamed quote when a cache is attached.
func (a *Adapter) GetBestBidAsk(ctx context.Context, pair model.Pair) (model.Quote, error) {
	if a.cache != nil {
		if quote, ok := a.cache.Lookup(pair); ok {
			return quote, nil
		}
	}

	sym, err := a.symbol(pair)
	if err != nil {
		return model.Quote{}, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return model.Quote{}, venue.NetworkError(venueID, err)
	}

	start := time.Now()
	tickers, err := a.spot.NewListBookTickersService().Symbol(sym).Do(ctx)
	if err != nil {
		return model.Quote{}, venue.NetworkError(venueID, err)
	}
	logger.LogPerformanceEntry(a.log.WithComponent(venueID), venueID, "book_ticker", time.Since(start), logger.Fields{
		"symbol": sym,
	})

	if len(tickers) == 0 {
		return model.Quote{}, venue.MalformedResponseError(venueID, fmt.Errorf("empty book ticker for %s", sym))
	}
	t := tickers[0]

	quote := model.Quote{
		Venue:       venueID,
		Pair:        pair,
		TimestampMs: time.Now().UnixMilli(),
	}
	if quote.Bid, err = strconv.ParseFloat(t.BidPrice, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.BidQty, err = strconv.ParseFloat(t.BidQuantity, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.Ask, err = strconv.ParseFloat(t.AskPrice, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.AskQty, err = strconv.ParseFloat(t.AskQuantity, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	return quote, nil
}

// GetOrderBook fetches an L2 depth snapshot, canonicalized so bids descend
// and asks ascend.
func (a *Adapter) GetOrderBook(ctx context.Context, pair model.Pair, depth int) (model.OrderBook, error) {
	sym, err := a.symbol(pair)
	if err != nil {
		return model.OrderBook{}, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return model.OrderBook{}, venue.NetworkError(venueID, err)
	}

	resp, err := a.spot.NewDepthService().Symbol(sym).Limit(depth).Do(ctx)
	if err != nil {
		return model.OrderBook{}, venue.NetworkError(venueID, err)
	}

	book := model.OrderBook{
		Venue:       venueID,
		Pair:        pair,
		TimestampMs: time.Now().UnixMilli(),
	}
	for _, b := range resp.Bids {
		price, qty, err := parseLevel(b.Price, b.Quantity)
		if err != nil {
			return model.OrderBook{}, venue.MalformedResponseError(venueID, err)
		}
		book.Bids = append(book.Bids, model.Level{Price: price, Quantity: qty})
	}
	for _, ask := range resp.Asks {
		price, qty, err := parseLevel(ask.Price, ask.Quantity)
		if err != nil {
			return model.OrderBook{}, venue.MalformedResponseError(venueID, err)
		}
		book.Asks = append(book.Asks, model.Level{Price: price, Quantity: qty})
	}
	return model.SortLevels(book), nil
}

// GetFundingSnapshot reads the perpetual premium index. Binance settles
// funding every eight hours.
func (a *Adapter) GetFundingSnapshot(ctx context.Context, pair model.Pair) (model.FundingSnapshot, error) {
	sym, err := a.symbol(pair)
	if err != nil {
		return model.FundingSnapshot{}, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return model.FundingSnapshot{}, venue.NetworkError(venueID, err)
	}

	indexes, err := a.futures.NewPremiumIndexService().Symbol(sym).Do(ctx)
	if err != nil {
		return model.FundingSnapshot{}, venue.NetworkError(venueID, err)
	}
	if len(indexes) == 0 {
		return model.FundingSnapshot{}, venue.MalformedResponseError(venueID, fmt.Errorf("empty premium index for %s", sym))
	}
	idx := indexes[0]

	current, err := strconv.ParseFloat(idx.LastFundingRate, 64)
	if err != nil {
		return model.FundingSnapshot{}, venue.MalformedResponseError(venueID, err)
	}

	return model.FundingSnapshot{
		Venue:         venueID,
		Pair:          pair,
		CurrentRate:   current,
		IntervalHours: 8,
		TimestampMs:   idx.Time,
	}, nil
}

func parseLevel(priceStr, qtyStr string) (float64, float64, error) {
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad price %q: %w", priceStr, err)
	}
	qty, err := strconv.ParseFloat(qtyStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad quantity %q: %w", qtyStr, err)
	}
	return price, qty, nil
}
