// Package bybit adapts the Bybit v5 unified trading API to the venue
// contract.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"
	"golang.org/x/time/rate"

	"quoteflow/config"
	"quoteflow/internal/model"
	"quoteflow/internal/symbols"
	"quoteflow/internal/venue"
	"quoteflow/logger"
)

const venueID = "bybit"

// Adapter wraps the bybit.go.api client behind the venue contract. Spot
// market data uses the "spot" category, funding the "linear" perpetuals.
type Adapter struct {
	client  *bybit.Client
	mapper  *symbols.Mapper
	limiter *rate.Limiter
	log     *logger.Log
}

func New(cfg config.VenueConfig, mapper *symbols.Mapper) *Adapter {
	transport := &http.Transport{
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
	}

	var client *bybit.Client
	if cfg.SpotURL != "" {
		client = bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(cfg.SpotURL))
	} else {
		client = bybit.NewBybitHttpClient("", "")
	}
	client.HTTPClient = &http.Client{Transport: transport, Timeout: cfg.Timeout}

	return &Adapter{
		client:  client,
		mapper:  mapper,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize),
		log:     logger.GetLogger(),
	}
}

func (a *Adapter) Name() string { return venueID }

func (a *Adapter) symbol(pair model.Pair) (string, error) {
	sym, err := a.mapper.Denormalize(pair.Universal(), venueID)
	if err != nil {
		return "", fmt.Errorf("format symbol for %s: %w", pair.Universal(), err)
	}
	return sym, nil
}

// decodeResult re-marshals the untyped SDK result into the expected shape.
func decodeResult(result interface{}, out interface{}) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, out)
}

type tickersResult struct {
	List []struct {
		Symbol    string `json:"symbol"`
		Bid1Price string `json:"bid1Price"`
		Bid1Size  string `json:"bid1Size"`
		Ask1Price string `json:"ask1Price"`
		Ask1Size  string `json:"ask1Size"`
	} `json:"list"`
}

func (a *Adapter) GetBestBidAsk(ctx context.Context, pair model.Pair) (model.Quote, error) {
	sym, err := a.symbol(pair)
	if err != nil {
		return model.Quote{}, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return model.Quote{}, venue.NetworkError(venueID, err)
	}

	params := map[string]interface{}{"category": "spot", "symbol": sym}
	start := time.Now()
	resp, err := a.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return model.Quote{}, venue.NetworkError(venueID, err)
	}
	logger.LogPerformanceEntry(a.log.WithComponent(venueID), venueID, "market_tickers", time.Since(start), logger.Fields{
		"symbol": sym,
	})
	if resp.RetCode != 0 {
		return model.Quote{}, venue.MalformedResponseError(venueID, fmt.Errorf("retCode %d: %s", resp.RetCode, resp.RetMsg))
	}

	var result tickersResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if len(result.List) == 0 {
		return model.Quote{}, venue.MalformedResponseError(venueID, fmt.Errorf("empty ticker list for %s", sym))
	}
	t := result.List[0]

	quote := model.Quote{
		Venue:       venueID,
		Pair:        pair,
		TimestampMs: time.Now().UnixMilli(),
	}
	if quote.Bid, err = strconv.ParseFloat(t.Bid1Price, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.BidQty, err = strconv.ParseFloat(t.Bid1Size, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.Ask, err = strconv.ParseFloat(t.Ask1Price, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.AskQty, err = strconv.ParseFloat(t.Ask1Size, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	return quote, nil
}

type orderBookResult struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
	TsMs   int64      `json:"ts"`
}

func (a *Adapter) GetOrderBook(ctx context.Context, pair model.Pair, depth int) (model.OrderBook, error) {
	sym, err := a.symbol(pair)
	if err != nil {
		return model.OrderBook{}, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return model.OrderBook{}, venue.NetworkError(venueID, err)
	}

	params := map[string]interface{}{"category": "spot", "symbol": sym, "limit": depth}
	resp, err := a.client.NewUtaBybitServiceWithParams(params).GetOrderBookInfo(ctx)
	if err != nil {
		return model.OrderBook{}, venue.NetworkError(venueID, err)
	}
	if resp.RetCode != 0 {
		return model.OrderBook{}, venue.MalformedResponseError(venueID, fmt.Errorf("retCode %d: %s", resp.RetCode, resp.RetMsg))
	}

	var result orderBookResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return model.OrderBook{}, venue.MalformedResponseError(venueID, err)
	}

	book := model.OrderBook{
		Venue:       venueID,
		Pair:        pair,
		TimestampMs: result.TsMs,
	}
	if book.TimestampMs == 0 {
		book.TimestampMs = time.Now().UnixMilli()
	}
	if book.Bids, err = parseSide(result.Bids); err != nil {
		return model.OrderBook{}, venue.MalformedResponseError(venueID, err)
	}
	if book.Asks, err = parseSide(result.Asks); err != nil {
		return model.OrderBook{}, venue.MalformedResponseError(venueID, err)
	}
	return model.SortLevels(book), nil
}

type fundingResult struct {
	List []struct {
		Symbol      string `json:"symbol"`
		FundingRate string `json:"fundingRate"`
		TimestampMs string `json:"fundingRateTimestamp"`
	} `json:"list"`
}

// GetFundingSnapshot reads the latest linear perpetual funding settlement.
// Bybit settles funding every eight hours.
func (a *Adapter) GetFundingSnapshot(ctx context.Context, pair model.Pair) (model.FundingSnapshot, error) {
	sym, err := a.symbol(pair)
	if err != nil {
		return model.FundingSnapshot{}, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return model.FundingSnapshot{}, venue.NetworkError(venueID, err)
	}

	params := map[string]interface{}{"category": "linear", "symbol": sym, "limit": 1}
	resp, err := a.client.NewUtaBybitServiceWithParams(params).GetFundingRateHistory(ctx)
	if err != nil {
		return model.FundingSnapshot{}, venue.NetworkError(venueID, err)
	}
	if resp.RetCode != 0 {
		return model.FundingSnapshot{}, venue.MalformedResponseError(venueID, fmt.Errorf("retCode %d: %s", resp.RetCode, resp.RetMsg))
	}

	var result fundingResult
	if err := decodeResult(resp.Result, &result); err != nil {
		return model.FundingSnapshot{}, venue.MalformedResponseError(venueID, err)
	}
	if len(result.List) == 0 {
		return model.FundingSnapshot{}, venue.MalformedResponseError(venueID, fmt.Errorf("empty funding list for %s", sym))
	}
	f := result.List[0]

	current, err := strconv.ParseFloat(f.FundingRate, 64)
	if err != nil {
		return model.FundingSnapshot{}, venue.MalformedResponseError(venueID, err)
	}
	tsMs, err := strconv.ParseInt(f.TimestampMs, 10, 64)
	if err != nil {
		return model.FundingSnapshot{}, venue.MalformedResponseError(venueID, err)
	}

	return model.FundingSnapshot{
		Venue:         venueID,
		Pair:          pair,
		CurrentRate:   current,
		IntervalHours: 8,
		TimestampMs:   tsMs,
	}, nil
}

func parseSide(raw [][]string) ([]model.Level, error) {
	levels := make([]model.Level, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("short level entry %v", entry)
		}
		price, err := strconv.ParseFloat(entry[0], 64)
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", entry[0], err)
		}
		qty, err := strconv.ParseFloat(entry[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bad quantity %q: %w", entry[1], err)
		}
		levels = append(levels, model.Level{Price: price, Quantity: qty})
	}
	return levels, nil
}
