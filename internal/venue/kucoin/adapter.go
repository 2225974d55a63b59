// Package kucoin adapts the KuCoin spot and futures REST APIs to the venue
// contract using plain HTTP.
package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"quoteflow/config"
	"quoteflow/internal/model"
	"quoteflow/internal/symbols"
	"quoteflow/internal/venue"
	"quoteflow/logger"
)

const (
	venueID = "kucoin"

	defaultSpotURL    = "https://api.kucoin.com"
	defaultFuturesURL = "https://api-futures.kucoin.com"

	okCode = "200000"
)

// Adapter issues plain HTTP requests against the public market-data
// endpoints. Spot symbols use the BASE-QUOTE form, futures contracts the
// XBTUSDTM style.
type Adapter struct {
	spotURL    string
	futuresURL string
	client     *http.Client
	mapper     *symbols.Mapper
	limiter    *rate.Limiter
	log        *logger.Log
}

func New(cfg config.VenueConfig, mapper *symbols.Mapper) *Adapter {
	transport := &http.Transport{
		MaxIdleConns:        cfg.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     cfg.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     cfg.ConnectionPool.IdleConnTimeout,
	}

	spotURL := cfg.SpotURL
	if spotURL == "" {
		spotURL = defaultSpotURL
	}
	futuresURL := cfg.FuturesURL
	if futuresURL == "" {
		futuresURL = defaultFuturesURL
	}

	return &Adapter{
		spotURL:    spotURL,
		futuresURL: futuresURL,
		client:     &http.Client{Transport: transport, Timeout: cfg.Timeout},
		mapper:     mapper,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize),
		log:        logger.GetLogger(),
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

// get performs one rate-limited request and decodes the KuCoin envelope
// into out, which receives the "data" member.
func (a *Adapter) get(ctx context.Context, rawURL string, query map[string]string, out interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return venue.NetworkError(venueID, err)
	}

	reqURL, err := url.Parse(rawURL)
	if err != nil {
		return venue.NetworkError(venueID, err)
	}
	q := reqURL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return venue.NetworkError(venueID, err)
	}

	start := time.Now()
	res, err := a.client.Do(req)
	if err != nil {
		return venue.NetworkError(venueID, err)
	}
	defer res.Body.Close()
	logger.LogPerformanceEntry(a.log.WithComponent(venueID), venueID, "api_request", time.Since(start), logger.Fields{
		"path": reqURL.Path,
	})

	if res.StatusCode != http.StatusOK {
		return venue.NetworkError(venueID, fmt.Errorf("unexpected status %d", res.StatusCode))
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return venue.MalformedResponseError(venueID, err)
	}
	if envelope.Code != okCode {
		return venue.MalformedResponseError(venueID, fmt.Errorf("code %s: %s", envelope.Code, envelope.Msg))
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return venue.MalformedResponseError(venueID, err)
	}
	return nil
}

func (a *Adapter) GetBestBidAsk(ctx context.Context, pair model.Pair) (model.Quote, error) {
	sym, err := a.symbol(pair)
	if err != nil {
		return model.Quote{}, err
	}

	var data struct {
		Time        int64  `json:"time"`
		BestBid     string `json:"bestBid"`
		BestBidSize string `json:"bestBidSize"`
		BestAsk     string `json:"bestAsk"`
		BestAskSize string `json:"bestAskSize"`
	}
	if err := a.get(ctx, a.spotURL+"/api/v1/market/orderbook/level1", map[string]string{"symbol": sym}, &data); err != nil {
		return model.Quote{}, err
	}

	quote := model.Quote{
		Venue:       venueID,
		Pair:        pair,
		TimestampMs: data.Time,
	}
	if quote.TimestampMs == 0 {
		quote.TimestampMs = time.Now().UnixMilli()
	}
	if quote.Bid, err = strconv.ParseFloat(data.BestBid, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.BidQty, err = strconv.ParseFloat(data.BestBidSize, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.Ask, err = strconv.ParseFloat(data.BestAsk, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.AskQty, err = strconv.ParseFloat(data.BestAskSize, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	return quote, nil
}

// GetOrderBook fetches the aggregated level2 snapshot. KuCoin offers fixed
// 20 and 100 level snapshots; the smaller one is used when it covers the
// requested depth.
func (a *Adapter) GetOrderBook(ctx context.Context, pair model.Pair, depth int) (model.OrderBook, error) {
	sym, err := a.symbol(pair)
	if err != nil {
		return model.OrderBook{}, err
	}

	path := "/api/v1/market/orderbook/level2_100"
	if depth > 0 && depth <= 20 {
		path = "/api/v1/market/orderbook/level2_20"
	}

	var data struct {
		Time int64      `json:"time"`
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := a.get(ctx, a.spotURL+path, map[string]string{"symbol": sym}, &data); err != nil {
		return model.OrderBook{}, err
	}

	book := model.OrderBook{
		Venue:       venueID,
		Pair:        pair,
		TimestampMs: data.Time,
	}
	if book.TimestampMs == 0 {
		book.TimestampMs = time.Now().UnixMilli()
	}
	if book.Bids, err = parseSide(data.Bids, depth); err != nil {
		return model.OrderBook{}, venue.MalformedResponseError(venueID, err)
	}
	if book.Asks, err = parseSide(data.Asks, depth); err != nil {
		return model.OrderBook{}, venue.MalformedResponseError(venueID, err)
	}
	return model.SortLevels(book), nil
}

// GetFundingSnapshot reads the current futures funding rate. The contract
// symbol differs from spot: XBT instead of BTC, no separator, M suffix.
func (a *Adapter) GetFundingSnapshot(ctx context.Context, pair model.Pair) (model.FundingSnapshot, error) {
	contract, err := a.contractSymbol(pair)
	if err != nil {
		return model.FundingSnapshot{}, err
	}

	var data struct {
		Symbol         string  `json:"symbol"`
		Granularity    int64   `json:"granularity"`
		TimePoint      int64   `json:"timePoint"`
		Value          float64 `json:"value"`
		PredictedValue float64 `json:"predictedValue"`
	}
	if err := a.get(ctx, a.futuresURL+"/api/v1/funding-rate/"+contract+"/current", nil, &data); err != nil {
		return model.FundingSnapshot{}, err
	}

	intervalHours := 8.0
	if data.Granularity > 0 {
		intervalHours = time.Duration(data.Granularity * int64(time.Millisecond)).Hours()
	}

	predicted := data.PredictedValue
	return model.FundingSnapshot{
		Venue:             venueID,
		Pair:              pair,
		CurrentRate:       data.Value,
		IntervalHours:     intervalHours,
		PredictedNextRate: &predicted,
		TimestampMs:       data.TimePoint,
	}, nil
}

func (a *Adapter) contractSymbol(pair model.Pair) (string, error) {
	sym, err := a.mapper.Denormalize(pair.Universal(), "kucoin-futures")
	if err != nil {
		return "", fmt.Errorf("format contract for %s: %w", pair.Universal(), err)
	}
	return strings.ReplaceAll(sym, "-", "") + "M", nil
}

func parseSide(raw [][]string, depth int) ([]model.Level, error) {
	levels := make([]model.Level, 0, len(raw))
	for _, entry := range raw {
		if depth > 0 && len(levels) >= depth {
			break
		}
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
