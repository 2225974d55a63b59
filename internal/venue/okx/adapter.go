// Package okx adapts the OKX v5 REST API to the venue contract using plain
// HTTP.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"quoteflow/config"
	"quoteflow/internal/model"
	"quoteflow/internal/symbols"
	"quoteflow/internal/venue"
	"quoteflow/logger"
)

const (
	venueID = "okx"

	defaultBaseURL = "https://www.okx.com"
)

// Adapter issues plain HTTP requests against the public v5 endpoints. Spot
// instruments use BASE-QUOTE ids, funding the BASE-QUOTE-SWAP perpetual.
type Adapter struct {
	baseURL string
	client  *http.Client
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

	baseURL := cfg.SpotURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Adapter{
		baseURL: baseURL,
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
		mapper:  mapper,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize),
		log:     logger.GetLogger(),
	}
}

func (a *Adapter) Name() string { return venueID }

func (a *Adapter) instID(pair model.Pair) (string, error) {
	sym, err := a.mapper.Denormalize(pair.Universal(), venueID)
	if err != nil {
		return "", fmt.Errorf("format instrument for %s: %w", pair.Universal(), err)
	}
	return sym, nil
}

// get performs one rate-limited request and decodes the v5 envelope, whose
// data member is always an array.
func (a *Adapter) get(ctx context.Context, path string, query map[string]string, out interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return venue.NetworkError(venueID, err)
	}

	reqURL, err := url.Parse(a.baseURL + path)
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
		"path": path,
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
	if envelope.Code != "0" {
		return venue.MalformedResponseError(venueID, fmt.Errorf("code %s: %s", envelope.Code, envelope.Msg))
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return venue.MalformedResponseError(venueID, err)
	}
	return nil
}

func (a *Adapter) GetBestBidAsk(ctx context.Context, pair model.Pair) (model.Quote, error) {
	instID, err := a.instID(pair)
	if err != nil {
		return model.Quote{}, err
	}

	var data []struct {
		BidPx string `json:"bidPx"`
		BidSz string `json:"bidSz"`
		AskPx string `json:"askPx"`
		AskSz string `json:"askSz"`
		Ts    string `json:"ts"`
	}
	if err := a.get(ctx, "/api/v5/market/ticker", map[string]string{"instId": instID}, &data); err != nil {
		return model.Quote{}, err
	}
	if len(data) == 0 {
		return model.Quote{}, venue.MalformedResponseError(venueID, fmt.Errorf("empty ticker for %s", instID))
	}
	t := data[0]

	quote := model.Quote{Venue: venueID, Pair: pair}
	if quote.Bid, err = strconv.ParseFloat(t.BidPx, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.BidQty, err = strconv.ParseFloat(t.BidSz, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.Ask, err = strconv.ParseFloat(t.AskPx, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.AskQty, err = strconv.ParseFloat(t.AskSz, 64); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	if quote.TimestampMs, err = strconv.ParseInt(t.Ts, 10, 64); err != nil {
		quote.TimestampMs = time.Now().UnixMilli()
	}
	return quote, nil
}

func (a *Adapter) GetOrderBook(ctx context.Context, pair model.Pair, depth int) (model.OrderBook, error) {
	instID, err := a.instID(pair)
	if err != nil {
		return model.OrderBook{}, err
	}

	var data []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
		Ts   string     `json:"ts"`
	}
	query := map[string]string{"instId": instID, "sz": strconv.Itoa(depth)}
	if err := a.get(ctx, "/api/v5/market/books", query, &data); err != nil {
		return model.OrderBook{}, err
	}
	if len(data) == 0 {
		return model.OrderBook{}, venue.MalformedResponseError(venueID, fmt.Errorf("empty book for %s", instID))
	}
	b := data[0]

	book := model.OrderBook{Venue: venueID, Pair: pair}
	if book.TimestampMs, err = strconv.ParseInt(b.Ts, 10, 64); err != nil {
		book.TimestampMs = time.Now().UnixMilli()
	}
	if book.Bids, err = parseSide(b.Bids); err != nil {
		return model.OrderBook{}, venue.MalformedResponseError(venueID, err)
	}
	if book.Asks, err = parseSide(b.Asks); err != nil {
		return model.OrderBook{}, venue.MalformedResponseError(venueID, err)
	}
	return model.SortLevels(book), nil
}

// GetFundingSnapshot reads the perpetual swap funding rate. OKX settles
// every eight hours and publishes the next predicted rate.
func (a *Adapter) GetFundingSnapshot(ctx context.Context, pair model.Pair) (model.FundingSnapshot, error) {
	instID, err := a.instID(pair)
	if err != nil {
		return model.FundingSnapshot{}, err
	}

	var data []struct {
		FundingRate     string `json:"fundingRate"`
		NextFundingRate string `json:"nextFundingRate"`
		Ts              string `json:"ts"`
	}
	query := map[string]string{"instId": instID + "-SWAP"}
	if err := a.get(ctx, "/api/v5/public/funding-rate", query, &data); err != nil {
		return model.FundingSnapshot{}, err
	}
	if len(data) == 0 {
		return model.FundingSnapshot{}, venue.MalformedResponseError(venueID, fmt.Errorf("empty funding rate for %s", instID))
	}
	f := data[0]

	snap := model.FundingSnapshot{
		Venue:         venueID,
		Pair:          pair,
		IntervalHours: 8,
	}
	if snap.CurrentRate, err = strconv.ParseFloat(f.FundingRate, 64); err != nil {
		return model.FundingSnapshot{}, venue.MalformedResponseError(venueID, err)
	}
	if predicted, err := strconv.ParseFloat(f.NextFundingRate, 64); err == nil {
		snap.PredictedNextRate = &predicted
	}
	if snap.TimestampMs, err = strconv.ParseInt(f.Ts, 10, 64); err != nil {
		snap.TimestampMs = time.Now().UnixMilli()
	}
	return snap, nil
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
