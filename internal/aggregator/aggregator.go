// Package aggregator fans a best-bid/ask request out to venue adapters and
// reduces the fresh survivors to a single cross-venue best quote.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quoteflow/internal/model"
	"quoteflow/internal/venue"
	"quoteflow/logger"
)

const (
	// DefaultMaxAgeMs is the freshness cutoff for venue quotes.
	DefaultMaxAgeMs int64 = 30000

	// DefaultVenueTimeout bounds each individual venue call.
	DefaultVenueTimeout = 10 * time.Second
)

// Options tune aggregation behaviour. Zero values fall back to defaults.
type Options struct {
	MaxAgeMs     int64
	VenueTimeout time.Duration
}

// Aggregator queries registered venues concurrently. Safe for concurrent
// use; each request carries its own state.
type Aggregator struct {
	registry     *venue.Registry
	log          *logger.Log
	maxAgeMs     int64
	venueTimeout time.Duration
	now          func() time.Time
}

func New(registry *venue.Registry, opts Options) *Aggregator {
	if opts.MaxAgeMs <= 0 {
		opts.MaxAgeMs = DefaultMaxAgeMs
	}
	if opts.VenueTimeout <= 0 {
		opts.VenueTimeout = DefaultVenueTimeout
	}
	return &Aggregator{
		registry:     registry,
		log:          logger.GetLogger(),
		maxAgeMs:     opts.MaxAgeMs,
		venueTimeout: opts.VenueTimeout,
		now:          time.Now,
	}
}

// venueResult is one venue's slot. Goroutines write only their own index,
// so no locking is needed.
type venueResult struct {
	quote model.Quote
	err   error
}

// BestAcrossVenues queries every listed venue for the pair concurrently and
// reduces to the best bid and ask among fresh quotes. maxAgeMs overrides the
// configured freshness cutoff for this request; pass 0 to keep it. Per-venue
// failures land in the Errors map by reason; zero surviving venues is a valid
// empty result, not an error. Cancellation of ctx aborts the whole request.
func (a *Aggregator) BestAcrossVenues(ctx context.Context, pairStr string, venueIDs []string, maxAgeMs int64) (model.AggregationResult, error) {
	pair, err := model.ParsePair(pairStr)
	if err != nil {
		return model.AggregationResult{}, fmt.Errorf("parse pair: %w", err)
	}
	if len(venueIDs) == 0 {
		return model.AggregationResult{}, fmt.Errorf("no venues given: %w", venue.ErrInvalidArgument)
	}
	if maxAgeMs < 0 {
		return model.AggregationResult{}, fmt.Errorf("max age %d ms: %w", maxAgeMs, venue.ErrInvalidArgument)
	}
	if maxAgeMs == 0 {
		maxAgeMs = a.maxAgeMs
	}

	started := a.now()
	results := make([]venueResult, len(venueIDs))

	var wg sync.WaitGroup
	for i, id := range venueIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i].quote, results[i].err = a.fetchOne(ctx, id, pair)
		}(i, id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return model.AggregationResult{}, fmt.Errorf("aggregation aborted: %w", ctx.Err())
	case <-done:
	}

	result := a.reduce(pair, venueIDs, results, maxAgeMs)
	logger.LogPerformanceEntry(
		a.log.WithFields(logger.Fields{"pair": pair.Universal(), "venues_with_data": result.VenuesWithData}),
		"aggregator", "best_across_venues", a.now().Sub(started), nil,
	)
	return result, nil
}

// fetchOne resolves the adapter, checks the capability flag, and performs
// one bounded best-bid/ask call.
func (a *Aggregator) fetchOne(ctx context.Context, venueID string, pair model.Pair) (model.Quote, error) {
	caps := a.registry.Capabilities()
	if err := caps.Require(venueID, venue.OpSpotQuotes); err != nil {
		return model.Quote{}, err
	}
	adapter, err := a.registry.Get(venueID)
	if err != nil {
		return model.Quote{}, venue.UnsupportedCapabilityError(venueID, venue.OpSpotQuotes)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.venueTimeout)
	defer cancel()

	quote, err := adapter.GetBestBidAsk(callCtx, pair)
	if err != nil {
		a.log.WithComponent("aggregator").WithError(err).WithFields(logger.Fields{
			"venue": venueID,
			"pair":  pair.Universal(),
		}).Warn("venue fetch failed")
		return model.Quote{}, err
	}
	if err := quote.Validate(); err != nil {
		return model.Quote{}, venue.MalformedResponseError(venueID, err)
	}
	logger.IncrementVenueFetch(venueID, 1)
	return quote, nil
}

// reduce filters stale quotes and picks the best bid and ask. Ties prefer
// the freshest quote; exact ties keep the earlier venue in input order.
func (a *Aggregator) reduce(pair model.Pair, venueIDs []string, results []venueResult, maxAgeMs int64) model.AggregationResult {
	nowMs := a.now().UnixMilli()

	out := model.AggregationResult{
		Pair:          pair.Universal(),
		VenuesQueried: len(venueIDs),
		Errors:        map[string]string{},
	}

	for i := range results {
		venueID := venueIDs[i]
		if results[i].err != nil {
			out.Errors[venueID] = venue.Reason(results[i].err)
			continue
		}
		quote := results[i].quote
		if nowMs-quote.TimestampMs > maxAgeMs {
			logger.IncrementStaleDrop(venueID)
			continue
		}
		out.VenuesWithData++

		if replacesBid(out.BestBid, quote) {
			q := quote
			out.BestBid = &q
		}
		if replacesAsk(out.BestAsk, quote) {
			q := quote
			out.BestAsk = &q
		}
	}
	return out
}

// A quote with an absent side (price 0) never becomes the best of that side.
func replacesBid(incumbent *model.Quote, challenger model.Quote) bool {
	if challenger.Bid <= 0 {
		return false
	}
	if incumbent == nil {
		return true
	}
	if challenger.Bid != incumbent.Bid {
		return challenger.Bid > incumbent.Bid
	}
	return challenger.TimestampMs > incumbent.TimestampMs
}

func replacesAsk(incumbent *model.Quote, challenger model.Quote) bool {
	if challenger.Ask <= 0 {
		return false
	}
	if incumbent == nil {
		return true
	}
	if challenger.Ask != incumbent.Ask {
		return challenger.Ask < incumbent.Ask
	}
	return challenger.TimestampMs > incumbent.TimestampMs
}
