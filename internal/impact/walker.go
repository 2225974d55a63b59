// Package impact simulates marketable order execution against a single
// venue's L2 order book.
package impact

import (
	"fmt"
	"math"

	"quoteflow/internal/model"
	"quoteflow/internal/venue"
)

// PriceImpact walks one side of the book, asks for a buy and bids for a
// sell, consuming levels in their monotonic order until the accumulated
// quote notional reaches the target. The crossing level is consumed
// fractionally so the fill never exceeds the target. Insufficient depth is
// not an error: the partial fill figures are returned with FullyFilled set
// to false.
func PriceImpact(book model.OrderBook, side model.Side, targetQuoteNotional float64) (model.ImpactResult, error) {
	if targetQuoteNotional <= 0 || math.IsNaN(targetQuoteNotional) || math.IsInf(targetQuoteNotional, 0) {
		return model.ImpactResult{}, fmt.Errorf("target notional must be positive, got %v: %w",
			targetQuoteNotional, venue.ErrInvalidArgument)
	}

	var levels []model.Level
	switch side {
	case model.SideBuy:
		levels = book.Asks
	case model.SideSell:
		levels = book.Bids
	default:
		return model.ImpactResult{}, fmt.Errorf("unknown side %q: %w", side, venue.ErrInvalidArgument)
	}

	var filledNotional, filledBase float64
	for _, lvl := range levels {
		if lvl.Price <= 0 || lvl.Quantity <= 0 {
			continue
		}
		remaining := targetQuoteNotional - filledNotional
		levelNotional := lvl.Price * lvl.Quantity
		if levelNotional >= remaining {
			filledNotional = targetQuoteNotional
			filledBase += remaining / lvl.Price
			break
		}
		filledNotional += levelNotional
		filledBase += lvl.Quantity
	}

	result := model.ImpactResult{
		FilledNotional: filledNotional,
		FilledBaseQty:  filledBase,
		FullyFilled:    filledNotional >= targetQuoteNotional,
	}
	if filledBase > 0 {
		result.AvgExecutionPrice = filledNotional / filledBase
	}

	// Impact is measured against the book's own mid. A one-sided book has
	// no mid, so the deviation is reported as zero.
	mid := book.Mid()
	if !math.IsNaN(mid) && mid > 0 && result.AvgExecutionPrice > 0 {
		result.ImpactPct = (result.AvgExecutionPrice - mid) / mid * 100
	}

	return result, nil
}
