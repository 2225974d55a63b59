package model

// AggregationResult is the outcome of one best-across-venues request. An
// aggregation with zero surviving venues is a valid empty result, not an
// error; callers distinguish "no data" from "call failed" via
// VenuesWithData.
type AggregationResult struct {
	Pair           string            `json:"pair"`
	BestBid        *Quote            `json:"best_bid"`
	BestAsk        *Quote            `json:"best_ask"`
	VenuesQueried  int               `json:"venues_queried"`
	VenuesWithData int               `json:"venues_with_data"`
	Errors         map[string]string `json:"errors"`
}

// Mid returns the midpoint between best bid and best ask, or 0 when either
// side is absent.
func (r AggregationResult) Mid() float64 {
	if r.BestBid == nil || r.BestAsk == nil {
		return 0
	}
	return (r.BestBid.Bid + r.BestAsk.Ask) / 2
}

// ImpactResult reports a simulated market order fill against one book.
type ImpactResult struct {
	AvgExecutionPrice float64 `json:"avg_execution_price"`
	ImpactPct         float64 `json:"impact_pct"`
	FilledNotional    float64 `json:"filled_notional"`
	FilledBaseQty     float64 `json:"filled_base_qty"`
	FullyFilled       bool    `json:"fully_filled"`
}
