// Package funding annualizes periodic perpetual funding rates. All
// functions are pure; the only failure mode is a non-positive interval.
package funding

import (
	"fmt"
	"math"

	"quoteflow/internal/model"
	"quoteflow/internal/venue"
)

// APR converts a periodic funding rate into a simple annualized return.
// Negative rates are valid and mean shorts pay longs.
func APR(periodicRate, intervalHours float64) (float64, error) {
	if err := checkInterval(intervalHours); err != nil {
		return 0, err
	}
	return periodicRate * (24 / intervalHours) * 365, nil
}

// APY converts a periodic funding rate into a compounded annualized return.
func APY(periodicRate, intervalHours float64) (float64, error) {
	if err := checkInterval(intervalHours); err != nil {
		return 0, err
	}
	periods := (24 / intervalHours) * 365
	return math.Pow(1+periodicRate, periods) - 1, nil
}

// DailyReturn compounds the periodic rate over one day of settlements.
func DailyReturn(periodicRate, intervalHours float64) (float64, error) {
	if err := checkInterval(intervalHours); err != nil {
		return 0, err
	}
	return math.Pow(1+periodicRate, 24/intervalHours) - 1, nil
}

func checkInterval(intervalHours float64) error {
	if intervalHours <= 0 || math.IsNaN(intervalHours) {
		return fmt.Errorf("interval hours must be positive, got %v: %w",
			intervalHours, venue.ErrInvalidArgument)
	}
	return nil
}

// Summary annualizes one funding snapshot.
type Summary struct {
	Venue         string   `json:"venue"`
	Pair          string   `json:"pair"`
	CurrentRate   float64  `json:"current_rate"`
	IntervalHours float64  `json:"interval_hours"`
	APR           float64  `json:"apr"`
	APY           float64  `json:"apy"`
	DailyReturn   float64  `json:"daily_return"`
	PredictedAPR  *float64 `json:"predicted_apr,omitempty"`
	TimestampMs   int64    `json:"ts_ms"`
}

// SummarizeSnapshot computes APR, APY, and daily return for a snapshot,
// plus the APR implied by the venue's predicted next rate when present.
func SummarizeSnapshot(snap model.FundingSnapshot) (Summary, error) {
	apr, err := APR(snap.CurrentRate, snap.IntervalHours)
	if err != nil {
		return Summary{}, err
	}
	apy, err := APY(snap.CurrentRate, snap.IntervalHours)
	if err != nil {
		return Summary{}, err
	}
	daily, err := DailyReturn(snap.CurrentRate, snap.IntervalHours)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		Venue:         snap.Venue,
		Pair:          snap.Pair.Universal(),
		CurrentRate:   snap.CurrentRate,
		IntervalHours: snap.IntervalHours,
		APR:           apr,
		APY:           apy,
		DailyReturn:   daily,
		TimestampMs:   snap.TimestampMs,
	}
	if snap.PredictedNextRate != nil {
		predicted, err := APR(*snap.PredictedNextRate, snap.IntervalHours)
		if err != nil {
			return Summary{}, err
		}
		out.PredictedAPR = &predicted
	}
	return out, nil
}

// HistoryStats aggregates a funding settlement history.
type HistoryStats struct {
	Count      int     `json:"count"`
	MeanRate   float64 `json:"mean_rate"`
	MinRate    float64 `json:"min_rate"`
	MaxRate    float64 `json:"max_rate"`
	MeanAPR    float64 `json:"mean_apr"`
	MeanAPY    float64 `json:"mean_apy"`
	FirstTsMs  int64   `json:"first_ts_ms"`
	LastTsMs   int64   `json:"last_ts_ms"`
	Annualized float64 `json:"annualized"`
}

// SummarizeHistory aggregates settlement points into summary statistics,
// annualizing the mean rate with the given interval. An empty history is an
// InvalidArgument error.
func SummarizeHistory(points []model.FundingPoint, intervalHours float64) (HistoryStats, error) {
	if err := checkInterval(intervalHours); err != nil {
		return HistoryStats{}, err
	}
	if len(points) == 0 {
		return HistoryStats{}, fmt.Errorf("empty funding history: %w", venue.ErrInvalidArgument)
	}

	stats := HistoryStats{
		Count:     len(points),
		MinRate:   points[0].Rate,
		MaxRate:   points[0].Rate,
		FirstTsMs: points[0].TimestampMs,
		LastTsMs:  points[0].TimestampMs,
	}
	var sum float64
	for _, p := range points {
		sum += p.Rate
		if p.Rate < stats.MinRate {
			stats.MinRate = p.Rate
		}
		if p.Rate > stats.MaxRate {
			stats.MaxRate = p.Rate
		}
		if p.TimestampMs < stats.FirstTsMs {
			stats.FirstTsMs = p.TimestampMs
		}
		if p.TimestampMs > stats.LastTsMs {
			stats.LastTsMs = p.TimestampMs
		}
	}
	stats.MeanRate = sum / float64(len(points))
	stats.MeanAPR, _ = APR(stats.MeanRate, intervalHours)
	stats.MeanAPY, _ = APY(stats.MeanRate, intervalHours)
	stats.Annualized = stats.MeanAPR
	return stats, nil
}

// ToAPRSeries maps each settlement point to its simple annualized rate,
// preserving order and timestamps.
func ToAPRSeries(points []model.FundingPoint, intervalHours float64) ([]model.FundingPoint, error) {
	return mapSeries(points, intervalHours, APR)
}

// ToAPYSeries maps each settlement point to its compounded annualized rate.
func ToAPYSeries(points []model.FundingPoint, intervalHours float64) ([]model.FundingPoint, error) {
	return mapSeries(points, intervalHours, APY)
}

func mapSeries(points []model.FundingPoint, intervalHours float64, fn func(float64, float64) (float64, error)) ([]model.FundingPoint, error) {
	if err := checkInterval(intervalHours); err != nil {
		return nil, err
	}
	out := make([]model.FundingPoint, len(points))
	for i, p := range points {
		rate, err := fn(p.Rate, intervalHours)
		if err != nil {
			return nil, err
		}
		out[i] = model.FundingPoint{TimestampMs: p.TimestampMs, Rate: rate}
	}
	return out, nil
}
