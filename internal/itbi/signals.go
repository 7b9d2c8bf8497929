package itbi

import "math"

// Thresholds tune the signal engine.
type Thresholds struct {
	// TrendPercent is the absolute change (in percent) above which a trend is UP or DOWN.
	TrendPercent float64 `validate:"gte=0"`
	// LaunchZScore is the number of population standard deviations above the mean
	// a month's transaction total must exceed to count as a launch.
	LaunchZScore float64 `validate:"gte=0"`
	// LaunchMinCount is an absolute floor on launch months.
	LaunchMinCount int `validate:"gte=0"`
	// LaunchDisplay caps how many launches are surfaced for display.
	LaunchDisplay int `validate:"gte=0"`
}

// DefaultThresholds returns the stock signal settings.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TrendPercent:   3,
		LaunchZScore:   2,
		LaunchMinCount: 5,
		LaunchDisplay:  3,
	}
}

// densePrices drops gap months, keeping chronological order.
func densePrices(series MonthlySeries) []float64 {
	prices := make([]float64, 0, len(series))
	for _, p := range series {
		if p.WeightedPrice != nil {
			prices = append(prices, *p.WeightedPrice)
		}
	}
	return prices
}

// ComputeTrend compares the first and last priced months of the series.
func ComputeTrend(series MonthlySeries, th Thresholds) Trend {
	prices := densePrices(series)
	if len(prices) < 2 {
		return Trend{Direction: DirectionFlat}
	}

	first, last := prices[0], prices[len(prices)-1]
	var percent float64
	if first > 0 {
		percent = (last - first) / first * 100
	}

	switch {
	case percent > th.TrendPercent:
		return Trend{Direction: DirectionUp, Percent: percent}
	case percent < -th.TrendPercent:
		return Trend{Direction: DirectionDown, Percent: percent}
	default:
		return Trend{Direction: DirectionFlat, Percent: percent}
	}
}

// LatestPrice is the most recent priced month, or 0.
func LatestPrice(series MonthlySeries) float64 {
	prices := densePrices(series)
	if len(prices) == 0 {
		return 0
	}
	return prices[len(prices)-1]
}

// DetectLaunches flags months whose transaction total exceeds mean + z*stddev
// (population statistics over the whole series) and the absolute floor.
func DetectLaunches(series MonthlySeries, th Thresholds) []string {
	if len(series) == 0 {
		return nil
	}

	n := float64(len(series))
	var sum float64
	for _, p := range series {
		sum += float64(p.TransactionTotal)
	}
	mean := sum / n

	var sq float64
	for _, p := range series {
		d := float64(p.TransactionTotal) - mean
		sq += d * d
	}
	std := math.Sqrt(sq / n)

	limit := mean + th.LaunchZScore*std
	var launches []string
	for _, p := range series {
		total := float64(p.TransactionTotal)
		if total > limit && p.TransactionTotal > th.LaunchMinCount {
			launches = append(launches, p.Key)
		}
	}
	return launches
}

// TotalTransactions sums transaction counts over the full matched set,
// independent of the series window.
func TotalTransactions(records []PropertyRecord) int {
	total := 0
	for _, r := range records {
		total += r.TransactionCount
	}
	return total
}

// Summarize derives all signals for one street.
func Summarize(records []PropertyRecord, series MonthlySeries, th Thresholds) Insights {
	launches := DetectLaunches(series, th)
	display := launches
	if th.LaunchDisplay >= 0 && len(display) > th.LaunchDisplay {
		display = display[:th.LaunchDisplay]
	}
	if launches == nil {
		launches = []string{}
		display = []string{}
	}

	return Insights{
		Trend:             ComputeTrend(series, th),
		Launches:          launches,
		DisplayLaunches:   display,
		LatestPrice:       LatestPrice(series),
		TotalTransactions: TotalTransactions(records),
	}
}
