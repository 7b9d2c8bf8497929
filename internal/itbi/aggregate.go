package itbi

import "time"

// DefaultWindowMonths is the length of the trailing series.
const DefaultWindowMonths = 24

// GroupByMonth buckets records by their "YYYY-MM" key.
func GroupByMonth(records []PropertyRecord) MonthlyBuckets {
	buckets := make(MonthlyBuckets)
	for _, r := range records {
		k := r.MonthKey()
		buckets[k] = append(buckets[k], r)
	}
	return buckets
}

// WindowKeys returns the month keys of the trailing window ending at the
// month containing now, oldest first.
func WindowKeys(now time.Time, window int) []time.Time {
	if window <= 0 {
		window = DefaultWindowMonths
	}
	now = now.UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	months := make([]time.Time, window)
	for i := 0; i < window; i++ {
		months[i] = current.AddDate(0, -(window - 1 - i), 0)
	}
	return months
}

// Aggregate builds the monthly series over the trailing window.
// Each month's price is sum(TotalValue)/sum(TotalArea) across its bucket, so
// rows carrying more area weigh proportionally more. Averaging per-row
// ratios instead would overweight low-volume rows.
func Aggregate(records []PropertyRecord, now time.Time, window int) MonthlySeries {
	buckets := GroupByMonth(records)
	months := WindowKeys(now, window)

	series := make(MonthlySeries, 0, len(months))
	for _, m := range months {
		key := m.Format(monthKeyLayout)
		point := MonthPoint{Key: key, Month: m}

		var sumValue, sumArea float64
		for _, r := range buckets[key] {
			sumValue += r.TotalValue
			sumArea += r.TotalArea
			point.TransactionTotal += r.TransactionCount
		}
		if sumArea > 0 {
			p := sumValue / sumArea
			point.WeightedPrice = &p
		}

		series = append(series, point)
	}
	return series
}

// FilterByUse keeps records of the given use class, excluding rows whose
// typology names one of the excluded categories (case-insensitive, exact).
func FilterByUse(records []PropertyRecord, class UseClass, excludedTypologies []string) []PropertyRecord {
	out := make([]PropertyRecord, 0, len(records))
	for _, r := range records {
		if r.UseClass != class || isExcluded(r.Typology, excludedTypologies) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func isExcluded(typology string, excluded []string) bool {
	if typology == "" {
		return false
	}
	t := Fold(typology)
	for _, e := range excluded {
		if Fold(e) == t {
			return true
		}
	}
	return false
}
