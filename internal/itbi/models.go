package itbi

import (
	"time"
)

// UseClass is the normalized property use derived from the source classification tag.
type UseClass string

const (
	UseResidential    UseClass = "RESIDENCIAL"
	UseNonResidential UseClass = "NAO_RESIDENCIAL"
)

// RawFeature is one undecoded element of the source envelope's data array.
// Field names vary by provider; only the normalizer reads it.
type RawFeature map[string]any

// PropertyRecord is the canonical, validated shape of one source row.
// A row may already be a monthly aggregate of several transactions.
type PropertyRecord struct {
	Address string    `json:"address"`
	Year    int       `json:"year"`
	Month   int       `json:"month"`
	Date    time.Time `json:"date"` // first day of the reporting month, UTC

	TotalValue       float64  `json:"totalValue"`
	TotalArea        float64  `json:"totalArea"`
	TransactionCount int      `json:"transactionCount"`
	AvgValue         float64  `json:"avgValue"`
	AvgArea          float64  `json:"avgArea"`
	PerAreaPrice     *float64 `json:"perAreaPrice"` // nil when value or area is not positive

	Neighborhood string   `json:"neighborhood"`
	UseClass     UseClass `json:"useClass"`
	RawTag       string   `json:"rawTag"`
	Typology     string   `json:"typology,omitempty"`
	PropertyUse  string   `json:"propertyUse,omitempty"`
}

// MonthKey returns the "YYYY-MM" bucket key for the record.
func (r PropertyRecord) MonthKey() string {
	return r.Date.Format(monthKeyLayout)
}

const monthKeyLayout = "2006-01"

// MonthlyBuckets groups records by "YYYY-MM".
type MonthlyBuckets map[string][]PropertyRecord

// MonthPoint is one month of a street's series.
// WeightedPrice is nil for a month without usable area (a gap, not a zero).
type MonthPoint struct {
	Key              string    `json:"month"`
	Month            time.Time `json:"start"`
	WeightedPrice    *float64  `json:"weightedPrice"`
	TransactionTotal int       `json:"transactionTotal"`
}

// MonthlySeries is ordered oldest to newest.
type MonthlySeries []MonthPoint

// Direction classifies the price trend over the window.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
	DirectionFlat Direction = "FLAT"
)

// Trend is the percentage change between the first and last priced months.
type Trend struct {
	Direction Direction `json:"direction"`
	Percent   float64   `json:"percent"`
}

// Insights bundles the derived signals for one street query.
type Insights struct {
	Trend             Trend    `json:"trend"`
	Launches          []string `json:"launches"`
	DisplayLaunches   []string `json:"displayLaunches"`
	LatestPrice       float64  `json:"latestPrice"`
	TotalTransactions int      `json:"totalTransactions"`
}

// Suggestion is an address candidate for autocomplete.
type Suggestion struct {
	Address      string `json:"address"`
	Neighborhood string `json:"neighborhood"`
}

// StreetReport is everything the presentation layer needs for one street.
type StreetReport struct {
	SnapshotID   string        `json:"snapshotId"`
	Query        string        `json:"query"`
	UseClass     UseClass      `json:"useClass"`
	Neighborhood string        `json:"neighborhood"`
	Matched      int           `json:"matchedRecords"`
	Series       MonthlySeries `json:"series"`
	Insights     Insights      `json:"insights"`
}

// Snapshot is an immutable, fully normalized load of the source.
// It is replaced as a whole on refresh and never mutated after construction.
type Snapshot struct {
	ID       string           `json:"id"`
	LoadedAt time.Time        `json:"loadedAt"`
	Fetched  int              `json:"fetched"`
	Stats    NormalizeStats   `json:"stats"`
	Records  []PropertyRecord `json:"-"`
}
