package itbi

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/itbi-price-aggregation/internal/common"
)

// Source field aliases, first match wins.
var (
	addressKeys      = []string{"street", "logradouro", "address", "nome_logradouro"}
	periodKeys       = []string{"year_month", "ano_mes", "period"}
	yearKeys         = []string{"year", "ano"}
	monthKeys        = []string{"month", "mes"}
	totalValueKeys   = []string{"total_transaction_value", "valor_total"}
	totalAreaKeys    = []string{"total_built_area_m2", "area_construida_total"}
	countKeys        = []string{"total_transactions", "quantidade_transacoes"}
	avgAreaKeys      = []string{"avg_built_area_m2", "area_construida_media"}
	classKeys        = []string{"construction_type", "uso", "tipo_construcao"}
	neighborhoodKeys = []string{"neighborhood", "bairro"}
	typologyKeys     = []string{"principais_tipologias", "typology"}
	propertyUseKeys  = []string{"property_use"}
)

// DefaultCommercialTokens mark a classification tag as non-residential.
var DefaultCommercialTokens = []string{"COMERCIAL"}

// NormalizeStats counts rows kept and skipped during a normalization pass.
type NormalizeStats struct {
	Input          int `json:"input"`
	Kept           int `json:"kept"`
	MissingAddress int `json:"missingAddress"`
	InvalidPeriod  int `json:"invalidPeriod"`
}

// Skipped returns the number of dropped rows.
func (s NormalizeStats) Skipped() int {
	return s.MissingAddress + s.InvalidPeriod
}

// Normalizer maps raw features into canonical records.
type Normalizer struct {
	commercialTokens []string
}

// NewNormalizer creates a Normalizer. An empty token list falls back to DefaultCommercialTokens.
func NewNormalizer(commercialTokens []string) *Normalizer {
	tokens := make([]string, 0, len(commercialTokens))
	for _, t := range commercialTokens {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		tokens = DefaultCommercialTokens
	}
	return &Normalizer{commercialTokens: tokens}
}

// Normalize converts features in order, silently dropping rows without an
// address or a valid year/month. It performs no I/O.
func (n *Normalizer) Normalize(features []RawFeature) ([]PropertyRecord, NormalizeStats) {
	stats := NormalizeStats{Input: len(features)}
	records := make([]PropertyRecord, 0, len(features))

	for _, f := range features {
		address := strings.TrimSpace(stringField(f, addressKeys...))
		if address == "" {
			stats.MissingAddress++
			continue
		}

		year, month, ok := parsePeriod(f)
		if !ok {
			stats.InvalidPeriod++
			continue
		}

		totalValue, _ := numberField(f, totalValueKeys...)
		totalArea, _ := numberField(f, totalAreaKeys...)
		avgArea, _ := numberField(f, avgAreaKeys...)

		count := 1
		if c, ok := numberField(f, countKeys...); ok && c >= 1 {
			count = int(math.Round(c))
		}

		tag := strings.TrimSpace(stringField(f, classKeys...))

		records = append(records, PropertyRecord{
			Address:          address,
			Year:             year,
			Month:            month,
			Date:             time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC),
			TotalValue:       totalValue,
			TotalArea:        totalArea,
			TransactionCount: count,
			AvgValue:         totalValue / float64(count),
			AvgArea:          avgArea,
			PerAreaPrice:     PerAreaPrice(totalValue, totalArea),
			Neighborhood:     strings.TrimSpace(stringField(f, neighborhoodKeys...)),
			UseClass:         n.classify(tag),
			RawTag:           tag,
			Typology:         strings.TrimSpace(stringField(f, typologyKeys...)),
			PropertyUse:      strings.TrimSpace(stringField(f, propertyUseKeys...)),
		})
	}

	stats.Kept = len(records)
	return records, stats
}

func (n *Normalizer) classify(tag string) UseClass {
	if common.HasAny(strings.ToUpper(tag), n.commercialTokens...) {
		return UseNonResidential
	}
	return UseResidential
}

// PerAreaPrice returns value/area when both are positive, nil otherwise.
func PerAreaPrice(value, area float64) *float64 {
	if value > 0 && area > 0 {
		p := value / area
		return &p
	}
	return nil
}

// parsePeriod resolves year and month from a "YYYY-MM" token or explicit fields.
func parsePeriod(f RawFeature) (year, month int, ok bool) {
	if token := strings.TrimSpace(stringField(f, periodKeys...)); token != "" {
		parts := strings.FieldsFunc(token, func(r rune) bool { return r == '-' || r == '/' })
		if len(parts) < 2 {
			return 0, 0, false
		}
		y, errY := strconv.Atoi(parts[0])
		m, errM := strconv.Atoi(parts[1])
		if errY != nil || errM != nil {
			return 0, 0, false
		}
		year, month = y, m
	} else {
		y, okY := numberField(f, yearKeys...)
		m, okM := numberField(f, monthKeys...)
		if !okY || !okM || y != math.Trunc(y) || m != math.Trunc(m) {
			return 0, 0, false
		}
		year, month = int(y), int(m)
	}

	if year <= 0 || month < 1 || month > 12 {
		return 0, 0, false
	}
	return year, month, true
}

func lookup(f RawFeature, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(f RawFeature, keys ...string) string {
	v, ok := lookup(f, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// numberField accepts JSON numbers and numeric strings; NaN and infinities are rejected.
func numberField(f RawFeature, keys ...string) (float64, bool) {
	v, ok := lookup(f, keys...)
	if !ok {
		return 0, false
	}

	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
