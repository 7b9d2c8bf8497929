package itbi

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultSuggestionLimit caps the number of distinct addresses returned by Suggest.
	DefaultSuggestionLimit = 12
	minSuggestionQuery     = 2
)

// Fold lower-cases s and strips diacritics so "São João" compares equal to "sao joao".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Match returns the records whose address contains query, ignoring case and
// diacritics. A blank query matches nothing.
func Match(records []PropertyRecord, query string) []PropertyRecord {
	q := Fold(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var matched []PropertyRecord
	for _, r := range records {
		if strings.Contains(Fold(r.Address), q) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Suggest collects up to limit distinct addresses containing query in
// first-seen order, each paired with the neighborhood of its first occurrence.
func Suggest(records []PropertyRecord, query string, limit int) []Suggestion {
	q := Fold(strings.TrimSpace(query))
	if utf8.RuneCountInString(q) < minSuggestionQuery {
		return nil
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	seen := make(map[string]struct{}, limit)
	out := make([]Suggestion, 0, limit)
	for _, r := range records {
		if len(out) >= limit {
			break
		}
		if _, dup := seen[r.Address]; dup {
			continue
		}
		if !strings.Contains(Fold(r.Address), q) {
			continue
		}
		seen[r.Address] = struct{}{}
		out = append(out, Suggestion{Address: r.Address, Neighborhood: r.Neighborhood})
	}
	return out
}
