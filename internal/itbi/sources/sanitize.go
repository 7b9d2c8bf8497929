package sources

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/i474232898/itbi-price-aggregation/internal/itbi"
)

// Some exports write NaN/Infinity for missing numbers, which is not JSON.
var nonFiniteTokens = [][]byte{[]byte("NaN"), []byte("Infinity"), []byte("-Infinity")}

// SanitizeNumericLiterals replaces bare NaN, Infinity and -Infinity values
// with null. Only tokens in value position (after ':', '[' or ',') are
// rewritten; text inside string literals is never touched.
func SanitizeNumericLiterals(payload []byte) []byte {
	var out []byte
	copied := 0
	inString, escaped := false, false
	var prev byte

	for i := 0; i < len(payload); i++ {
		c := payload[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				prev = c
			}
			continue
		}

		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '"':
			inString = true
			continue
		}

		if prev == ':' || prev == '[' || prev == ',' {
			if n := nonFiniteLen(payload[i:]); n > 0 {
				out = append(out, payload[copied:i]...)
				out = append(out, "null"...)
				i += n - 1
				copied = i + 1
				prev = 'l'
				continue
			}
		}
		prev = c
	}

	if out == nil {
		return payload
	}
	return append(out, payload[copied:]...)
}

// nonFiniteLen returns the length of the non-finite token at the start of b, or 0.
func nonFiniteLen(b []byte) int {
	for _, tok := range nonFiniteTokens {
		if !bytes.HasPrefix(b, tok) {
			continue
		}
		if len(b) == len(tok) || !isIdentByte(b[len(tok)]) {
			return len(tok)
		}
	}
	return 0
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// envelope is the paginated response shape.
type envelope struct {
	Data         []itbi.RawFeature `json:"data"`
	TotalRecords json.Number       `json:"total_records"`
}

// total returns the source-reported record count, or 0 when absent.
func (e envelope) total() int {
	if e.TotalRecords == "" {
		return 0
	}
	if n, err := e.TotalRecords.Int64(); err == nil {
		return int(n)
	}
	if f, err := e.TotalRecords.Float64(); err == nil {
		return int(f)
	}
	return 0
}

// parseEnvelope decodes one page: non-finite literals are nulled,
// and a payload that is a JSON string holding the envelope is unwrapped once.
// Numbers are kept as json.Number for the normalizer.
func parseEnvelope(body []byte) (envelope, error) {
	var env envelope

	payload := bytes.TrimSpace(SanitizeNumericLiterals(body))
	if len(payload) == 0 {
		return env, errEmptyBody
	}

	if payload[0] == '"' {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil {
			return env, fmt.Errorf("%w: %w", errEnvelope, err)
		}
		payload = bytes.TrimSpace(SanitizeNumericLiterals([]byte(inner)))
		if len(payload) == 0 {
			return env, errEmptyBody
		}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return env, fmt.Errorf("%w: %w", errEnvelope, err)
	}
	return env, nil
}
