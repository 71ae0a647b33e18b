package decision

import (
	"encoding/json"
	"fmt"
	"io"
)

// DecodeFacts decodes a JSON object of facts. Integral numbers become int64 and
// all other numbers float64, so aggregations keep the integer domain.
func DecodeFacts(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var facts map[string]any
	if err := dec.Decode(&facts); err != nil {
		return nil, fmt.Errorf("invalid facts: %w", err)
	}
	return NormalizeFacts(facts), nil
}

// NormalizeFacts converts json.Number values anywhere in facts, in place
func NormalizeFacts(facts map[string]any) map[string]any {
	for k, v := range facts {
		facts[k] = normalizeValue(v)
	}
	return facts
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		return NormalizeFacts(val)
	case []any:
		for i := range val {
			val[i] = normalizeValue(val[i])
		}
		return val
	}
	return v
}
