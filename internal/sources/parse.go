package sources

import (
	"strconv"

	"github.com/tidwall/gjson"

	"solana-token-feed/internal/domain"
)

// optFloat reads a numeric field that may be absent, null, or a numeric string.
func optFloat(v gjson.Result) *float64 {
	switch v.Type {
	case gjson.Number:
		return domain.Float(v.Float())
	case gjson.String:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// optAmount is optFloat restricted to non-negative values.
func optAmount(v gjson.Result) *float64 {
	return domain.NonNegative(optFloat(v))
}

// sumKnown adds the known values; nil if none are known.
func sumKnown(vals ...*float64) *float64 {
	var total float64
	known := false
	for _, v := range vals {
		if v != nil {
			total += *v
			known = true
		}
	}
	if !known {
		return nil
	}
	return &total
}
