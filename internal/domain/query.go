package domain

import (
	"fmt"
	"math"
	"sort"
)

// Period selects the change window used for price-change sorting.
type Period string

const (
	PeriodAll Period = ""
	Period1h  Period = "1h"
	Period24h Period = "24h"
	Period7d  Period = "7d"
)

// ParsePeriod validates a period string. Empty means "all".
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodAll, Period1h, Period24h, Period7d:
		return p, nil
	}
	return "", fmt.Errorf("invalid period %q", s)
}

// SortKey selects the ordering of a projection.
type SortKey string

const (
	SortDefault     SortKey = ""
	SortVolume      SortKey = "volume"
	SortPriceChange SortKey = "priceChange"
	SortMarketCap   SortKey = "marketCap"
)

// ParseSortKey validates a sort key string. Empty means the default order.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case SortDefault, SortVolume, SortPriceChange, SortMarketCap:
		return k, nil
	}
	return "", fmt.Errorf("invalid sort key %q", s)
}

// Periods lists every accepted period.
func Periods() []Period {
	return []Period{PeriodAll, Period1h, Period24h, Period7d}
}

// SortKeys lists every accepted sort key.
func SortKeys() []SortKey {
	return []SortKey{SortDefault, SortVolume, SortPriceChange, SortMarketCap}
}

// QuerySpec describes how to project a snapshot into a response.
type QuerySpec struct {
	Period  Period
	SortKey SortKey
	Limit   int
	Cursor  string // reserved
}

// Clamp applies pagination bounds. Zero uses defaultLimit; the result is in [1, maxLimit].
func (q QuerySpec) Clamp(defaultLimit, maxLimit int) QuerySpec {
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Limit < 1 {
		q.Limit = 1
	}
	return q
}

// Projection is the result of applying a QuerySpec to a snapshot.
type Projection struct {
	Tokens []CanonicalRecord `json:"tokens"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Cursor string            `json:"cursor"`
}

// Project sorts and truncates a copy of the snapshot records.
// The limit must already be clamped.
func Project(s *Snapshot, q QuerySpec) Projection {
	records := make([]CanonicalRecord, 0, s.Len())
	if s != nil {
		for _, r := range s.Records {
			records = append(records, r.Clone())
		}
	}

	less := sortLess(q)
	sort.SliceStable(records, func(i, j int) bool {
		return less(records[i], records[j])
	})

	total := len(records)
	if q.Limit >= 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}

	return Projection{
		Tokens: records,
		Total:  total,
		Limit:  q.Limit,
		Cursor: q.Cursor,
	}
}

// sortLess returns a descending comparator for the query's sort key.
// Ties break on identity key so projections are deterministic.
func sortLess(q QuerySpec) func(a, b CanonicalRecord) bool {
	var value func(r CanonicalRecord) float64
	switch q.SortKey {
	case SortMarketCap:
		value = func(r CanonicalRecord) float64 { return r.MarketCap }
	case SortPriceChange:
		value = changeFor(q.Period)
	default:
		value = func(r CanonicalRecord) float64 { return r.Volume }
	}
	return func(a, b CanonicalRecord) bool {
		va, vb := value(a), value(b)
		if va != vb {
			return va > vb
		}
		return a.Key < b.Key
	}
}

func changeFor(p Period) func(r CanonicalRecord) float64 {
	switch p {
	case Period1h:
		return func(r CanonicalRecord) float64 { return r.Change1h }
	case Period7d:
		// Records without a 7d figure sort last.
		return func(r CanonicalRecord) float64 {
			if r.Change7d == nil {
				return math.Inf(-1)
			}
			return *r.Change7d
		}
	default:
		return func(r CanonicalRecord) float64 { return r.Change24h }
	}
}
