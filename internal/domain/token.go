package domain

import (
	"strings"
	"time"
)

// IdentityKey returns the merge key for an address: trimmed and lower-cased.
// An empty result means the record has no identity and must be dropped.
func IdentityKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// RawRecord is one listing as reported by a single source, before merge.
// Numeric fields are nil when the source did not report them.
type RawRecord struct {
	Source    Source
	Address   string
	Name      string
	Symbol    string
	Price     *float64
	MarketCap *float64
	Volume    *float64
	Liquidity *float64
	TxCount   *float64
	Change1h  *float64 // signed percent
	Change24h *float64 // signed percent
	Change7d  *float64 // signed percent
	Protocol  string
	FetchedAt time.Time
}

// Key returns the identity key of the record.
func (r *RawRecord) Key() string {
	return IdentityKey(r.Address)
}

// CanonicalRecord is one token after merging all sources.
type CanonicalRecord struct {
	Key       string    `json:"key"`
	Address   string    `json:"address"`
	Name      string    `json:"name"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	MarketCap float64   `json:"marketCap"`
	Volume    float64   `json:"volume"`
	Liquidity float64   `json:"liquidity"`
	TxCount   float64   `json:"txCount"`
	Change1h  float64   `json:"change1h"`
	Change24h float64   `json:"change24h"`
	Change7d  *float64  `json:"change7d,omitempty"`
	Protocol  string    `json:"protocol"`
	Sources   []string  `json:"sources"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasSource reports whether name already contributed to the record.
func (c *CanonicalRecord) HasSource(name string) bool {
	for _, s := range c.Sources {
		if s == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c CanonicalRecord) Clone() CanonicalRecord {
	out := c
	out.Sources = append([]string(nil), c.Sources...)
	if c.Change7d != nil {
		v := *c.Change7d
		out.Change7d = &v
	}
	return out
}

// Float returns a pointer to v. Used by adapters to mark a field as known.
func Float(v float64) *float64 {
	return &v
}

// NonNegative returns nil for nil or negative values.
func NonNegative(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// ToCanonical converts a raw record into a canonical one attributed to its source.
func (r *RawRecord) ToCanonical() CanonicalRecord {
	c := CanonicalRecord{
		Key:       r.Key(),
		Address:   strings.TrimSpace(r.Address),
		Name:      r.Name,
		Symbol:    r.Symbol,
		Price:     valueOrZero(NonNegative(r.Price)),
		MarketCap: valueOrZero(NonNegative(r.MarketCap)),
		Volume:    valueOrZero(NonNegative(r.Volume)),
		Liquidity: valueOrZero(NonNegative(r.Liquidity)),
		TxCount:   valueOrZero(NonNegative(r.TxCount)),
		Change1h:  valueOrZero(r.Change1h),
		Change24h: valueOrZero(r.Change24h),
		Protocol:  r.Protocol,
		Sources:   []string{r.Source.String()},
		UpdatedAt: r.FetchedAt,
	}
	if r.Change7d != nil {
		v := *r.Change7d
		c.Change7d = &v
	}
	return c
}
