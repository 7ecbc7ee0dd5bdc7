package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuerySpec_Clamp(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"unset uses default", 0, 25},
		{"within bounds", 10, 10},
		{"above max", 500, 50},
		{"negative", -3, 1},
		{"exactly max", 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuerySpec{Limit: tt.limit}.Clamp(25, 50)
			assert.Equal(t, tt.want, got.Limit)
		})
	}
}

func TestParsePeriodAndSortKey(t *testing.T) {
	p, err := ParsePeriod("7d")
	require.NoError(t, err)
	assert.Equal(t, Period7d, p)

	_, err = ParsePeriod("30d")
	assert.Error(t, err)

	k, err := ParseSortKey("priceChange")
	require.NoError(t, err)
	assert.Equal(t, SortPriceChange, k)

	_, err = ParseSortKey("holders")
	assert.Error(t, err)
}

func testSnapshot() *Snapshot {
	seven := 12.0
	return NewSnapshot([]CanonicalRecord{
		{Key: "a", Volume: 100, MarketCap: 5, Change1h: 1, Change24h: 30, Sources: []string{"jupiter"}},
		{Key: "b", Volume: 300, MarketCap: 1, Change1h: 9, Change24h: -4, Change7d: &seven, Sources: []string{"birdeye"}},
		{Key: "c", Volume: 200, MarketCap: 9, Change1h: -2, Change24h: 10, Sources: []string{"dexscreener"}},
	}, time.Unix(1700000000, 0))
}

func keys(records []CanonicalRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key
	}
	return out
}

func TestProject_SortKeys(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		name string
		q    QuerySpec
		want []string
	}{
		{"default is volume", QuerySpec{Limit: 10}, []string{"b", "c", "a"}},
		{"market cap", QuerySpec{SortKey: SortMarketCap, Limit: 10}, []string{"c", "a", "b"}},
		{"price change 1h", QuerySpec{SortKey: SortPriceChange, Period: Period1h, Limit: 10}, []string{"b", "a", "c"}},
		{"price change defaults to 24h", QuerySpec{SortKey: SortPriceChange, Limit: 10}, []string{"a", "c", "b"}},
		{"price change 7d missing last", QuerySpec{SortKey: SortPriceChange, Period: Period7d, Limit: 10}, []string{"b", "a", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Project(snap, tt.q)
			assert.Equal(t, tt.want, keys(got.Tokens))
			assert.Equal(t, 3, got.Total)
		})
	}
}

func TestProject_LimitAndImmutability(t *testing.T) {
	snap := testSnapshot()

	got := Project(snap, QuerySpec{Limit: 2, Cursor: "abc"})
	require.Len(t, got.Tokens, 2)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 2, got.Limit)
	assert.Equal(t, "abc", got.Cursor)

	got.Tokens[0].Volume = -1
	got.Tokens[0].Sources[0] = "mutated"
	assert.Equal(t, []string{"a", "b", "c"}, keys(snap.Records), "snapshot order must not change")
	assert.Equal(t, 300.0, snap.Records[1].Volume)
	assert.Equal(t, "birdeye", snap.Records[1].Sources[0])
}

func TestProject_NilSnapshot(t *testing.T) {
	got := Project(nil, QuerySpec{Limit: 5})
	assert.Empty(t, got.Tokens)
	assert.Equal(t, 0, got.Total)
}

func TestRawRecord_ToCanonical(t *testing.T) {
	raw := &RawRecord{
		Source:    SourceJupiter,
		Address:   "  So11111111111111111111111111111111111111112 ",
		Price:     Float(1.5),
		Volume:    Float(-10),
		Change24h: Float(-3),
	}

	c := raw.ToCanonical()
	assert.Equal(t, "so11111111111111111111111111111111111111112", c.Key)
	assert.Equal(t, "So11111111111111111111111111111111111111112", c.Address)
	assert.Equal(t, 1.5, c.Price)
	assert.Equal(t, 0.0, c.Volume, "negative volume is unknown")
	assert.Equal(t, -3.0, c.Change24h)
	assert.Nil(t, c.Change7d)
	assert.Equal(t, []string{"jupiter"}, c.Sources)
}
