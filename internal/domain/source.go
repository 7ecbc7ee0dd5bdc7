package domain

// Source names the upstream provider a record came from.
type Source string

const (
	SourceBirdeye     Source = "birdeye"
	SourceJupiter     Source = "jupiter"
	SourceDexScreener Source = "dexscreener"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a known provider.
func (s Source) IsValid() bool {
	switch s {
	case SourceBirdeye, SourceJupiter, SourceDexScreener:
		return true
	}
	return false
}

// DefaultPriority is the merge order, highest priority first.
var DefaultPriority = []Source{SourceBirdeye, SourceJupiter, SourceDexScreener}
