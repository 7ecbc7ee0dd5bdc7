// Package detect compares consecutive snapshots for price moves and volume spikes.
package detect

import (
	"math"
	"sync"

	"solana-token-feed/internal/domain"
)

// Default thresholds, in percent.
const (
	DefaultPriceDeltaPct  = 5.0
	DefaultVolumeSpikePct = 50.0
)

// Thresholds are exclusive: a change must be strictly greater to flag.
type Thresholds struct {
	PriceDeltaPct  float64
	VolumeSpikePct float64
}

// DefaultThresholds returns 5% price / 50% volume.
func DefaultThresholds() Thresholds {
	return Thresholds{PriceDeltaPct: DefaultPriceDeltaPct, VolumeSpikePct: DefaultVolumeSpikePct}
}

// Deltas are the records of the current snapshot that crossed a threshold.
type Deltas struct {
	PriceDeltas  []domain.CanonicalRecord
	VolumeSpikes []domain.CanonicalRecord
}

// Empty reports whether nothing was flagged.
func (d Deltas) Empty() bool {
	return len(d.PriceDeltas) == 0 && len(d.VolumeSpikes) == 0
}

// Compare flags records of cur against prev by identity key.
// Records absent from prev and records with a zero baseline never flag.
func Compare(prev, cur *domain.Snapshot, th Thresholds) Deltas {
	var d Deltas
	if prev.Len() == 0 || cur.Len() == 0 {
		return d
	}

	before := prev.Index()
	for _, r := range cur.Records {
		p, ok := before[r.Key]
		if !ok {
			continue
		}
		if priceMoved(p.Price, r.Price, th.PriceDeltaPct) {
			d.PriceDeltas = append(d.PriceDeltas, r.Clone())
		}
		if volumeSpiked(p.Volume, r.Volume, th.VolumeSpikePct) {
			d.VolumeSpikes = append(d.VolumeSpikes, r.Clone())
		}
	}
	return d
}

func priceMoved(prev, cur, pct float64) bool {
	if prev <= 0 {
		return false
	}
	return math.Abs(cur-prev)*100/prev > pct
}

func volumeSpiked(prev, cur, pct float64) bool {
	if prev <= 0 {
		return false
	}
	return (cur-prev)*100/prev > pct
}

// Detector remembers the last observed snapshot.
type Detector struct {
	th Thresholds

	mu   sync.Mutex
	prev *domain.Snapshot
}

// NewDetector creates a detector with no baseline.
func NewDetector(th Thresholds) *Detector {
	return &Detector{th: th}
}

// Observe compares cur with the previous snapshot and then makes cur the
// baseline, whether or not anything was flagged. The first call flags nothing.
func (d *Detector) Observe(cur *domain.Snapshot) Deltas {
	d.mu.Lock()
	defer d.mu.Unlock()

	deltas := Compare(d.prev, cur, d.th)
	d.prev = cur
	return deltas
}

// Thresholds returns the configured thresholds.
func (d *Detector) Thresholds() Thresholds {
	return d.th
}
