package domain

import "time"

// Snapshot is an immutable set of merged records captured at one instant.
// Every cycle builds a new Snapshot; published snapshots are never modified.
type Snapshot struct {
	Records    []CanonicalRecord `json:"records"`
	CapturedAt time.Time         `json:"capturedAt"`
}

// NewSnapshot builds a snapshot from records, copying them.
func NewSnapshot(records []CanonicalRecord, capturedAt time.Time) *Snapshot {
	out := make([]CanonicalRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return &Snapshot{Records: out, CapturedAt: capturedAt}
}

// Len returns the number of records. Safe on nil.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Index returns the records keyed by identity key.
func (s *Snapshot) Index() map[string]CanonicalRecord {
	if s == nil {
		return nil
	}
	idx := make(map[string]CanonicalRecord, len(s.Records))
	for _, r := range s.Records {
		idx[r.Key] = r
	}
	return idx
}
