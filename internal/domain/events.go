package domain

import "time"

// EventType identifies a push feed message.
type EventType string

const (
	EventSnapshot    EventType = "snapshot"
	EventPriceDelta  EventType = "price_delta"
	EventVolumeSpike EventType = "volume_spike"
)

// Event is one push feed message.
type Event struct {
	Type      EventType         `json:"type"`
	Tokens    []CanonicalRecord `json:"tokens"`
	Timestamp time.Time         `json:"timestamp"`
}
