package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the reports topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// EventKind names a navigation event.
type EventKind string

const (
	EventModeChanged           EventKind = "mode_changed"
	EventRemainingRouteUpdated EventKind = "remaining_route_updated"
	EventDeviationDetected     EventKind = "deviation_detected"
)

// NavigationEvent is emitted by the navigation controller. Only the fields
// relevant to Kind are set.
type NavigationEvent struct {
	Kind      EventKind    `json:"kind"`
	RouteID   string       `json:"route_id,omitempty"`
	Mode      Mode         `json:"mode,omitempty"`
	Remaining []Coordinate `json:"remaining,omitempty"`
	Position  *Coordinate  `json:"position,omitempty"`
	OffsetM   float64      `json:"offset_m,omitempty"`
	At        time.Time    `json:"at"`
}

// PositionFix is one location sample. Err is set when the provider reported a
// failure (permission denied, timeout) instead of a location.
type PositionFix struct {
	Location Coordinate
	At       time.Time
	Err      error
}

// PositionStream yields fixes until ctx is cancelled. The returned channel is
// closed when the subscription ends.
type PositionStream interface {
	Subscribe(ctx context.Context) (<-chan PositionFix, error)
}

// KeyValueStore is the durable surface used for session resumption.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
