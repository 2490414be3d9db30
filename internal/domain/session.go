package domain

import "time"

// Mode is the navigation state.
type Mode string

const (
	ModePlanning Mode = "PLANNING"
	ModeActive   Mode = "ACTIVE"
)

// Session is the persisted navigation record. FrozenGeometry never changes
// while Mode is ACTIVE.
type Session struct {
	Mode           Mode        `json:"mode"`
	Profile        Profile     `json:"profile"`
	RouteID        string      `json:"route_id,omitempty"`
	FrozenGeometry string      `json:"frozen_geometry,omitempty"`
	Destination    Destination `json:"destination"`
	DeviationArmed bool        `json:"deviation_armed"`
	ActivatedAt    time.Time   `json:"activated_at,omitzero"`
}

// ActiveRoute is the "last known active route" record.
type ActiveRoute struct {
	RouteID  string    `json:"route_id"`
	Geometry string    `json:"geometry"`
	SavedAt  time.Time `json:"saved_at"`
}
