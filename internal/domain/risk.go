package domain

// RiskCluster is a validated group of nearby reports. Clusters are recomputed on
// every query and carry no identity across calls.
type RiskCluster struct {
	ID        string     `json:"id"`
	Centroid  Coordinate `json:"coordinates"`
	Reports   []Report   `json:"reports"`
	Weight    float64    `json:"weight"`
	Intensity float64    `json:"intensity"` // [0.6, 1.0] once validated
}

// DeviceCount returns the number of distinct devices among the members.
func (c RiskCluster) DeviceCount() int {
	seen := make(map[string]struct{}, len(c.Reports))
	for i := range c.Reports {
		seen[c.Reports[i].DeviceID] = struct{}{}
	}
	return len(seen)
}

// Lighting is the ambient lighting estimate for a zone.
type Lighting string

const (
	LightingOptimal  Lighting = "Optimal"
	LightingAdequate Lighting = "Adequate"
	LightingDim      Lighting = "Dim"
	LightingPoor     Lighting = "Poor"
)

// Crowd is the ambient crowd estimate for a zone.
type Crowd string

const (
	CrowdLow      Crowd = "Low"
	CrowdModerate Crowd = "Moderate"
	CrowdDense    Crowd = "Dense"
)

// ZoneStatus is the ambient safety snapshot around a point.
type ZoneStatus struct {
	Score       float64  `json:"score"` // 2.0–10.0, one decimal
	Lighting    Lighting `json:"lighting"`
	Crowd       Crowd    `json:"crowd"`
	ReportCount int      `json:"report_count"`
}
